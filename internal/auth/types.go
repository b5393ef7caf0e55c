package auth

import "time"

// UserType is the access level a role grants to its users.
type UserType int

const (
	UserTypeUser       UserType = 1
	UserTypeAdmin      UserType = 2
	UserTypeSuperAdmin UserType = 3
)

// Valid reports whether t is one of the known user levels.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeUser, UserTypeAdmin, UserTypeSuperAdmin:
		return true
	}
	return false
}

func (t UserType) String() string {
	switch t {
	case UserTypeUser:
		return "user"
	case UserTypeAdmin:
		return "admin"
	case UserTypeSuperAdmin:
		return "super_admin"
	default:
		return "unknown"
	}
}

const (
	GroupStatusEnabled  = 0
	GroupStatusDisabled = 1

	GroupDebugDisabled = 0
	GroupDebugEnabled  = 1

	SessionStatusActive  = 0
	SessionStatusPassive = 1

	TokenStatusEnabled  = 0
	TokenStatusDisabled = 1
)

// User is an account able to log in or own API tokens.
type User struct {
	ID            string    `json:"userid"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	Surname       string    `json:"surname"`
	PasswordHash  string    `json:"-"`
	RoleID        string    `json:"roleid"`
	AutoLogout    int       `json:"autologout"`
	AttemptFailed int       `json:"attempt_failed"`
	AttemptClock  time.Time `json:"-"`
	AttemptIP     string    `json:"attempt_ip"`
}

// UserGroup carries the per-group switches that affect authentication.
type UserGroup struct {
	ID          string `json:"usrgrpid"`
	Name        string `json:"name"`
	UsersStatus int    `json:"users_status"`
	DebugMode   int    `json:"debug_mode"`
}

// Role maps a set of role rules onto a user type.
type Role struct {
	ID   string   `json:"roleid"`
	Name string   `json:"name"`
	Type UserType `json:"type"`
}

// Session is a frontend login session.
type Session struct {
	ID         string
	UserID     string
	LastAccess time.Time
	Status     int
}

// APIToken is a long-lived bearer credential. Only the hash of the raw
// token is ever stored.
type APIToken struct {
	ID          string    `json:"tokenid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UserID      string    `json:"userid"`
	TokenHash   string    `json:"-"`
	Status      int       `json:"status"`
	ExpiresAt   time.Time `json:"-"`
	LastAccess  time.Time `json:"-"`
	CreatedAt   time.Time `json:"-"`
	CreatorID   string    `json:"creator_userid"`
}

// Expired reports whether the token has a non-zero expiry before now.
func (t APIToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now)
}

const (
	RuleTypeInt = 0
	RuleTypeStr = 1
)

// RoleRule is a raw role rule row.
type RoleRule struct {
	RoleID   string
	Type     int
	Name     string
	ValueInt int
	ValueStr string
}
