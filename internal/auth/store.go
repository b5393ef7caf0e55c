package auth

import (
	"context"
	"time"
)

// UserStore reads users, their role and their groups.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, ids []string) ([]*User, error)
	FindRole(ctx context.Context, roleID string) (*Role, error)
	UserGroups(ctx context.Context, userID string) ([]UserGroup, error)
	RecordFailedLogin(ctx context.Context, userID string, at time.Time, ip string) error
	ResetFailedLogins(ctx context.Context, userID string) error
}

// SessionStore manages frontend sessions. Ended sessions stay as passive rows.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	FindActiveSession(ctx context.Context, id string) (*Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	MarkSessionPassive(ctx context.Context, id string) error
}

// TokenFilter narrows token listings. Empty fields match everything.
type TokenFilter struct {
	TokenIDs []string
	UserIDs  []string
}

// TokenStore manages API tokens. Raw tokens never reach the store.
type TokenStore interface {
	FindTokenByHash(ctx context.Context, hash string) (*APIToken, error)
	FindToken(ctx context.Context, id string) (*APIToken, error)
	ListTokens(ctx context.Context, filter TokenFilter) ([]*APIToken, error)
	CreateToken(ctx context.Context, tok *APIToken) error
	SetTokenHash(ctx context.Context, id, hash, creatorID string, at time.Time) error
	TouchToken(ctx context.Context, id string, at time.Time) error
	DeleteTokens(ctx context.Context, ids []string) error
}

// RoleRuleStore loads role rules in one batch: every row whose name is in
// names or starts with prefix.
type RoleRuleStore interface {
	RoleRules(ctx context.Context, roleID string, names []string, prefix string) ([]RoleRule, error)
}

// Store is the full persistence surface of the auth subsystem.
type Store interface {
	UserStore
	SessionStore
	TokenStore
	RoleRuleStore
}
