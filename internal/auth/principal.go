package auth

// Actor tells which credential kind produced a principal.
type Actor string

const (
	ActorSession Actor = "session"
	ActorToken   Actor = "token"
)

// Principal is the identity resolved for a single API call. It is built
// fresh per call and never persisted.
type Principal struct {
	UserID    string
	Username  string
	RoleID    string
	UserType  UserType
	DebugMode bool
	SessionID string
	TokenID   string
	Actor     Actor
}

// CredentialID returns the session or token id the principal was resolved from.
func (p Principal) CredentialID() string {
	if p.Actor == ActorToken {
		return p.TokenID
	}
	return p.SessionID
}

// Requirement is what a method demands of the caller before role rules apply.
type Requirement struct {
	MinUserType UserType
	Action      string
}
