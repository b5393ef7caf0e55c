package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel.org/internal/obs"
)

// DefaultInvalidTokenDelay slows down lookups of unknown API tokens.
const DefaultInvalidTokenDelay = 50 * time.Millisecond

// ResolverStore is the part of Store the resolver reads.
type ResolverStore interface {
	UserStore
	SessionStore
	TokenStore
}

// Resolver turns a bearer string into a Principal.
type Resolver struct {
	store             ResolverStore
	now               func() time.Time
	invalidTokenDelay time.Duration
	logf              func(map[string]any)
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) error {
		if fn != nil {
			r.now = fn
		}
		return nil
	}
}

// WithInvalidTokenDelay sets the pause applied when a token hash has no match.
func WithInvalidTokenDelay(d time.Duration) ResolverOption {
	return func(r *Resolver) error {
		if d < 0 {
			return fmt.Errorf("auth: negative invalid token delay %s", d)
		}
		r.invalidTokenDelay = d
		return nil
	}
}

// WithLogger routes best-effort failures (lastaccess touches) to fn.
func WithLogger(fn func(map[string]any)) ResolverOption {
	return func(r *Resolver) error {
		if fn != nil {
			r.logf = fn
		}
		return nil
	}
}

// NewResolver constructs a Resolver over store.
func NewResolver(store ResolverStore, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("auth: resolver store is required")
	}
	r := &Resolver{
		store:             store,
		now:               time.Now,
		invalidTokenDelay: DefaultInvalidTokenDelay,
		logf:              obs.LogRequest,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Authenticate resolves bearer into a principal. A 64 character bearer is
// an API token, anything else a session id. Credential failures return
// ErrUnauthorized, except a matched but expired token which returns
// ErrTokenExpired.
func (r *Resolver) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	return r.resolve(ctx, bearer, true)
}

// CheckAuthentication is Authenticate with control over the lastaccess
// touch. With extend false the session or token is left as is.
func (r *Resolver) CheckAuthentication(ctx context.Context, credential string, extend bool) (Principal, error) {
	return r.resolve(ctx, credential, extend)
}

func (r *Resolver) resolve(ctx context.Context, bearer string, touch bool) (Principal, error) {
	if bearer == "" {
		return Principal{}, ErrUnauthorized
	}
	if IsAPIToken(bearer) {
		return r.fromToken(ctx, bearer, touch)
	}
	return r.fromSession(ctx, bearer, touch)
}

func (r *Resolver) fromToken(ctx context.Context, raw string, touch bool) (Principal, error) {
	hash := HashToken(raw)
	tok, err := r.store.FindTokenByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		r.pause(ctx)
		return Principal{}, ErrUnauthorized
	}
	if err != nil {
		return Principal{}, fmt.Errorf("auth: find token: %w", err)
	}
	if !hashesEqual(tok.TokenHash, hash) {
		r.pause(ctx)
		return Principal{}, ErrUnauthorized
	}
	if tok.Status != TokenStatusEnabled {
		return Principal{}, ErrUnauthorized
	}
	now := r.now()
	if tok.Expired(now) {
		return Principal{}, ErrTokenExpired
	}

	p, err := r.principal(ctx, tok.UserID)
	if err != nil {
		return Principal{}, err
	}
	p.Actor = ActorToken
	p.TokenID = tok.ID

	if touch {
		if err := r.store.TouchToken(ctx, tok.ID, now); err != nil {
			r.logf(map[string]any{
				"level":    "warn",
				"msg":      "token lastaccess update failed",
				"token_id": tok.ID,
				"error":    err.Error(),
			})
		}
	}
	return p, nil
}

func (r *Resolver) fromSession(ctx context.Context, id string, touch bool) (Principal, error) {
	sess, err := r.store.FindActiveSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, ErrUnauthorized
	}
	if err != nil {
		return Principal{}, fmt.Errorf("auth: find session: %w", err)
	}
	if sess.Status != SessionStatusActive {
		return Principal{}, ErrUnauthorized
	}

	user, err := r.store.FindUser(ctx, sess.UserID)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, ErrUnauthorized
	}
	if err != nil {
		return Principal{}, fmt.Errorf("auth: find user: %w", err)
	}

	now := r.now()
	if user.AutoLogout > 0 {
		deadline := sess.LastAccess.Add(time.Duration(user.AutoLogout) * time.Second)
		if !deadline.After(now) {
			if err := r.store.MarkSessionPassive(ctx, sess.ID); err != nil {
				r.logf(map[string]any{
					"level":      "warn",
					"msg":        "session expiry update failed",
					"session_id": sess.ID,
					"error":      err.Error(),
				})
			}
			return Principal{}, ErrUnauthorized
		}
	}

	p, err := r.principalFor(ctx, user)
	if err != nil {
		return Principal{}, err
	}
	p.Actor = ActorSession
	p.SessionID = sess.ID

	// lastaccess has second precision; skip writes that change nothing.
	if touch && now.Unix() != sess.LastAccess.Unix() {
		if err := r.store.TouchSession(ctx, sess.ID, now); err != nil {
			r.logf(map[string]any{
				"level":      "warn",
				"msg":        "session lastaccess update failed",
				"session_id": sess.ID,
				"error":      err.Error(),
			})
		}
	}
	return p, nil
}

func (r *Resolver) principal(ctx context.Context, userID string) (Principal, error) {
	user, err := r.store.FindUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, ErrUnauthorized
	}
	if err != nil {
		return Principal{}, fmt.Errorf("auth: find user: %w", err)
	}
	return r.principalFor(ctx, user)
}

// principalFor resolves role and group state for user. A disabled group
// anywhere fails the whole authentication.
func (r *Resolver) principalFor(ctx context.Context, user *User) (Principal, error) {
	role, err := r.store.FindRole(ctx, user.RoleID)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, ErrUnauthorized
	}
	if err != nil {
		return Principal{}, fmt.Errorf("auth: find role: %w", err)
	}
	groups, err := r.store.UserGroups(ctx, user.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: user groups: %w", err)
	}
	state := EvaluateGroups(groups)
	if state.Disabled {
		return Principal{}, ErrUnauthorized
	}
	return Principal{
		UserID:    user.ID,
		Username:  user.Username,
		RoleID:    role.ID,
		UserType:  role.Type,
		DebugMode: state.Debug,
	}, nil
}

// GroupState summarizes the authentication switches of a user's groups.
type GroupState struct {
	Disabled bool
	Debug    bool
}

// EvaluateGroups folds groups into a GroupState. Debug is an OR over all
// groups; Disabled wins over everything.
func EvaluateGroups(groups []UserGroup) GroupState {
	var st GroupState
	for _, g := range groups {
		if g.UsersStatus == GroupStatusDisabled {
			return GroupState{Disabled: true}
		}
		if !st.Debug && g.DebugMode == GroupDebugEnabled {
			st.Debug = true
		}
	}
	return st
}

func (r *Resolver) pause(ctx context.Context) {
	if r.invalidTokenDelay <= 0 {
		return
	}
	timer := time.NewTimer(r.invalidTokenDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
