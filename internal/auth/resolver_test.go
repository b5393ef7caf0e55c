package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seededStore() *fakeStore {
	st := newFakeStore()
	st.roles["r-user"] = &Role{ID: "r-user", Name: "User role", Type: UserTypeUser}
	st.users["u1"] = &User{ID: "u1", Username: "alice", RoleID: "r-user"}
	st.groups["u1"] = []UserGroup{
		{ID: "g1", UsersStatus: GroupStatusEnabled, DebugMode: GroupDebugDisabled},
		{ID: "g2", UsersStatus: GroupStatusEnabled, DebugMode: GroupDebugEnabled},
	}
	return st
}

func newTestResolver(t *testing.T, st *fakeStore) *Resolver {
	t.Helper()
	r, err := NewResolver(st,
		WithClock(func() time.Time { return fixedNow }),
		WithInvalidTokenDelay(0),
		WithLogger(func(map[string]any) {}),
	)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func addToken(st *fakeStore, id, raw string, status int, expires time.Time) {
	st.tokens[id] = &APIToken{ID: id, UserID: "u1", TokenHash: HashToken(raw), Status: status, ExpiresAt: expires}
}

func TestAuthenticateEmptyBearer(t *testing.T) {
	r := newTestResolver(t, seededStore())
	if _, err := r.Authenticate(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticateUnknownSession(t *testing.T) {
	r := newTestResolver(t, seededStore())
	for _, bearer := range []string{"x", "0123456789abcdef0123456789abcdef", strings.Repeat("a", 63), strings.Repeat("a", 65)} {
		if _, err := r.Authenticate(context.Background(), bearer); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("bearer %q: expected ErrUnauthorized, got %v", bearer, err)
		}
	}
}

func TestAuthenticateSession(t *testing.T) {
	st := seededStore()
	st.sessions["s1"] = &Session{ID: "s1", UserID: "u1", LastAccess: fixedNow.Add(-time.Minute)}
	r := newTestResolver(t, st)

	p, err := r.Authenticate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.UserID != "u1" || p.Username != "alice" || p.UserType != UserTypeUser {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.Actor != ActorSession || p.SessionID != "s1" || p.CredentialID() != "s1" {
		t.Fatalf("unexpected credential fields: %+v", p)
	}
	if !p.DebugMode {
		t.Fatalf("expected debug mode from group g2")
	}
	if len(st.touchedSess) != 1 {
		t.Fatalf("expected session touch, got %v", st.touchedSess)
	}
}

func TestAuthenticateSessionAutoLogout(t *testing.T) {
	st := seededStore()
	st.users["u1"].AutoLogout = 900
	st.sessions["s1"] = &Session{ID: "s1", UserID: "u1", LastAccess: fixedNow.Add(-15 * time.Minute)}
	r := newTestResolver(t, st)

	if _, err := r.Authenticate(context.Background(), "s1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(st.passive) != 1 || st.passive[0] != "s1" {
		t.Fatalf("expected session marked passive, got %v", st.passive)
	}
	if _, err := r.Authenticate(context.Background(), "s1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("passive session must stay rejected, got %v", err)
	}
}

func TestCheckAuthenticationWithoutExtend(t *testing.T) {
	st := seededStore()
	st.sessions["s1"] = &Session{ID: "s1", UserID: "u1", LastAccess: fixedNow.Add(-time.Minute)}
	r := newTestResolver(t, st)

	if _, err := r.CheckAuthentication(context.Background(), "s1", false); err != nil {
		t.Fatalf("CheckAuthentication: %v", err)
	}
	if len(st.touchedSess) != 0 {
		t.Fatalf("session must not be touched, got %v", st.touchedSess)
	}
}

func TestAuthenticateToken(t *testing.T) {
	st := seededStore()
	raw := strings.Repeat("ab", 32)
	addToken(st, "t1", raw, TokenStatusEnabled, time.Time{})
	r := newTestResolver(t, st)

	p, err := r.Authenticate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Actor != ActorToken || p.TokenID != "t1" || p.UserID != "u1" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if len(st.touchedToken) != 1 || st.touchedToken[0] != "t1" {
		t.Fatalf("expected lastaccess touch, got %v", st.touchedToken)
	}
}

func TestAuthenticateTokenTouchFailureIsIgnored(t *testing.T) {
	st := seededStore()
	st.touchErr = errors.New("db down")
	raw := strings.Repeat("cd", 32)
	addToken(st, "t1", raw, TokenStatusEnabled, time.Time{})

	var logged []map[string]any
	r, err := NewResolver(st,
		WithClock(func() time.Time { return fixedNow }),
		WithInvalidTokenDelay(0),
		WithLogger(func(e map[string]any) { logged = append(logged, e) }),
	)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := r.Authenticate(context.Background(), raw); err != nil {
		t.Fatalf("touch failure must not fail authentication: %v", err)
	}
	if len(logged) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logged))
	}
}

func TestAuthenticateTokenFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		expires time.Time
		want    error
	}{
		{name: "disabled", status: TokenStatusDisabled, want: ErrUnauthorized},
		{name: "disabled and expired", status: TokenStatusDisabled, expires: fixedNow.Add(-time.Hour), want: ErrUnauthorized},
		{name: "expired", status: TokenStatusEnabled, expires: fixedNow.Add(-time.Second), want: ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := seededStore()
			raw := strings.Repeat("ef", 32)
			addToken(st, "t1", raw, tc.status, tc.expires)
			r := newTestResolver(t, st)
			if _, err := r.Authenticate(context.Background(), raw); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(st.touchedToken) != 0 {
				t.Fatalf("failed authentication must not touch lastaccess")
			}
		})
	}
}

func TestAuthenticateTokenNotExpiredYet(t *testing.T) {
	st := seededStore()
	raw := strings.Repeat("01", 32)
	addToken(st, "t1", raw, TokenStatusEnabled, fixedNow.Add(time.Hour))
	r := newTestResolver(t, st)
	if _, err := r.Authenticate(context.Background(), raw); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func TestAuthenticateUnknownTokenWaits(t *testing.T) {
	st := seededStore()
	r, err := NewResolver(st, WithInvalidTokenDelay(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	start := time.Now()
	if _, err := r.Authenticate(context.Background(), strings.Repeat("9", 64)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected invalid token delay")
	}
}

func TestAuthenticateDisabledGroupFailsClosed(t *testing.T) {
	st := seededStore()
	st.groups["u1"] = append(st.groups["u1"], UserGroup{ID: "g3", UsersStatus: GroupStatusDisabled})
	raw := strings.Repeat("77", 32)
	addToken(st, "t1", raw, TokenStatusEnabled, time.Time{})
	st.sessions["s1"] = &Session{ID: "s1", UserID: "u1", LastAccess: fixedNow}
	r := newTestResolver(t, st)

	if _, err := r.Authenticate(context.Background(), raw); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("token: expected ErrUnauthorized, got %v", err)
	}
	if _, err := r.Authenticate(context.Background(), "s1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("session: expected ErrUnauthorized, got %v", err)
	}
}

func TestEvaluateGroups(t *testing.T) {
	if st := EvaluateGroups(nil); st.Disabled || st.Debug {
		t.Fatalf("no groups: %+v", st)
	}
	st := EvaluateGroups([]UserGroup{{DebugMode: GroupDebugEnabled}, {DebugMode: GroupDebugDisabled}})
	if !st.Debug || st.Disabled {
		t.Fatalf("debug OR: %+v", st)
	}
	st = EvaluateGroups([]UserGroup{{DebugMode: GroupDebugEnabled}, {UsersStatus: GroupStatusDisabled}})
	if !st.Disabled {
		t.Fatalf("disabled must win: %+v", st)
	}
}

func TestGenerateTokenShape(t *testing.T) {
	raw, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if !IsAPIToken(raw) {
		t.Fatalf("generated token has length %d", len(raw))
	}
	if h := HashToken(raw); len(h) != 128 || h == raw {
		t.Fatalf("unexpected hash %q", h)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("zabbix")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "zabbix"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if _, err := HashPassword(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword from HashPassword, got %v", err)
	}
	if err := VerifyPassword("", "zabbix"); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("account without hash must be refused, got %v", err)
	}
	if err := VerifyPassword(hash, ""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("empty password must be refused, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), Principal{UserID: "u7"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "u7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatalf("empty context must not carry a principal")
	}
	if ip := ClientIPFromContext(ContextWithClientIP(ctx, "10.0.0.1")); ip != "10.0.0.1" {
		t.Fatalf("unexpected client ip %q", ip)
	}
}
