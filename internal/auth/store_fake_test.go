package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*User
	roles    map[string]*Role
	groups   map[string][]UserGroup
	sessions map[string]*Session
	tokens   map[string]*APIToken
	rules    map[string][]RoleRule

	ruleQueries  int
	touchedToken []string
	touchedSess  []string
	passive      []string
	touchErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*User{},
		roles:    map[string]*Role{},
		groups:   map[string][]UserGroup{},
		sessions: map[string]*Session{},
		tokens:   map[string]*APIToken{},
		rules:    map[string][]RoleRule{},
	}
}

func (f *fakeStore) FindUser(_ context.Context, id string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListUsers(_ context.Context, ids []string) ([]*User, error) {
	var out []*User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) FindRole(_ context.Context, id string) (*Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) UserGroups(_ context.Context, userID string) ([]UserGroup, error) {
	return f.groups[userID], nil
}

func (f *fakeStore) RecordFailedLogin(context.Context, string, time.Time, string) error {
	return errors.New("not implemented")
}

func (f *fakeStore) ResetFailedLogins(context.Context, string) error {
	return errors.New("not implemented")
}

func (f *fakeStore) CreateSession(_ context.Context, s *Session) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeStore) FindActiveSession(_ context.Context, id string) (*Session, error) {
	s, ok := f.sessions[id]
	if !ok || s.Status != SessionStatusActive {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) TouchSession(_ context.Context, id string, _ time.Time) error {
	f.touchedSess = append(f.touchedSess, id)
	return f.touchErr
}

func (f *fakeStore) MarkSessionPassive(_ context.Context, id string) error {
	f.passive = append(f.passive, id)
	if s, ok := f.sessions[id]; ok {
		s.Status = SessionStatusPassive
	}
	return nil
}

func (f *fakeStore) FindTokenByHash(_ context.Context, hash string) (*APIToken, error) {
	for _, t := range f.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) FindToken(_ context.Context, id string) (*APIToken, error) {
	t, ok := f.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListTokens(context.Context, TokenFilter) ([]*APIToken, error) {
	return nil, nil
}

func (f *fakeStore) CreateToken(_ context.Context, tok *APIToken) error {
	f.tokens[tok.ID] = tok
	return nil
}

func (f *fakeStore) SetTokenHash(_ context.Context, id, hash, _ string, _ time.Time) error {
	t, ok := f.tokens[id]
	if !ok {
		return ErrNotFound
	}
	t.TokenHash = hash
	return nil
}

func (f *fakeStore) TouchToken(_ context.Context, id string, _ time.Time) error {
	f.touchedToken = append(f.touchedToken, id)
	return f.touchErr
}

func (f *fakeStore) DeleteTokens(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.tokens, id)
	}
	return nil
}

func (f *fakeStore) RoleRules(_ context.Context, roleID string, names []string, prefix string) ([]RoleRule, error) {
	f.mu.Lock()
	f.ruleQueries++
	f.mu.Unlock()
	var out []RoleRule
	for _, r := range f.rules[roleID] {
		if strings.HasPrefix(r.Name, prefix) {
			out = append(out, r)
			continue
		}
		for _, n := range names {
			if r.Name == n {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}
