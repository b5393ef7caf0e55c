package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"sentinel.org/internal/auth"
)

type memStore struct {
	users    map[string]*auth.User
	roles    map[string]*auth.Role
	groups   map[string][]auth.UserGroup
	sessions map[string]*auth.Session
	tokens   map[string]*auth.APIToken
	hosts    map[string]Host
	settings Settings
	rulesFor map[string][]auth.RoleRule
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*auth.User{},
		roles:    map[string]*auth.Role{},
		groups:   map[string][]auth.UserGroup{},
		sessions: map[string]*auth.Session{},
		tokens:   map[string]*auth.APIToken{},
		hosts:    map[string]Host{},
		settings: DefaultSettings(),
	}
}

func (m *memStore) FindUser(_ context.Context, id string) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindUserByUsername(_ context.Context, name string) (*auth.User, error) {
	for _, u := range m.users {
		if u.Username == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memStore) ListUsers(_ context.Context, ids []string) ([]*auth.User, error) {
	var out []*auth.User
	for id, u := range m.users {
		if len(ids) == 0 || contains(ids, id) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memStore) FindRole(_ context.Context, id string) (*auth.Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r, nil
}

func (m *memStore) UserGroups(_ context.Context, userID string) ([]auth.UserGroup, error) {
	return m.groups[userID], nil
}

func (m *memStore) RecordFailedLogin(_ context.Context, userID string, at time.Time, ip string) error {
	u := m.users[userID]
	u.AttemptFailed++
	u.AttemptClock = at
	u.AttemptIP = ip
	return nil
}

func (m *memStore) ResetFailedLogins(_ context.Context, userID string) error {
	m.users[userID].AttemptFailed = 0
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s *auth.Session) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) FindActiveSession(_ context.Context, id string) (*auth.Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != auth.SessionStatusActive {
		return nil, auth.ErrNotFound
	}
	return s, nil
}

func (m *memStore) TouchSession(context.Context, string, time.Time) error { return nil }

func (m *memStore) MarkSessionPassive(_ context.Context, id string) error {
	s, ok := m.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.Status = auth.SessionStatusPassive
	return nil
}

func (m *memStore) FindTokenByHash(_ context.Context, hash string) (*auth.APIToken, error) {
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return t, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memStore) FindToken(_ context.Context, id string) (*auth.APIToken, error) {
	t, ok := m.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return t, nil
}

func (m *memStore) ListTokens(_ context.Context, f auth.TokenFilter) ([]*auth.APIToken, error) {
	var out []*auth.APIToken
	for id, t := range m.tokens {
		if len(f.TokenIDs) > 0 && !contains(f.TokenIDs, id) {
			continue
		}
		if len(f.UserIDs) > 0 && !contains(f.UserIDs, t.UserID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateToken(_ context.Context, t *auth.APIToken) error {
	for _, existing := range m.tokens {
		if existing.UserID == t.UserID && existing.Name == t.Name {
			return auth.ErrConflict
		}
	}
	if _, ok := m.users[t.UserID]; !ok {
		return auth.ErrNotFound
	}
	m.tokens[t.ID] = t
	return nil
}

func (m *memStore) SetTokenHash(_ context.Context, id, hash, creator string, at time.Time) error {
	t, ok := m.tokens[id]
	if !ok {
		return auth.ErrNotFound
	}
	t.TokenHash = hash
	t.CreatorID = creator
	t.CreatedAt = at
	return nil
}

func (m *memStore) TouchToken(context.Context, string, time.Time) error { return nil }

func (m *memStore) DeleteTokens(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(m.tokens, id)
	}
	return nil
}

func (m *memStore) RoleRules(_ context.Context, roleID string, names []string, prefix string) ([]auth.RoleRule, error) {
	var out []auth.RoleRule
	for _, r := range m.rulesFor[roleID] {
		if contains(names, r.Name) || strings.HasPrefix(r.Name, prefix) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListHosts(_ context.Context, f HostFilter) ([]Host, error) {
	var out []Host
	for _, h := range m.hosts {
		if len(f.IDs) > 0 && !contains(f.IDs, h.ID) {
			continue
		}
		if len(f.Hosts) > 0 && !contains(f.Hosts, h.Host) {
			continue
		}
		if f.NameSearch != "" && !strings.Contains(strings.ToLower(h.Name), strings.ToLower(f.NameSearch)) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) CreateHost(_ context.Context, h *Host) error {
	for _, existing := range m.hosts {
		if existing.Host == h.Host {
			return ErrConflict
		}
	}
	m.hosts[h.ID] = *h
	return nil
}

func (m *memStore) UpdateHost(_ context.Context, u HostUpdate) error {
	h, ok := m.hosts[u.ID]
	if !ok {
		return ErrNotFound
	}
	if u.Host != nil {
		h.Host = *u.Host
	}
	if u.Name != nil {
		h.Name = *u.Name
	}
	if u.Status != nil {
		h.Status = *u.Status
	}
	if u.Description != nil {
		h.Description = *u.Description
	}
	m.hosts[u.ID] = h
	return nil
}

func (m *memStore) DeleteHosts(_ context.Context, ids []string) error {
	for _, id := range ids {
		if _, ok := m.hosts[id]; !ok {
			return ErrNotFound
		}
	}
	for _, id := range ids {
		delete(m.hosts, id)
	}
	return nil
}

func (m *memStore) GetSettings(context.Context) (Settings, error) { return m.settings, nil }

func (m *memStore) UpdateSettings(_ context.Context, u SettingsUpdate) error {
	if u.LoginAttempts != nil {
		m.settings.LoginAttempts = *u.LoginAttempts
	}
	if u.LoginBlock != nil {
		m.settings.LoginBlock = *u.LoginBlock
	}
	if u.DefaultTheme != nil {
		m.settings.DefaultTheme = *u.DefaultTheme
	}
	if u.DefaultLang != nil {
		m.settings.DefaultLang = *u.DefaultLang
	}
	if u.DefaultTZ != nil {
		m.settings.DefaultTZ = *u.DefaultTZ
	}
	if u.WorkPeriod != nil {
		m.settings.WorkPeriod = *u.WorkPeriod
	}
	if u.SearchLimit != nil {
		m.settings.SearchLimit = *u.SearchLimit
	}
	return nil
}
