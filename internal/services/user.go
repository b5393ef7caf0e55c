package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel.org/internal/api"
	"sentinel.org/internal/audit"
	"sentinel.org/internal/auth"
	"sentinel.org/internal/ids"
)

const (
	msgLoginFailed = "Incorrect user name or password or account is temporarily blocked."
	msgNoAccess    = "No permissions for system access."
)

// UserData is what login and checkauthentication return about the caller.
type UserData struct {
	UserID     string        `json:"userid"`
	Username   string        `json:"username"`
	Name       string        `json:"name"`
	Surname    string        `json:"surname"`
	RoleID     string        `json:"roleid"`
	Type       auth.UserType `json:"type"`
	AutoLogout int           `json:"autologout"`
	DebugMode  int           `json:"debug_mode"`
	SessionID  string        `json:"sessionid,omitempty"`
}

// Session returns the id of the session opened by login.
func (d UserData) Session() string { return d.SessionID }

type LoginParams struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=255"`
	UserData bool   `json:"userData"`
}

// UserLogin checks a password and opens a session. Failed attempts are
// written in the call transaction, which the dispatcher commits even
// though this method fails.
func (s *Service) UserLogin(ctx context.Context, p LoginParams) (any, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	user, err := s.store.FindUserByUsername(ctx, p.Username)
	if errors.Is(err, auth.ErrNotFound) {
		_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"username": p.Username})
		return nil, api.PermissionError(msgLoginFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	now := s.now()
	block := time.Duration(settings.LoginBlock) * time.Second
	if user.AttemptFailed >= settings.LoginAttempts && now.Sub(user.AttemptClock) < block {
		_ = audit.LogEvent(ctx, audit.EventLoginBlocked, map[string]any{"userid": user.ID})
		return nil, api.PermissionError(msgLoginFailed)
	}

	if err := auth.VerifyPassword(user.PasswordHash, p.Password); err != nil {
		if rerr := s.store.RecordFailedLogin(ctx, user.ID, now, auth.ClientIPFromContext(ctx)); rerr != nil {
			return nil, fmt.Errorf("record failed login: %w", rerr)
		}
		_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"userid": user.ID})
		return nil, api.PermissionError(msgLoginFailed)
	}

	groups, err := s.store.UserGroups(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("user groups: %w", err)
	}
	state := auth.EvaluateGroups(groups)
	if state.Disabled {
		return nil, api.PermissionError(msgNoAccess)
	}
	role, err := s.store.FindRole(ctx, user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("find role: %w", err)
	}

	if user.AttemptFailed > 0 {
		if err := s.store.ResetFailedLogins(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("reset failed logins: %w", err)
		}
	}
	sess := &auth.Session{ID: ids.NewSessionID(), UserID: user.ID, LastAccess: now, Status: auth.SessionStatusActive}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	_ = audit.LogEvent(ctx, audit.EventLogin, map[string]any{"userid": user.ID})

	if !p.UserData {
		return sess.ID, nil
	}
	data := userData(user, role.Type, state.Debug)
	data.SessionID = sess.ID
	return data, nil
}

// UserLogout ends the caller's session.
func (s *Service) UserLogout(ctx context.Context, _ api.NoParams) (bool, error) {
	p, err := caller(ctx)
	if err != nil {
		return false, err
	}
	if p.Actor != auth.ActorSession {
		return false, api.ParamError("Logout is only possible for sessions, not API tokens.")
	}
	if err := s.store.MarkSessionPassive(ctx, p.SessionID); err != nil && !errors.Is(err, auth.ErrNotFound) {
		return false, fmt.Errorf("end session: %w", err)
	}
	_ = audit.LogEvent(ctx, audit.EventLogout, map[string]any{"sessionid": p.SessionID})
	return true, nil
}

type CheckAuthenticationParams struct {
	SessionID string `json:"sessionid" validate:"required_without=Token,excluded_with=Token"`
	Token     string `json:"token" validate:"required_without=SessionID"`
	Extend    *bool  `json:"extend"`
}

// UserCheckAuthentication validates a session id or API token and
// returns who it belongs to.
func (s *Service) UserCheckAuthentication(ctx context.Context, p CheckAuthenticationParams) (UserData, error) {
	credential := p.SessionID
	if p.Token != "" {
		credential = p.Token
	}
	extend := p.Extend == nil || *p.Extend
	if p.Token != "" {
		// tokens are checked without touching lastaccess
		extend = false
	}
	principal, err := s.checker.CheckAuthentication(ctx, credential, extend)
	if err != nil {
		return UserData{}, err
	}
	user, err := s.store.FindUser(ctx, principal.UserID)
	if err != nil {
		return UserData{}, fmt.Errorf("find user: %w", err)
	}
	data := userData(user, principal.UserType, principal.DebugMode)
	data.SessionID = principal.SessionID
	return data, nil
}

type UserGetParams struct {
	UserIDs []string `json:"userids" validate:"omitempty,dive,required"`
	Output  any      `json:"output"`
}

// UserGet lists users. Callers below super admin only see themselves.
func (s *Service) UserGet(ctx context.Context, p UserGetParams) ([]*auth.User, error) {
	principal, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	userIDs := p.UserIDs
	if principal.UserType < auth.UserTypeSuperAdmin {
		if len(userIDs) > 0 && !contains(userIDs, principal.UserID) {
			return []*auth.User{}, nil
		}
		userIDs = []string{principal.UserID}
	}
	users, err := s.store.ListUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []*auth.User{}
	}
	return users, nil
}

func userData(u *auth.User, tp auth.UserType, debug bool) UserData {
	d := UserData{
		UserID:     u.ID,
		Username:   u.Username,
		Name:       u.Name,
		Surname:    u.Surname,
		RoleID:     u.RoleID,
		Type:       tp,
		AutoLogout: u.AutoLogout,
		DebugMode:  auth.GroupDebugDisabled,
	}
	if debug {
		d.DebugMode = auth.GroupDebugEnabled
	}
	return d
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
