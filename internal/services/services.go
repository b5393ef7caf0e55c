// Package services implements the API methods behind the dispatcher.
package services

import (
	"context"
	"errors"
	"time"

	"sentinel.org/internal/api"
	"sentinel.org/internal/auth"
)

// Store is everything the services persist.
type Store interface {
	auth.Store
	HostStore
	SettingsStore
}

// CredentialChecker validates a session id or API token on behalf of
// user.checkauthentication.
type CredentialChecker interface {
	CheckAuthentication(ctx context.Context, credential string, extend bool) (auth.Principal, error)
}

// Service holds the dependencies shared by every API method.
type Service struct {
	store   Store
	checker CredentialChecker
	version string
	now     func() time.Time
}

// Option configures Service behavior.
type Option func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithVersion sets the string reported by apiinfo.version.
func WithVersion(v string) Option {
	return func(s *Service) error {
		if v != "" {
			s.version = v
		}
		return nil
	}
}

// New constructs the services.
func New(store Store, checker CredentialChecker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("services: store is required")
	}
	if checker == nil {
		return nil, errors.New("services: credential checker is required")
	}
	s := &Service{store: store, checker: checker, version: "dev", now: time.Now}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register binds every method to reg.
func (s *Service) Register(reg *api.Registry) {
	reg.Handle("apiinfo", "version", api.Bind(s.APIVersion))

	reg.Handle("user", "login", api.Bind(s.UserLogin))
	reg.Handle("user", "logout", api.Bind(s.UserLogout))
	reg.Handle("user", "checkauthentication", api.Bind(s.UserCheckAuthentication))
	reg.Handle("user", "get", api.Bind(s.UserGet))

	reg.Handle("host", "get", api.Bind(s.HostGet))
	reg.Handle("host", "create", api.Bind(s.HostCreate))
	reg.Handle("host", "update", api.Bind(s.HostUpdate))
	reg.Handle("host", "delete", api.Bind(s.HostDelete))

	reg.Handle("settings", "get", api.Bind(s.SettingsGet))
	reg.Handle("settings", "getglobal", api.Bind(s.SettingsGetGlobal))
	reg.Handle("settings", "update", api.Bind(s.SettingsUpdate))

	reg.Handle("token", "get", api.Bind(s.TokenGet))
	reg.Handle("token", "create", api.Bind(s.TokenCreate))
	reg.Handle("token", "generate", api.Bind(s.TokenGenerate))
	reg.Handle("token", "delete", api.Bind(s.TokenDelete))
}

// errNoObject is the message for ids the caller cannot see or that do not exist.
const errNoObject = "No permissions to referred object or it does not exist!"

func caller(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return p, nil
}

func (s *Service) APIVersion(context.Context, api.NoParams) (string, error) {
	return s.version, nil
}
