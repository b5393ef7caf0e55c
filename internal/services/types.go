package services

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("services: not found")
	ErrConflict = errors.New("services: already exists")
)

const (
	HostStatusMonitored   = 0
	HostStatusUnmonitored = 1
)

// Host is a monitored host.
type Host struct {
	ID          string `json:"hostid"`
	Host        string `json:"host"`
	Name        string `json:"name"`
	Status      int    `json:"status"`
	Description string `json:"description"`
}

// HostFilter narrows host listings. Zero values match everything.
type HostFilter struct {
	IDs        []string
	Hosts      []string
	NameSearch string
	Limit      int
}

// HostUpdate changes the non-nil fields of one host.
type HostUpdate struct {
	ID          string
	Host        *string
	Name        *string
	Status      *int
	Description *string
}

// HostStore persists hosts.
type HostStore interface {
	ListHosts(ctx context.Context, f HostFilter) ([]Host, error)
	CreateHost(ctx context.Context, h *Host) error
	UpdateHost(ctx context.Context, u HostUpdate) error
	DeleteHosts(ctx context.Context, ids []string) error
}

// Settings holds the global frontend settings.
type Settings struct {
	LoginAttempts int    `json:"login_attempts"`
	LoginBlock    int    `json:"login_block"`
	DefaultTheme  string `json:"default_theme"`
	DefaultLang   string `json:"default_lang"`
	DefaultTZ     string `json:"default_timezone"`
	WorkPeriod    string `json:"work_period"`
	SearchLimit   int    `json:"search_limit"`
}

// DefaultSettings are used for any value missing from storage.
func DefaultSettings() Settings {
	return Settings{
		LoginAttempts: 5,
		LoginBlock:    30,
		DefaultTheme:  "blue-theme",
		DefaultLang:   "en_US",
		DefaultTZ:     "system",
		WorkPeriod:    "1-5,09:00-18:00",
		SearchLimit:   1000,
	}
}

// SettingsUpdate changes the non-nil settings.
type SettingsUpdate struct {
	LoginAttempts *int    `json:"login_attempts,omitempty" validate:"omitempty,min=1,max=32"`
	LoginBlock    *int    `json:"login_block,omitempty" validate:"omitempty,min=30,max=3600"`
	DefaultTheme  *string `json:"default_theme,omitempty" validate:"omitempty,oneof=blue-theme dark-theme hc-light hc-dark"`
	DefaultLang   *string `json:"default_lang,omitempty" validate:"omitempty,min=2,max=5"`
	DefaultTZ     *string `json:"default_timezone,omitempty" validate:"omitempty,max=50"`
	WorkPeriod    *string `json:"work_period,omitempty" validate:"omitempty,max=255"`
	SearchLimit   *int    `json:"search_limit,omitempty" validate:"omitempty,min=1,max=999999"`
}

// Fields lists the names of the settings the update touches.
func (u SettingsUpdate) Fields() []string {
	var out []string
	if u.LoginAttempts != nil {
		out = append(out, "login_attempts")
	}
	if u.LoginBlock != nil {
		out = append(out, "login_block")
	}
	if u.DefaultTheme != nil {
		out = append(out, "default_theme")
	}
	if u.DefaultLang != nil {
		out = append(out, "default_lang")
	}
	if u.DefaultTZ != nil {
		out = append(out, "default_timezone")
	}
	if u.WorkPeriod != nil {
		out = append(out, "work_period")
	}
	if u.SearchLimit != nil {
		out = append(out, "search_limit")
	}
	return out
}

// SettingsStore persists the settings row.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, u SettingsUpdate) error
}
