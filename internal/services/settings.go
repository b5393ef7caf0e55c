package services

import (
	"context"
	"fmt"
)

type SettingsGetParams struct {
	Output any `json:"output"`
}

func (s *Service) SettingsGet(ctx context.Context, _ SettingsGetParams) (Settings, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return st, nil
}

// GlobalSettings is the subset of settings readable without logging in.
type GlobalSettings struct {
	DefaultTheme string `json:"default_theme"`
	DefaultLang  string `json:"default_lang"`
	DefaultTZ    string `json:"default_timezone"`
}

func (s *Service) SettingsGetGlobal(ctx context.Context, _ SettingsGetParams) (GlobalSettings, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return GlobalSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return GlobalSettings{DefaultTheme: st.DefaultTheme, DefaultLang: st.DefaultLang, DefaultTZ: st.DefaultTZ}, nil
}

// SettingsUpdate returns the names of the updated settings.
func (s *Service) SettingsUpdate(ctx context.Context, u SettingsUpdate) ([]string, error) {
	fields := u.Fields()
	if len(fields) == 0 {
		return []string{}, nil
	}
	if err := s.store.UpdateSettings(ctx, u); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return fields, nil
}
