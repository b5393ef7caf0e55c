package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sentinel.org/internal/services"
)

// GetSettings reads the single settings row. A missing row yields defaults.
func (s *Store) GetSettings(ctx context.Context) (services.Settings, error) {
	st := services.DefaultSettings()
	err := s.q(ctx).QueryRowContext(ctx, `
		select login_attempts, login_block, default_theme, default_lang, default_timezone, work_period, search_limit
		from settings where settingsid = 1
	`).Scan(&st.LoginAttempts, &st.LoginBlock, &st.DefaultTheme, &st.DefaultLang, &st.DefaultTZ, &st.WorkPeriod, &st.SearchLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return services.DefaultSettings(), nil
	}
	if err != nil {
		return services.Settings{}, err
	}
	return st, nil
}

func (s *Store) UpdateSettings(ctx context.Context, u services.SettingsUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.LoginAttempts != nil {
		add("login_attempts", *u.LoginAttempts)
	}
	if u.LoginBlock != nil {
		add("login_block", *u.LoginBlock)
	}
	if u.DefaultTheme != nil {
		add("default_theme", *u.DefaultTheme)
	}
	if u.DefaultLang != nil {
		add("default_lang", *u.DefaultLang)
	}
	if u.DefaultTZ != nil {
		add("default_timezone", *u.DefaultTZ)
	}
	if u.WorkPeriod != nil {
		add("work_period", *u.WorkPeriod)
	}
	if u.SearchLimit != nil {
		add("search_limit", *u.SearchLimit)
	}
	if len(sets) == 0 {
		return nil
	}
	res, err := s.q(ctx).ExecContext(ctx, `update settings set `+strings.Join(sets, ", ")+` where settingsid = 1`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrNotFound
	}
	return nil
}
