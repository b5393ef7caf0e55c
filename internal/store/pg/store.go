package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sentinel.org/internal/auth"
	"sentinel.org/internal/db"
	"sentinel.org/internal/services"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	_ auth.Store             = (*Store)(nil)
	_ services.HostStore     = (*Store)(nil)
	_ services.SettingsStore = (*Store)(nil)
)

// Store implements every persistence interface on PostgreSQL. Queries run
// inside the request transaction when the context carries one.
type Store struct {
	tx *db.TxManager
}

// Open connects to dsn through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(15 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return New(conn)
}

// New wraps an existing pool.
func New(conn *sql.DB) (*Store, error) {
	tx, err := db.NewTxManager(conn)
	if err != nil {
		return nil, err
	}
	return &Store{tx: tx}, nil
}

func (s *Store) Close() error { return s.tx.DB().Close() }

func (s *Store) DB() *sql.DB { return s.tx.DB() }

// Tx returns the transaction manager shared with the dispatcher.
func (s *Store) Tx() *db.TxManager { return s.tx }

func (s *Store) q(ctx context.Context) db.Querier { return s.tx.Querier(ctx) }

// --- helpers ---

// inList renders "$n,$n+1,..." for values and appends them to args.
func inList(args []any, values []string) (string, []any) {
	marks := make([]string, len(values))
	for i, v := range values {
		args = append(args, v)
		marks[i] = fmt.Sprintf("$%d", len(args))
	}
	return strings.Join(marks, ","), args
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrForeignKeyViolation
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
