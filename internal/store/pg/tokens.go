package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sentinel.org/internal/auth"
)

const tokenColumns = `tokenid, name, description, userid, coalesce(token, ''), status, expires_at, lastaccess, created_at, coalesce(creator_userid, '')`

func scanToken(row interface{ Scan(...any) error }) (*auth.APIToken, error) {
	var (
		t                        auth.APIToken
		expires, last, createdAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.UserID, &t.TokenHash, &t.Status, &expires, &last, &createdAt, &t.CreatorID); err != nil {
		return nil, err
	}
	if expires.Valid {
		t.ExpiresAt = expires.Time
	}
	if last.Valid {
		t.LastAccess = last.Time
	}
	if createdAt.Valid {
		t.CreatedAt = createdAt.Time
	}
	return &t, nil
}

func (s *Store) FindTokenByHash(ctx context.Context, hash string) (*auth.APIToken, error) {
	t, err := scanToken(s.q(ctx).QueryRowContext(ctx, `select `+tokenColumns+` from token where token = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return t, err
}

func (s *Store) FindToken(ctx context.Context, id string) (*auth.APIToken, error) {
	t, err := scanToken(s.q(ctx).QueryRowContext(ctx, `select `+tokenColumns+` from token where tokenid = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTokens(ctx context.Context, f auth.TokenFilter) ([]*auth.APIToken, error) {
	query := `select ` + tokenColumns + ` from token where true`
	var args []any
	if len(f.TokenIDs) > 0 {
		var marks string
		marks, args = inList(args, f.TokenIDs)
		query += ` and tokenid in (` + marks + `)`
	}
	if len(f.UserIDs) > 0 {
		var marks string
		marks, args = inList(args, f.UserIDs)
		query += ` and userid in (` + marks + `)`
	}
	query += ` order by tokenid`

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.APIToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateToken(ctx context.Context, t *auth.APIToken) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		insert into token (tokenid, name, description, userid, status, expires_at, created_at, creator_userid)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Name, t.Description, t.UserID, t.Status, nullTime(t.ExpiresAt), nullTime(t.CreatedAt), nullIfEmpty(t.CreatorID))
	switch {
	case isUniqueViolation(err):
		return auth.ErrConflict
	case isForeignKeyViolation(err):
		return auth.ErrNotFound
	}
	return err
}

// SetTokenHash stores a freshly generated token hash, replacing any earlier one.
func (s *Store) SetTokenHash(ctx context.Context, id, hash, creatorID string, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		update token set token = $2, creator_userid = $3, created_at = $4
		where tokenid = $1
	`, id, hash, nullIfEmpty(creatorID), at.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// TouchToken runs on the pool so the update survives a rolled back call.
func (s *Store) TouchToken(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB().ExecContext(ctx, `update token set lastaccess = $2 where tokenid = $1`, id, at.UTC())
	return err
}

func (s *Store) DeleteTokens(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	marks, args := inList(nil, ids)
	_, err := s.q(ctx).ExecContext(ctx, `delete from token where tokenid in (`+marks+`)`, args...)
	return err
}
