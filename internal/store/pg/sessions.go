package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sentinel.org/internal/auth"
)

func (s *Store) CreateSession(ctx context.Context, sess *auth.Session) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		insert into sessions (sessionid, userid, lastaccess, status)
		values ($1, $2, $3, $4)
	`, sess.ID, sess.UserID, sess.LastAccess.UTC(), sess.Status)
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	return err
}

func (s *Store) FindActiveSession(ctx context.Context, id string) (*auth.Session, error) {
	var sess auth.Session
	err := s.q(ctx).QueryRowContext(ctx, `
		select sessionid, userid, lastaccess, status
		from sessions
		where sessionid = $1 and status = $2
	`, id, auth.SessionStatusActive).Scan(&sess.ID, &sess.UserID, &sess.LastAccess, &sess.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// TouchSession runs outside the request transaction: a lastaccess update
// must not be lost when the call itself rolls back.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB().ExecContext(ctx, `update sessions set lastaccess = $2 where sessionid = $1`, id, at.UTC())
	return err
}

func (s *Store) MarkSessionPassive(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `update sessions set status = $2 where sessionid = $1`, id, auth.SessionStatusPassive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
