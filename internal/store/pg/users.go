package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sentinel.org/internal/auth"
)

const userColumns = `userid, username, name, surname, passwd, roleid, autologout, attempt_failed, attempt_clock, attempt_ip`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u     auth.User
		clock sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Surname, &u.PasswordHash, &u.RoleID, &u.AutoLogout, &u.AttemptFailed, &clock, &u.AttemptIP); err != nil {
		return nil, err
	}
	if clock.Valid {
		u.AttemptClock = clock.Time
	}
	return &u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx, `select `+userColumns+` from users where userid = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx, `select `+userColumns+` from users where username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

// ListUsers returns the users with the given ids, or every user when ids is empty.
func (s *Store) ListUsers(ctx context.Context, ids []string) ([]*auth.User, error) {
	query := `select ` + userColumns + ` from users`
	var args []any
	if len(ids) > 0 {
		var marks string
		marks, args = inList(args, ids)
		query += ` where userid in (` + marks + `)`
	}
	query += ` order by username`
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) FindRole(ctx context.Context, roleID string) (*auth.Role, error) {
	var r auth.Role
	err := s.q(ctx).QueryRowContext(ctx, `select roleid, name, type from role where roleid = $1`, roleID).Scan(&r.ID, &r.Name, &r.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UserGroups(ctx context.Context, userID string) ([]auth.UserGroup, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		select g.usrgrpid, g.name, g.users_status, g.debug_mode
		from usrgrp g
		join users_groups ug on ug.usrgrpid = g.usrgrpid
		where ug.userid = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.UserGroup
	for rows.Next() {
		var g auth.UserGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.UsersStatus, &g.DebugMode); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) RecordFailedLogin(ctx context.Context, userID string, at time.Time, ip string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		update users
		set attempt_failed = attempt_failed + 1, attempt_clock = $2, attempt_ip = $3
		where userid = $1
	`, userID, at.UTC(), ip)
	return err
}

func (s *Store) ResetFailedLogins(ctx context.Context, userID string) error {
	_, err := s.q(ctx).ExecContext(ctx, `update users set attempt_failed = 0 where userid = $1`, userID)
	return err
}

// UpsertUser creates or replaces a user and puts it in groupID. Used for
// bootstrapping the first administrator.
func (s *Store) UpsertUser(ctx context.Context, u *auth.User, groupID string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		err := s.q(ctx).QueryRowContext(ctx, `
			insert into users (userid, username, name, surname, passwd, roleid, autologout)
			values ($1, $2, $3, $4, $5, $6, $7)
			on conflict (username) do update
			set passwd = excluded.passwd, roleid = excluded.roleid, attempt_failed = 0
			returning userid
		`, u.ID, u.Username, u.Name, u.Surname, u.PasswordHash, u.RoleID, u.AutoLogout).Scan(&u.ID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: role %s", auth.ErrNotFound, u.RoleID)
			}
			return err
		}
		if groupID == "" {
			return nil
		}
		if _, err := s.q(ctx).ExecContext(ctx, `
			insert into users_groups (usrgrpid, userid) values ($1, $2)
			on conflict do nothing
		`, groupID, u.ID); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: group %s", auth.ErrNotFound, groupID)
			}
			return err
		}
		return nil
	})
}
