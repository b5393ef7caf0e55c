package pg

import (
	"context"
	"fmt"
	"strings"

	"sentinel.org/internal/services"
)

func (s *Store) ListHosts(ctx context.Context, f services.HostFilter) ([]services.Host, error) {
	query := `select hostid, host, name, status, description from hosts where true`
	var args []any
	if len(f.IDs) > 0 {
		var marks string
		marks, args = inList(args, f.IDs)
		query += ` and hostid in (` + marks + `)`
	}
	if len(f.Hosts) > 0 {
		var marks string
		marks, args = inList(args, f.Hosts)
		query += ` and host in (` + marks + `)`
	}
	if search := strings.TrimSpace(f.NameSearch); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		query += fmt.Sprintf(` and name ilike $%d`, len(args))
	}
	query += ` order by host`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` limit $%d`, len(args))
	}

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []services.Host
	for rows.Next() {
		var h services.Host
		if err := rows.Scan(&h.ID, &h.Host, &h.Name, &h.Status, &h.Description); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) CreateHost(ctx context.Context, h *services.Host) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		insert into hosts (hostid, host, name, status, description)
		values ($1, $2, $3, $4, $5)
	`, h.ID, h.Host, h.Name, h.Status, h.Description)
	if isUniqueViolation(err) {
		return services.ErrConflict
	}
	return err
}

func (s *Store) UpdateHost(ctx context.Context, u services.HostUpdate) error {
	var (
		sets []string
		args = []any{u.ID}
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Host != nil {
		add("host", *u.Host)
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if len(sets) == 0 {
		return nil
	}
	res, err := s.q(ctx).ExecContext(ctx, `update hosts set `+strings.Join(sets, ", ")+` where hostid = $1`, args...)
	if isUniqueViolation(err) {
		return services.ErrConflict
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrNotFound
	}
	return nil
}

// DeleteHosts removes all ids or none: a missing id fails the whole call.
func (s *Store) DeleteHosts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	marks, args := inList(nil, ids)
	res, err := s.q(ctx).ExecContext(ctx, `delete from hosts where hostid in (`+marks+`)`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != int64(len(ids)) {
		return services.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
