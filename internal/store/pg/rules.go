package pg

import (
	"context"
	"strconv"

	"sentinel.org/internal/auth"
)

// RoleRules reads every rule of roleID named in names or prefixed by
// prefix with a single query.
func (s *Store) RoleRules(ctx context.Context, roleID string, names []string, prefix string) ([]auth.RoleRule, error) {
	args := []any{roleID}
	cond := `false`
	if len(names) > 0 {
		var marks string
		marks, args = inList(args, names)
		cond = `name in (` + marks + `)`
	}
	if prefix != "" {
		args = append(args, prefix+"%")
		cond += ` or name like $` + strconv.Itoa(len(args))
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		select roleid, type, name, value_int, value_str
		from role_rule
		where roleid = $1 and (`+cond+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.RoleRule
	for rows.Next() {
		var r auth.RoleRule
		if err := rows.Scan(&r.RoleID, &r.Type, &r.Name, &r.ValueInt, &r.ValueStr); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
