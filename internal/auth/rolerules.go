package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role rule names.
const (
	RuleAPIAccess            = "api.access"
	RuleAPIMode              = "api.mode"
	RuleAPIMethodPrefix      = "api.method."
	RuleActionsDefaultAccess = "actions.default_access"

	ActionManageAPITokens = "actions.manage_api_tokens"
)

// Method patterns that match every method.
const (
	PatternWildcard      = "*"
	PatternWildcardAlias = "*.*"
)

// RoleRuleSet is the typed view of a role's rule rows.
type RoleRuleSet struct {
	// APIAccess false denies every API call.
	APIAccess bool
	// APIMode true treats MethodPatterns as an allow-list, false as a deny-list.
	APIMode             bool
	MethodPatterns      map[string]struct{}
	DefaultActionAccess bool
	ActionOverrides     map[string]bool
}

// NewRoleRuleSet builds a rule set from raw rows. Absent rules take their
// defaults: API access on, deny-list mode, actions allowed.
func NewRoleRuleSet(rows []RoleRule) RoleRuleSet {
	set := RoleRuleSet{
		APIAccess:           true,
		APIMode:             false,
		MethodPatterns:      make(map[string]struct{}),
		DefaultActionAccess: true,
		ActionOverrides:     make(map[string]bool),
	}
	for _, row := range rows {
		switch {
		case row.Name == RuleAPIAccess:
			set.APIAccess = row.ValueInt != 0
		case row.Name == RuleAPIMode:
			set.APIMode = row.ValueInt != 0
		case row.Name == RuleActionsDefaultAccess:
			set.DefaultActionAccess = row.ValueInt != 0
		case strings.HasPrefix(row.Name, RuleAPIMethodPrefix):
			if p := strings.ToLower(strings.TrimSpace(row.ValueStr)); p != "" {
				set.MethodPatterns[p] = struct{}{}
			}
		default:
			set.ActionOverrides[row.Name] = row.ValueInt != 0
		}
	}
	return set
}

// ActionAllowed resolves an action rule, falling back to the default access.
func (s RoleRuleSet) ActionAllowed(action string) bool {
	if v, ok := s.ActionOverrides[action]; ok {
		return v
	}
	return s.DefaultActionAccess
}

// MethodAllowed applies the method patterns to service.method. A hit
// returns the mode itself; a miss returns its negation. With no patterns
// configured every method is allowed.
func (s RoleRuleSet) MethodAllowed(service, method string) bool {
	if len(s.MethodPatterns) == 0 {
		return true
	}
	candidates := [...]string{
		PatternWildcard,
		PatternWildcardAlias,
		service + ".*",
		"*." + method,
		service + "." + method,
	}
	for _, c := range candidates {
		if _, ok := s.MethodPatterns[c]; ok {
			return s.APIMode
		}
	}
	return !s.APIMode
}

// Allows evaluates the whole rule set for a call already past the user
// type check.
func (s RoleRuleSet) Allows(service, method, action string) bool {
	if !s.APIAccess {
		return false
	}
	if action != "" && !s.ActionAllowed(action) {
		return false
	}
	return s.MethodAllowed(service, method)
}

// Authorizer answers whether a principal may call a method.
type Authorizer struct {
	rules RoleRuleStore
}

// NewAuthorizer constructs an Authorizer over the role rule store.
func NewAuthorizer(rules RoleRuleStore) (*Authorizer, error) {
	if rules == nil {
		return nil, errors.New("auth: role rule store is required")
	}
	return &Authorizer{rules: rules}, nil
}

// IsAllowed checks the user type floor first and only then loads the
// role's rules. Unknown user types are denied.
func (a *Authorizer) IsAllowed(ctx context.Context, p Principal, service, method string, req Requirement) (bool, error) {
	if !p.UserType.Valid() || p.UserType < req.MinUserType {
		return false, nil
	}
	service = strings.ToLower(service)
	method = strings.ToLower(method)

	names := []string{RuleAPIAccess, RuleAPIMode, RuleActionsDefaultAccess}
	if req.Action != "" {
		names = append(names, req.Action)
	}
	rows, err := a.rules.RoleRules(ctx, p.RoleID, names, RuleAPIMethodPrefix)
	if err != nil {
		return false, fmt.Errorf("auth: load role rules: %w", err)
	}
	return NewRoleRuleSet(rows).Allows(service, method, req.Action), nil
}
