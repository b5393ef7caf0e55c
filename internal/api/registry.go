package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sentinel.org/internal/auth"
)

// HandlerFunc executes one API method with raw JSON params.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// MethodRule is the static description of one callable method.
type MethodRule struct {
	Service string
	Method  string
	auth.Requirement
}

// Name returns "service.method".
func (r MethodRule) Name() string { return r.Service + "." + r.Method }

func rule(service, method string, min auth.UserType, action string) MethodRule {
	return MethodRule{Service: service, Method: method, Requirement: auth.Requirement{MinUserType: min, Action: action}}
}

// DefaultRules is the compiled-in method table.
func DefaultRules() []MethodRule {
	return []MethodRule{
		rule("apiinfo", "version", auth.UserTypeUser, ""),

		rule("user", "login", auth.UserTypeUser, ""),
		rule("user", "logout", auth.UserTypeUser, ""),
		rule("user", "checkauthentication", auth.UserTypeUser, ""),
		rule("user", "get", auth.UserTypeUser, ""),

		rule("host", "get", auth.UserTypeUser, ""),
		rule("host", "create", auth.UserTypeAdmin, ""),
		rule("host", "update", auth.UserTypeAdmin, ""),
		rule("host", "delete", auth.UserTypeAdmin, ""),

		rule("settings", "get", auth.UserTypeUser, ""),
		rule("settings", "getglobal", auth.UserTypeUser, ""),
		rule("settings", "update", auth.UserTypeSuperAdmin, ""),

		rule("token", "get", auth.UserTypeUser, ""),
		rule("token", "create", auth.UserTypeUser, auth.ActionManageAPITokens),
		rule("token", "generate", auth.UserTypeUser, auth.ActionManageAPITokens),
		rule("token", "delete", auth.UserTypeUser, auth.ActionManageAPITokens),
	}
}

// Methods callable without credentials. Passing credentials to them is an error.
var noAuthMethods = map[string]struct{}{
	"user.login":               {},
	"user.checkauthentication": {},
	"apiinfo.version":          {},
	"settings.getglobal":       {},
}

// RequiresAuth reports whether service.method needs a bearer.
func RequiresAuth(service, method string) bool {
	_, exempt := noAuthMethods[strings.ToLower(service)+"."+strings.ToLower(method)]
	return !exempt
}

// Registry maps service.method onto a rule and a handler.
type Registry struct {
	services map[string]struct{}
	rules    map[string]MethodRule
	handlers map[string]HandlerFunc
	problems []string
}

// NewRegistry builds a registry from rules. Names are stored lower-cased.
func NewRegistry(rules []MethodRule) (*Registry, error) {
	r := &Registry{
		services: make(map[string]struct{}),
		rules:    make(map[string]MethodRule, len(rules)),
		handlers: make(map[string]HandlerFunc, len(rules)),
	}
	for _, mr := range rules {
		mr.Service = strings.ToLower(strings.TrimSpace(mr.Service))
		mr.Method = strings.ToLower(strings.TrimSpace(mr.Method))
		if mr.Service == "" || mr.Method == "" {
			return nil, errors.New("api: rule with empty service or method")
		}
		if !mr.MinUserType.Valid() {
			return nil, fmt.Errorf("api: rule %s has invalid user type %d", mr.Name(), mr.MinUserType)
		}
		if _, dup := r.rules[mr.Name()]; dup {
			return nil, fmt.Errorf("api: duplicate rule %s", mr.Name())
		}
		r.services[mr.Service] = struct{}{}
		r.rules[mr.Name()] = mr
	}
	return r, nil
}

// IsValidService reports whether any method is registered under name.
func (r *Registry) IsValidService(name string) bool {
	_, ok := r.services[strings.ToLower(name)]
	return ok
}

// IsValidMethod reports whether service.method has a rule.
func (r *Registry) IsValidMethod(service, method string) bool {
	_, ok := r.Rule(service, method)
	return ok
}

// Rule returns the rule for service.method.
func (r *Registry) Rule(service, method string) (MethodRule, bool) {
	mr, ok := r.rules[strings.ToLower(service)+"."+strings.ToLower(method)]
	return mr, ok
}

// Handle binds h to service.method. Mistakes are reported by Validate.
func (r *Registry) Handle(service, method string, h HandlerFunc) {
	name := strings.ToLower(service) + "." + strings.ToLower(method)
	switch {
	case h == nil:
		r.problems = append(r.problems, "nil handler for "+name)
	case r.handlers[name] != nil:
		r.problems = append(r.problems, "duplicate handler for "+name)
	default:
		if _, ok := r.rules[name]; !ok {
			r.problems = append(r.problems, "handler without rule: "+name)
		}
		r.handlers[name] = h
	}
}

func (r *Registry) handler(service, method string) (HandlerFunc, bool) {
	h, ok := r.handlers[service+"."+method]
	return h, ok
}

// Validate checks that every rule has exactly one handler and every
// handler has a rule.
func (r *Registry) Validate() error {
	problems := append([]string(nil), r.problems...)
	for name := range r.rules {
		if _, ok := r.handlers[name]; !ok {
			problems = append(problems, "rule without handler: "+name)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("api: invalid registry: %s", strings.Join(problems, "; "))
}

// Methods lists every registered rule sorted by name.
func (r *Registry) Methods() []MethodRule {
	out := make([]MethodRule, 0, len(r.rules))
	for _, mr := range r.rules {
		out = append(out, mr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
