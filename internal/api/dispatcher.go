package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"sentinel.org/internal/audit"
	"sentinel.org/internal/auth"
	"sentinel.org/internal/obs"
)

// ReservedParam is stripped from every call before the handler sees it.
const ReservedParam = "nopermissions"

// loginMethod keeps its transaction even when it fails so that failed
// attempt counters persist.
const loginMethod = "user.login"

// Request is one API call as received by a transport.
type Request struct {
	Service string
	Method  string
	Params  json.RawMessage
	// Auth is nil when the caller sent no credential at all.
	Auth *string
}

// ResponseError is the error half of a Response.
type ResponseError struct {
	Code    Code     `json:"code"`
	Message string   `json:"message"`
	Debug   []string `json:"debug,omitempty"`
}

// Response carries either Result or Error, never both.
type Response struct {
	Result any
	Error  *ResponseError
}

// OK reports whether the call succeeded.
func (r Response) OK() bool { return r.Error == nil }

// Authenticator resolves a bearer into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (auth.Principal, error)
}

// Authorizer decides whether a principal may call a method.
type Authorizer interface {
	IsAllowed(ctx context.Context, p auth.Principal, service, method string, req auth.Requirement) (bool, error)
}

// Transactor opens or joins the request transaction.
type Transactor interface {
	Begin(ctx context.Context) (context.Context, bool, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Dispatcher validates, authenticates, authorizes and runs API calls.
type Dispatcher struct {
	registry *Registry
	authn    Authenticator
	authz    Authorizer
	tx       Transactor
	logf     func(map[string]any)
}

// DispatcherOption configures Dispatcher behavior.
type DispatcherOption func(*Dispatcher) error

// WithLogger routes failure logs to fn.
func WithLogger(fn func(map[string]any)) DispatcherOption {
	return func(d *Dispatcher) error {
		if fn != nil {
			d.logf = fn
		}
		return nil
	}
}

// NewDispatcher wires the dispatcher. The registry must already be valid.
func NewDispatcher(reg *Registry, authn Authenticator, authz Authorizer, tx Transactor, opts ...DispatcherOption) (*Dispatcher, error) {
	switch {
	case reg == nil:
		return nil, errors.New("api: registry is required")
	case authn == nil:
		return nil, errors.New("api: authenticator is required")
	case authz == nil:
		return nil, errors.New("api: authorizer is required")
	case tx == nil:
		return nil, errors.New("api: transactor is required")
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{registry: reg, authn: authn, authz: authz, tx: tx, logf: obs.LogRequest}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Registry returns the method registry the dispatcher serves.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Call runs one API call. It never panics and never returns a partially
// filled response.
func (d *Dispatcher) Call(ctx context.Context, req Request) Response {
	start := time.Now()
	service := strings.ToLower(strings.TrimSpace(req.Service))
	method := strings.ToLower(strings.TrimSpace(req.Method))

	resp := d.call(ctx, service, method, req)

	svcLabel, methodLabel := "unknown", "unknown"
	if d.registry.IsValidMethod(service, method) {
		svcLabel, methodLabel = service, method
	}
	outcome := "ok"
	if resp.Error != nil {
		outcome = resp.Error.Code.String()
		d.logf(map[string]any{
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
			"level":      "warn",
			"msg":        "api call failed",
			"service":    req.Service,
			"method":     req.Method,
			"code":       int(resp.Error.Code),
			"error":      resp.Error.Message,
			"request_id": audit.RequestIDFromContext(ctx),
		})
	}
	obs.ObserveCall(svcLabel, methodLabel, outcome, time.Since(start))
	return resp
}

func (d *Dispatcher) call(ctx context.Context, service, method string, req Request) Response {
	if !d.registry.IsValidService(service) {
		return failure(Errorf(CodeNoSuchMethod, `Incorrect API "%s".`, req.Service), false)
	}
	mr, ok := d.registry.Rule(service, method)
	if !ok {
		return failure(Errorf(CodeNoSuchMethod, `Incorrect method "%s.%s".`, req.Service, req.Method), false)
	}
	name := mr.Name()

	requiresAuth := RequiresAuth(service, method)
	if !requiresAuth && req.Auth != nil {
		return failure(ParamError(`The "%s" method must be called without the "auth" parameter.`, name), false)
	}

	var principal auth.Principal
	if requiresAuth {
		bearer := ""
		if req.Auth != nil {
			bearer = *req.Auth
		}
		p, err := d.authn.Authenticate(ctx, bearer)
		if err != nil {
			_ = audit.LogEvent(ctx, audit.EventAuthFailed, map[string]any{"method": name, "reason": err.Error()})
			return failure(AsError(err), false)
		}
		principal = p
		ctx = auth.ContextWithPrincipal(ctx, principal)

		allowed, err := d.authz.IsAllowed(ctx, principal, service, method, mr.Requirement)
		if err != nil {
			return failure(AsError(err), principal.DebugMode)
		}
		if !allowed {
			_ = audit.LogEvent(ctx, audit.EventAccessDenied, map[string]any{"method": name})
			return failure(PermissionError(`No permissions to call "%s".`, name), principal.DebugMode)
		}
	}

	params, err := stripReserved(req.Params)
	if err != nil {
		return failure(err, principal.DebugMode)
	}

	h, ok := d.registry.handler(service, method)
	if !ok {
		return failure(Errorf(CodeInternal, `Method "%s" has no handler.`, name), principal.DebugMode)
	}

	txCtx, owns, err := d.tx.Begin(ctx)
	if err != nil {
		return failure(AsError(err), principal.DebugMode)
	}

	result, err := invoke(txCtx, h, params)
	if err == nil {
		if owns {
			if cerr := d.tx.Commit(txCtx); cerr != nil {
				return failure(AsError(cerr), principal.DebugMode)
			}
		}
		return Response{Result: result}
	}

	if owns {
		finish, verb := d.tx.Rollback, "rollback"
		if name == loginMethod {
			finish, verb = d.tx.Commit, "commit"
		}
		if ferr := finish(txCtx); ferr != nil {
			d.logf(map[string]any{
				"level":  "error",
				"msg":    "transaction " + verb + " failed",
				"method": name,
				"error":  ferr.Error(),
			})
		}
	}
	return failure(err, principal.DebugMode)
}

func invoke(ctx context.Context, h HandlerFunc, params json.RawMessage) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			result = nil
			err = &panicError{value: v, stack: debug.Stack()}
		}
	}()
	return h(ctx, params)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

// failure converts err into the error half of a response. Debug data is
// only attached for callers in debug mode.
func failure(err error, debugMode bool) Response {
	apiErr := AsError(err)
	re := &ResponseError{Code: apiErr.Code, Message: apiErr.Message}
	if debugMode {
		re.Debug = trace(err)
	}
	return Response{Error: re}
}

func trace(err error) []string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, e.Error())
	}
	var pe *panicError
	if errors.As(err, &pe) {
		for _, l := range strings.Split(strings.TrimSpace(string(pe.stack)), "\n") {
			lines = append(lines, strings.TrimSpace(l))
		}
	}
	return lines
}

// stripReserved removes ReservedParam from object params.
func stripReserved(params json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return params, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, Wrap(CodeParametersInvalid, err, "Invalid parameters.")
	}
	if _, ok := obj[ReservedParam]; !ok {
		return params, nil
	}
	delete(obj, ReservedParam)
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("api: encode params: %w", err)
	}
	return out, nil
}
