package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"sentinel.org/internal/auth"
	"sentinel.org/internal/obs"
)

// Event names emitted by the API core.
const (
	EventLogin          = "user.login"
	EventLoginFailed    = "user.login_failed"
	EventLoginBlocked   = "user.login_blocked"
	EventLogout         = "user.logout"
	EventAuthFailed     = "api.auth_failed"
	EventAccessDenied   = "api.access_denied"
	EventTokenGenerated = "token.generated"
	EventTokenDeleted   = "token.deleted"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request, caller and
// credential details from the context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok && p.UserID != "" {
		entry["user_id"] = p.UserID
		entry["actor"] = string(p.Actor)
	}
	if ip := auth.ClientIPFromContext(ctx); ip != "" {
		entry["ip"] = ip
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
