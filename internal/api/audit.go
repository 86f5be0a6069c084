package api

import (
	"log/slog"
	"net/http"

	"github.com/edustack/edustack/internal/audit"
	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/ratelimit"
)

// auditLog emits a structured audit log entry for an admin action.
func auditLog(r *http.Request, action string, resourceType string, resourceID string, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", ratelimit.ClientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	if u := auth.UserFromContext(r.Context()); u != nil {
		attrs = append(attrs, "user_id", u.ID, "user_email", u.Email, "user_role", u.Role)
	}

	attrs = append(attrs, detail...)
	slog.Info("audit", attrs...)
}

// recordAuthEvent fills in the request details, logs ev and hands it to rec.
// rec may be nil.
func recordAuthEvent(r *http.Request, rec AuditRecorder, ev audit.Event) {
	ev.IP = ratelimit.ClientIP(r)
	ev.UserAgent = r.UserAgent()

	attrs := []any{
		"kind", ev.Kind,
		"email", ev.Email,
		"success", ev.Success,
		"ip", ev.IP,
		"request_id", RequestIDFromContext(r.Context()),
	}
	if ev.UserID != nil {
		attrs = append(attrs, "user_id", *ev.UserID)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}
	slog.Info("auth event", attrs...)

	if rec != nil {
		rec.Record(ev)
	}
}
