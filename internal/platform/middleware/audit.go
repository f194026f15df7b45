package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinic/internal/platform/auth"
)

// AuditEntry records one state-changing request against the API.
type AuditEntry struct {
	UserID     string
	Role       string
	Resource   string
	ResourceID string
	Action     string // create, update, delete
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every mutating request (bookings, cancellations, payment and
// status changes) with the acting user. It must run after authentication so
// the actor is on the context. Reads are not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := methodAction(req.Method)
			if action == "" {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			resource, resourceID := resourceOf(req.URL.Path)
			entry := AuditEntry{
				Resource:   resource,
				ResourceID: resourceID,
				Action:     action,
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			if actor, ok := auth.ActorFromContext(req.Context()); ok {
				entry.UserID = actor.UserID.String()
				entry.Role = string(actor.Role)
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if status >= 400 {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("state_change")

			return err
		}
	}
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// resourceOf splits /api/<resource>/<id>/... into the resource name and the
// first UUID segment after it, if any.
//
//	/api/payments                     -> payments, ""
//	/api/payments/<id>/refund         -> payments, <id>
//	/api/appointments/<id>/status     -> appointments, <id>
func resourceOf(path string) (string, string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	for _, s := range segments[1:] {
		if _, err := uuid.Parse(s); err == nil {
			return segments[0], s
		}
	}
	return segments[0], ""
}
