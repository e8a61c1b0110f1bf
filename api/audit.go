package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of credential or token action being logged.
type AuditEvent string

const (
	AuditCredentialSaved   AuditEvent = "credential_saved"
	AuditCredentialRemoved AuditEvent = "credential_removed"
	AuditTokenInvalidated  AuditEvent = "token_invalidated"
)

// auditLogger wraps slog.Logger for structured audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry. Secrets are never passed here.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}
