package auth

import (
	"context"
	"time"
)

// Admin actions forwarded to the audit sink.
const (
	ActionDashboardLogin = "dashboard_login"
	ActionRevokeCode     = "revoke_code"
)

// LoginAttemptEvent describes one recorded login attempt.
type LoginAttemptEvent struct {
	SourceID  string
	Code      string
	Success   bool
	Reason    Reason
	Timestamp time.Time
}

// AdminActionEvent describes a privileged action.
type AdminActionEvent struct {
	Action    string
	ActorID   string
	Target    string
	Success   bool
	Timestamp time.Time
}

// AuditSink receives security events. Failures are logged and otherwise
// ignored; the in-memory state stays authoritative.
type AuditSink interface {
	RecordLoginAttempt(ctx context.Context, ev LoginAttemptEvent) error
	RecordAdminAction(ctx context.Context, ev AdminActionEvent) error
}

type nopAudit struct{}

func (nopAudit) RecordLoginAttempt(context.Context, LoginAttemptEvent) error { return nil }
func (nopAudit) RecordAdminAction(context.Context, AdminActionEvent) error   { return nil }
