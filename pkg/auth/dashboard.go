package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math"
	"time"

	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/auth/ratelimit"
)

// ProgressSource reports a user's training completion percentage (0-100).
// Content tracking lives outside this package.
type ProgressSource interface {
	Progress(userID string) int
}

type noProgress struct{}

func (noProgress) Progress(string) int { return 0 }

// DashboardLoginResult is the outcome of AttemptDashboardLogin.
type DashboardLoginResult struct {
	Success        bool   `json:"success"`
	DashboardToken string `json:"dashboard_token,omitempty"`
	Reason         Reason `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
}

// DashboardUser is one training user as shown on the admin dashboard.
type DashboardUser struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	LastAction     string    `json:"last_action"`
	LastActionTime time.Time `json:"last_action_time"`
	IsActive       bool      `json:"is_active"`
	IsBlocked      bool      `json:"is_blocked"`
}

// DashboardView aggregates the training users.
type DashboardView struct {
	Users          []DashboardUser `json:"users"`
	TotalUsers     int             `json:"total_users"`
	ActiveUsers    int             `json:"active_users"`
	CompletionRate int             `json:"completion_rate"`
}

// SecurityStatsView summarizes lockouts, attempts and session counts.
type SecurityStatsView struct {
	BlockedSources    []ratelimit.Block   `json:"blocked_sources"`
	BlockedCodes      []ratelimit.Block   `json:"blocked_codes"`
	RecentAttempts    []ratelimit.Attempt `json:"recent_attempts"`
	ActiveSessions    int                 `json:"active_sessions"`
	DashboardSessions int                 `json:"dashboard_sessions"`
}

// User status labels on the dashboard.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// AttemptDashboardLogin checks the dashboard password for a superadmin and
// issues a dashboard token on success.
func (s *Service) AttemptDashboardLogin(
	ctx context.Context, primaryToken, password string,
) (*DashboardLoginResult, error) {
	s.mu.Lock()
	res, actor, err := s.attemptDashboardLoginLocked(primaryToken, password)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	s.metrics.dashboardLogin(res.Reason)

	if actor != "" {
		s.emitAdmin(ctx, AdminActionEvent{
			Action:    ActionDashboardLogin,
			ActorID:   actor,
			Success:   res.Success,
			Timestamp: s.clock.Now(),
		})
	}

	return res, nil
}

func (s *Service) attemptDashboardLoginLocked(
	primaryToken, password string,
) (*DashboardLoginResult, string, error) {
	user, _, err := s.validateLocked(primaryToken)
	if err != nil || user.Role != codes.RoleSuperAdmin {
		return &DashboardLoginResult{
			Reason: ReasonUnauthorized,
			Error:  ReasonUnauthorized.Message(),
		}, "", nil
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.DashboardPassword)) != 1 {
		s.log.WithField("user", user.ID).Warn("Incorrect dashboard password")

		return &DashboardLoginResult{
			Reason: ReasonDashboardPasswordIncorrect,
			Error:  ReasonDashboardPasswordIncorrect.Message(),
		}, user.ID, nil
	}

	dash, err := s.tokens.IssueDashboard()
	if err != nil {
		return nil, "", fmt.Errorf("issuing dashboard token: %w", err)
	}

	s.dashboards.Add(dash)

	s.log.WithField("user", user.ID).Info("Dashboard access granted")

	return &DashboardLoginResult{Success: true, DashboardToken: dash}, user.ID, nil
}

// ValidateDashboardAccess reports whether the primary token belongs to a
// live superadmin session and the dashboard token is registered.
func (s *Service) ValidateDashboardAccess(
	_ context.Context, primaryToken, dashboardToken string,
) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.dashboardActorLocked(primaryToken, dashboardToken)

	return ok
}

func (s *Service) dashboardActorLocked(primaryToken, dashboardToken string) (*User, bool) {
	user, _, err := s.validateLocked(primaryToken)
	if err != nil || user.Role != codes.RoleSuperAdmin {
		return nil, false
	}

	if !s.dashboards.Has(dashboardToken) {
		return nil, false
	}

	return user, true
}

// RevokeCode blocks the user holding code and evicts all of their
// sessions. It returns false when the caller lacks dashboard access or the
// code is unknown.
func (s *Service) RevokeCode(
	ctx context.Context, code, primaryToken, dashboardToken string,
) bool {
	code = codes.Sanitize(code)

	s.mu.Lock()

	actor, ok := s.dashboardActorLocked(primaryToken, dashboardToken)
	if !ok {
		s.mu.Unlock()

		return false
	}

	target, ok := s.users.byCode[code]
	if !ok {
		s.mu.Unlock()

		s.emitAdmin(ctx, AdminActionEvent{
			Action:    ActionRevokeCode,
			ActorID:   actor.ID,
			Target:    code,
			Timestamp: s.clock.Now(),
		})

		return false
	}

	now := s.clock.Now()
	until := now.Add(s.codeBlockDuration())

	target.IsBlocked = true
	target.IsActive = false
	target.BlockedUntil = &until

	evicted := s.sessions.RemoveByUser(target.ID)

	s.mu.Unlock()

	s.metrics.revoked()

	s.log.WithField("user", target.ID).
		WithField("sessions", evicted).
		Warn("Access code revoked")

	s.emitAdmin(ctx, AdminActionEvent{
		Action:    ActionRevokeCode,
		ActorID:   actor.ID,
		Target:    code,
		Success:   true,
		Timestamp: now,
	})

	return true
}

func (s *Service) codeBlockDuration() time.Duration {
	if s.cfg.CodeBlockDuration > 0 {
		return s.cfg.CodeBlockDuration
	}

	return ratelimit.DefaultCodeBlock
}

// DashboardData returns the training user overview, or nil when the
// caller lacks dashboard access.
func (s *Service) DashboardData(
	_ context.Context, primaryToken, dashboardToken string,
) *DashboardView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dashboardActorLocked(primaryToken, dashboardToken); !ok {
		return nil
	}

	view := &DashboardView{Users: make([]DashboardUser, 0, len(s.users.order))}
	completed := 0

	for _, u := range s.users.order {
		if u.Role != codes.RoleTraining {
			continue
		}

		du := DashboardUser{
			ID:             u.ID,
			Code:           u.Code,
			Status:         StatusOffline,
			Progress:       s.progress.Progress(u.ID),
			LastAction:     "No activity",
			LastActionTime: u.CreatedAt,
			IsActive:       u.IsActive,
			IsBlocked:      u.IsBlocked,
		}

		if s.sessions.IsOnline(u.ID) {
			du.Status = StatusOnline
		}

		if u.LastActivity != nil {
			du.LastAction = "Last activity"
			du.LastActionTime = *u.LastActivity
		}

		if du.Status == StatusOnline && du.IsActive {
			view.ActiveUsers++
		}

		if du.Progress >= 100 {
			completed++
		}

		view.Users = append(view.Users, du)
	}

	view.TotalUsers = len(view.Users)

	if view.TotalUsers > 0 {
		view.CompletionRate = int(math.Round(
			float64(completed) / float64(view.TotalUsers) * 100,
		))
	}

	return view
}

// SecurityStats returns lockout and session statistics, or nil when the
// caller lacks dashboard access.
func (s *Service) SecurityStats(
	_ context.Context, primaryToken, dashboardToken string,
) *SecurityStatsView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dashboardActorLocked(primaryToken, dashboardToken); !ok {
		return nil
	}

	snap := s.limiter.Snapshot()

	return &SecurityStatsView{
		BlockedSources:    snap.BlockedSources,
		BlockedCodes:      snap.BlockedCodes,
		RecentAttempts:    snap.RecentAttempts,
		ActiveSessions:    s.sessions.Len(),
		DashboardSessions: s.dashboards.Len(),
	}
}
