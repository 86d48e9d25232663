// Package auth implements the portal's access-code login, the superadmin
// dashboard re-authentication and the read-only security views built on
// top of them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/auth/ratelimit"
	"github.com/minucst/portal/pkg/auth/session"
	"github.com/minucst/portal/pkg/auth/token"
	"github.com/minucst/portal/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Config holds the service thresholds and secrets. Zero durations and
// counts take the portal defaults.
type Config struct {
	MaxLoginAttempts    int
	CaptchaThreshold    int
	SourceBlockDuration time.Duration
	CodeBlockDuration   time.Duration
	SessionDuration     time.Duration
	AttemptWindow       time.Duration
	AttemptHistory      int
	DashboardPassword   string
	LoginDelay          time.Duration
}

// Dependencies are the collaborators a Service is built from. Hasher,
// Signer and DashboardPassword are required; everything else has a
// default.
type Dependencies struct {
	Hasher   codes.Hasher
	Signer   token.Signer
	Clock    clock.Clock
	Captcha  CaptchaProvider
	Audit    AuditSink
	Progress ProgressSource
	Metrics  *Metrics
}

// Service is the authentication state machine. All state is in memory and
// lost on restart. Every public operation is serialized by one mutex.
type Service struct {
	log      logrus.FieldLogger
	cfg      Config
	clock    clock.Clock
	audit    AuditSink
	progress ProgressSource
	metrics  *Metrics

	registry   *codes.Registry
	limiter    *ratelimit.Limiter
	tokens     *token.Service
	sessions   *session.Store
	dashboards *session.DashboardSessions

	mu         sync.Mutex
	users      *users
	challenges *challenges
}

// New builds a Service and creates a User for every code in the universe.
func New(log logrus.FieldLogger, cfg Config, deps Dependencies) (*Service, error) {
	if deps.Hasher == nil {
		return nil, errors.New("hasher is required")
	}

	if deps.Signer == nil {
		return nil, errors.New("signer is required")
	}

	if cfg.DashboardPassword == "" {
		return nil, errors.New("dashboard password is required")
	}

	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = session.DefaultDuration
	}

	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}

	if deps.Captcha == nil {
		deps.Captcha = ArithmeticCaptcha{}
	}

	if deps.Audit == nil {
		deps.Audit = nopAudit{}
	}

	if deps.Progress == nil {
		deps.Progress = noProgress{}
	}

	registry, err := codes.NewRegistry(deps.Hasher)
	if err != nil {
		return nil, fmt.Errorf("building code registry: %w", err)
	}

	log = log.WithField("component", "auth")

	s := &Service{
		log:      log,
		cfg:      cfg,
		clock:    deps.Clock,
		audit:    deps.Audit,
		progress: deps.Progress,
		metrics:  deps.Metrics,
		registry: registry,
		limiter: ratelimit.NewLimiter(log, ratelimit.Config{
			MaxAttempts:      cfg.MaxLoginAttempts,
			CaptchaThreshold: cfg.CaptchaThreshold,
			SourceBlock:      cfg.SourceBlockDuration,
			CodeBlock:        cfg.CodeBlockDuration,
			Window:           cfg.AttemptWindow,
			HistorySize:      cfg.AttemptHistory,
		}, deps.Clock),
		tokens:     token.NewService(deps.Signer, deps.Clock, cfg.SessionDuration),
		sessions:   session.NewStore(deps.Clock, cfg.SessionDuration, nil),
		dashboards: session.NewDashboardSessions(deps.Clock, cfg.SessionDuration),
		users:      newUsers(registry.Codes(), deps.Clock.Now()),
		challenges: newChallenges(deps.Captcha),
	}

	s.metrics.observeSessions(s.sessions.Len, s.dashboards.Len)

	log.WithField("codes", len(s.users.order)).Info("Access code registry initialized")

	return s, nil
}

// NeedsCaptcha reports whether the next login from sourceID must carry a
// CAPTCHA answer.
func (s *Service) NeedsCaptcha(sourceID string) bool {
	return s.limiter.NeedsCaptcha(sourceID)
}

// CaptchaChallenge issues a new challenge for sourceID, replacing any
// outstanding one, and returns its question.
func (s *Service) CaptchaChallenge(sourceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.challenges.issue(sourceID).Question
}

// ValidateToken resolves a primary token to its user. The token must decode
// and be unexpired, its session must be live, and its user must be active
// and not blocked. A successful validation slides the session's activity.
func (s *Service) ValidateToken(
	_ context.Context, tok string,
) (*User, token.Claims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, claims, err := s.validateLocked(tok)
	if err != nil {
		return nil, token.Claims{}, err
	}

	return user.clone(), claims, nil
}

func (s *Service) validateLocked(tok string) (*User, token.Claims, error) {
	claims, err := s.tokens.VerifyPrimary(tok)
	if err != nil {
		return nil, token.Claims{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if !s.sessions.Touch(tok) {
		return nil, token.Claims{}, fmt.Errorf("%w: no live session", ErrUnauthorized)
	}

	user, ok := s.users.byID[claims.UserID]
	if !ok || !user.IsActive || user.IsBlocked {
		s.sessions.Remove(tok)

		return nil, token.Claims{}, fmt.Errorf("%w: user not active", ErrUnauthorized)
	}

	return user, claims, nil
}

// IsOnline reports whether userID has at least one live session.
func (s *Service) IsOnline(userID string) bool {
	return s.sessions.IsOnline(userID)
}

// IsLive reports whether the session for tok is live.
func (s *Service) IsLive(tok string) bool {
	return s.sessions.IsLive(tok)
}

// Users returns a copy of every registry entry in code order.
func (s *Service) Users() []*User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*User, 0, len(s.users.order))
	for _, u := range s.users.order {
		out = append(out, u.clone())
	}

	return out
}

// Logout marks the token's user inactive and evicts that one session. The
// user's other sessions are left in place. Logging out an unknown or
// already invalidated token is a no-op.
func (s *Service) Logout(_ context.Context, tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(tok)
	if !ok {
		return
	}

	if user, ok := s.users.byID[sess.UserID]; ok {
		user.IsActive = false
	}

	s.sessions.Remove(tok)

	s.log.WithField("user", sess.UserID).Debug("User logged out")
}

func (s *Service) emitAttempts(ctx context.Context, events []LoginAttemptEvent) {
	for _, ev := range events {
		if err := s.audit.RecordLoginAttempt(ctx, ev); err != nil {
			s.log.WithError(err).Warn("Failed to record login attempt")
		}
	}
}

func (s *Service) emitAdmin(ctx context.Context, ev AdminActionEvent) {
	if err := s.audit.RecordAdminAction(ctx, ev); err != nil {
		s.log.WithError(err).
			WithField("action", ev.Action).
			Warn("Failed to record admin action")
	}
}
