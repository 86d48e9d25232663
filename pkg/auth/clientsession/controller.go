// Package clientsession keeps a client's login state across reloads. The
// Controller persists the primary token and expires it after a fixed
// session duration; the LegacyController keeps a plain profile alive only
// while the user keeps interacting.
package clientsession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/minucst/portal/pkg/auth"
	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/auth/session"
	"github.com/minucst/portal/pkg/auth/token"
	"github.com/minucst/portal/pkg/clock"
	"github.com/sirupsen/logrus"
)

// TokenKey is the storage key holding the obscured primary token.
const TokenKey = "minucst-secure-token"

// Backend is the subset of the auth service the controller talks to.
type Backend interface {
	AttemptLogin(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	AttemptDashboardLogin(ctx context.Context, primaryToken, password string) (*auth.DashboardLoginResult, error)
	ValidateToken(ctx context.Context, tok string) (*auth.User, token.Claims, error)
	ValidateDashboardAccess(ctx context.Context, primaryToken, dashboardToken string) bool
	Logout(ctx context.Context, tok string)
	RevokeCode(ctx context.Context, code, primaryToken, dashboardToken string) bool
	DashboardData(ctx context.Context, primaryToken, dashboardToken string) *auth.DashboardView
	SecurityStats(ctx context.Context, primaryToken, dashboardToken string) *auth.SecurityStatsView
}

var _ Backend = (*auth.Service)(nil)

// Config configures a Controller.
type Config struct {
	// SourceID identifies this client to the rate limiter.
	SourceID string
	// SessionDuration defaults to 30 minutes.
	SessionDuration time.Duration
	// OnExpire, if set, runs after the expiry timer has logged the client
	// out.
	OnExpire func()
}

// State is a snapshot of the controller.
type State struct {
	Authenticated bool
	User          *auth.User
	Token         string
	SessionExpiry time.Time
	HasDashboard  bool
}

// Controller holds one client's primary token and, for superadmins, a
// dashboard token that is never persisted.
type Controller struct {
	log     logrus.FieldLogger
	backend Backend
	storage Storage
	clock   clock.Clock
	cfg     Config

	mu        sync.Mutex
	user      *auth.User
	token     string
	expiry    time.Time
	dashboard string
	timer     clock.Timer
	gen       uint64
}

// NewController creates a Controller in the unauthenticated state. Call
// Restore to pick up a persisted token.
func NewController(
	log logrus.FieldLogger,
	backend Backend,
	storage Storage,
	clk clock.Clock,
	cfg Config,
) *Controller {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = session.DefaultDuration
	}

	if clk == nil {
		clk = clock.Real{}
	}

	return &Controller{
		log:     log.WithField("component", "client-session"),
		backend: backend,
		storage: storage,
		clock:   clk,
		cfg:     cfg,
	}
}

// EncodeToken obscures a token for storage. It is a reversible encoding,
// not encryption.
func EncodeToken(tok string) (string, error) {
	data, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeToken reverses EncodeToken.
func DecodeToken(stored string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("decoding stored token: %w", err)
	}

	var tok string
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", fmt.Errorf("parsing stored token: %w", err)
	}

	return tok, nil
}

// Restore loads and verifies a persisted token. A missing, unreadable or
// rejected token leaves the client logged out and reports false.
func (c *Controller) Restore(ctx context.Context) bool {
	stored, ok, err := c.storage.Get(TokenKey)
	if err != nil {
		c.log.WithError(err).Warn("Failed to read persisted token")
		c.discard()

		return false
	}

	if !ok {
		return false
	}

	tok, err := DecodeToken(stored)
	if err != nil || tok == "" {
		c.log.WithError(err).Debug("Discarding undecodable persisted token")
		c.discard()

		return false
	}

	user, _, err := c.backend.ValidateToken(ctx, tok)
	if err != nil {
		c.log.WithError(err).Debug("Persisted token rejected")
		c.discard()

		return false
	}

	c.mu.Lock()
	c.authenticateLocked(user, tok)
	c.mu.Unlock()

	return true
}

// Login submits an access code. On success the token is persisted and the
// expiry timer armed.
func (c *Controller) Login(
	ctx context.Context, code, captchaAnswer string, acceptedTerms bool,
) (*auth.LoginResult, error) {
	res, err := c.backend.AttemptLogin(ctx, auth.LoginRequest{
		Code:          code,
		SourceID:      c.cfg.SourceID,
		CaptchaAnswer: captchaAnswer,
		AcceptedTerms: acceptedTerms,
	})
	if err != nil {
		return nil, err
	}

	if !res.Success {
		return res, nil
	}

	stored, err := EncodeToken(res.Token)
	if err != nil {
		return nil, fmt.Errorf("encoding token: %w", err)
	}

	if err := c.storage.Set(TokenKey, stored); err != nil {
		// The client cannot resume this session, so end it server-side.
		c.backend.Logout(ctx, res.Token)

		return nil, fmt.Errorf("persisting token: %w", err)
	}

	c.mu.Lock()
	c.authenticateLocked(res.User, res.Token)
	c.mu.Unlock()

	return res, nil
}

// LoginDashboard runs the dashboard password check for the current user.
// The dashboard token is kept in memory only.
func (c *Controller) LoginDashboard(
	ctx context.Context, password string,
) (*auth.DashboardLoginResult, error) {
	c.mu.Lock()
	tok, user := c.token, c.user
	c.mu.Unlock()

	if tok == "" || user == nil || user.Role != codes.RoleSuperAdmin {
		return &auth.DashboardLoginResult{
			Reason: auth.ReasonUnauthorized,
			Error:  auth.ReasonUnauthorized.Message(),
		}, nil
	}

	res, err := c.backend.AttemptDashboardLogin(ctx, tok, password)
	if err != nil {
		return nil, err
	}

	if res.Success {
		c.mu.Lock()
		if c.token == tok {
			c.dashboard = res.DashboardToken
		}
		c.mu.Unlock()
	}

	return res, nil
}

// HasDashboardAccess reports whether both held tokens still grant
// dashboard access.
func (c *Controller) HasDashboardAccess(ctx context.Context) bool {
	tok, dash, ok := c.dashboardTokens()
	if !ok {
		return false
	}

	return c.backend.ValidateDashboardAccess(ctx, tok, dash)
}

// RevokeCode revokes code using the held tokens.
func (c *Controller) RevokeCode(ctx context.Context, code string) bool {
	tok, dash, ok := c.dashboardTokens()
	if !ok {
		return false
	}

	return c.backend.RevokeCode(ctx, code, tok, dash)
}

// DashboardData returns the dashboard view, or nil without access.
func (c *Controller) DashboardData(ctx context.Context) *auth.DashboardView {
	tok, dash, ok := c.dashboardTokens()
	if !ok {
		return nil
	}

	return c.backend.DashboardData(ctx, tok, dash)
}

// SecurityStats returns the security view, or nil without access.
func (c *Controller) SecurityStats(ctx context.Context) *auth.SecurityStatsView {
	tok, dash, ok := c.dashboardTokens()
	if !ok {
		return nil
	}

	return c.backend.SecurityStats(ctx, tok, dash)
}

func (c *Controller) dashboardTokens() (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || c.dashboard == "" || c.user == nil || c.user.Role != codes.RoleSuperAdmin {
		return "", "", false
	}

	return c.token, c.dashboard, true
}

// Renew re-validates the held token and, if still accepted, pushes the
// client-side expiry out by a full session duration. A rejected token logs
// the client out.
func (c *Controller) Renew(ctx context.Context) bool {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()

	if tok == "" {
		return false
	}

	user, _, err := c.backend.ValidateToken(ctx, tok)
	if err != nil {
		c.log.WithError(err).Debug("Session renewal rejected")
		c.Logout(ctx)

		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != tok {
		return false
	}

	dash := c.dashboard
	c.authenticateLocked(user, tok)
	c.dashboard = dash

	return true
}

// Logout ends the session on the backend, clears the persisted token and
// drops the dashboard token.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	tok := c.token
	c.resetLocked()
	c.mu.Unlock()

	if tok != "" {
		c.backend.Logout(ctx, tok)
	}

	if err := c.storage.Remove(TokenKey); err != nil {
		c.log.WithError(err).Warn("Failed to clear persisted token")
	}
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Authenticated: c.token != "",
		Token:         c.token,
		SessionExpiry: c.expiry,
		HasDashboard:  c.dashboard != "",
	}

	if c.user != nil {
		u := *c.user
		st.User = &u
	}

	return st
}

func (c *Controller) authenticateLocked(user *auth.User, tok string) {
	c.resetLocked()

	c.user = user
	c.token = tok
	c.expiry = c.clock.Now().Add(c.cfg.SessionDuration)

	gen := c.gen
	c.timer = c.clock.AfterFunc(c.cfg.SessionDuration, func() {
		c.expire(gen)
	})
}

// resetLocked clears all in-memory state and invalidates any pending
// expiry callback.
func (c *Controller) resetLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.gen++
	c.user = nil
	c.token = ""
	c.expiry = time.Time{}
	c.dashboard = ""
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()

		return
	}
	c.mu.Unlock()

	c.log.Info("Session expired")

	c.Logout(context.Background())

	if c.cfg.OnExpire != nil {
		c.cfg.OnExpire()
	}
}

func (c *Controller) discard() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	if err := c.storage.Remove(TokenKey); err != nil {
		c.log.WithError(err).Warn("Failed to clear persisted token")
	}
}
