package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minucst/portal/pkg/auth/codes"
)

// LoginRequest is one submission of the login form. An empty CaptchaAnswer
// means no answer was given.
type LoginRequest struct {
	Code          string
	SourceID      string
	Honeypot      string
	CaptchaAnswer string
	AcceptedTerms bool
}

// LoginResult is the outcome of AttemptLogin. On failure Reason and Error
// are set; NeedsCaptcha and Challenge are set when the CAPTCHA check was
// the one that failed.
type LoginResult struct {
	Success      bool   `json:"success"`
	Token        string `json:"token,omitempty"`
	User         *User  `json:"user,omitempty"`
	Reason       Reason `json:"reason,omitempty"`
	Error        string `json:"error,omitempty"`
	NeedsCaptcha bool   `json:"needs_captcha,omitempty"`
	Challenge    string `json:"captcha_challenge,omitempty"`
}

// Err returns the sentinel error for a failed result, or nil.
func (r *LoginResult) Err() error {
	return r.Reason.Err()
}

func failure(r Reason) *LoginResult {
	return &LoginResult{Reason: r, Error: r.Message()}
}

// AttemptLogin runs the login checks in a fixed, short-circuiting order:
// format, terms, honeypot, source lock, code lock, CAPTCHA, code digest,
// user status. Terms and honeypot rejections are never logged as attempts;
// every other failure is, and then feeds the lockout evaluation. A request
// refused because its source is already locked out does not extend the
// lockout.
//
// Refusals are reported in the result. The error is reserved for
// unexpected conditions such as token signing failures or a cancelled
// context.
func (s *Service) AttemptLogin(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if s.cfg.LoginDelay > 0 {
		select {
		case <-time.After(s.cfg.LoginDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting login delay: %w", ctx.Err())
		}
	}

	s.mu.Lock()
	res, events, err := s.attemptLoginLocked(req)
	s.mu.Unlock()

	s.emitAttempts(ctx, events)

	if err != nil {
		return nil, err
	}

	s.metrics.loginResult(res.Reason)

	return res, nil
}

func (s *Service) attemptLoginLocked(req LoginRequest) (*LoginResult, []LoginAttemptEvent, error) {
	var events []LoginAttemptEvent

	log := s.log.WithField("source", req.SourceID)
	code := codes.Sanitize(req.Code)

	record := func(code string, success bool, reason Reason) {
		a := s.limiter.RecordAttempt(req.SourceID, code, success)
		events = append(events, LoginAttemptEvent{
			SourceID:  req.SourceID,
			Code:      code,
			Success:   success,
			Reason:    reason,
			Timestamp: a.Timestamp,
		})
	}

	refuse := func(code string, r Reason) (*LoginResult, []LoginAttemptEvent, error) {
		record(code, false, r)
		log.WithField("reason", r).Debug("Login refused")

		if r != ReasonSourceBlocked {
			res := s.limiter.OnFailure(req.SourceID, code, s.registry.Known(code))
			s.metrics.lockout(res.SourceBlocked, res.CodeBlocked)
		}

		return failure(r), events, nil
	}

	fail := func(r Reason) (*LoginResult, []LoginAttemptEvent, error) {
		return refuse(code, r)
	}

	if !codes.IsValidFormat(code) {
		// The code is unknown at this point, so the attempt carries none.
		return refuse("", ReasonInvalidFormat)
	}

	if !req.AcceptedTerms {
		return failure(ReasonTermsNotAccepted), nil, nil
	}

	if strings.TrimSpace(req.Honeypot) != "" {
		log.Warn("Honeypot field filled in")

		return failure(ReasonHoneypotTriggered), nil, nil
	}

	if s.limiter.IsSourceBlocked(req.SourceID) {
		return fail(ReasonSourceBlocked)
	}

	if s.limiter.IsCodeBlocked(code) {
		return fail(ReasonCodeBlocked)
	}

	if s.limiter.NeedsCaptcha(req.SourceID) {
		if req.CaptchaAnswer == "" {
			res, evs, err := fail(ReasonCaptchaRequired)
			res.NeedsCaptcha = true
			res.Challenge = s.challenges.issue(req.SourceID).Question

			return res, evs, err
		}

		if !s.challenges.verify(req.SourceID, req.CaptchaAnswer) {
			res, evs, err := fail(ReasonCaptchaIncorrect)
			res.NeedsCaptcha = true
			res.Challenge = s.challenges.issue(req.SourceID).Question

			return res, evs, err
		}
	}

	if !s.registry.Verify(code) {
		return fail(ReasonInvalidCode)
	}

	user := s.users.byCode[code]
	if user == nil || user.IsBlocked {
		return fail(ReasonUserBlockedOrInactive)
	}

	now := s.clock.Now()

	tok, _, err := s.tokens.IssuePrimary(user.ID, user.Role, code)
	if err != nil {
		return nil, events, fmt.Errorf("issuing token: %w", err)
	}

	user.IsActive = true
	user.LastActivity = &now

	record(code, true, ReasonNone)
	s.sessions.Create(tok, user.ID, user.Role)
	s.challenges.clear(req.SourceID)

	log.WithField("user", user.ID).
		WithField("role", user.Role).
		Info("User logged in")

	return &LoginResult{
		Success: true,
		Token:   tok,
		User:    user.redacted(),
	}, events, nil
}
