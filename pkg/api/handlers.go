package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/minucst/portal/pkg/auth"
	"github.com/minucst/portal/pkg/auth/clientsession"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type clientConfigResponse struct {
	SessionDuration   string `json:"session_duration"`
	InactivityTimeout string `json:"inactivity_timeout"`
	WarningWindow     string `json:"warning_window"`
	CaptchaThreshold  int    `json:"captcha_threshold"`
}

// handleConfig returns the session policy clients apply locally.
func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, clientConfigResponse{
		SessionDuration:   s.cfg.Auth.SessionDuration.String(),
		InactivityTimeout: s.cfg.Auth.InactivityTimeout.String(),
		WarningWindow:     clientsession.WarningWindow.String(),
		CaptchaThreshold:  s.cfg.Auth.CaptchaThreshold,
	})
}

// --- Auth handlers ---

type captchaResponse struct {
	Required bool   `json:"required"`
	Question string `json:"question,omitempty"`
}

// handleCaptcha tells the client whether its next login needs a CAPTCHA
// answer and, if so, issues a fresh challenge.
func (s *server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	source := s.clientIP(r)

	if !s.auth.NeedsCaptcha(source) {
		writeJSON(w, http.StatusOK, captchaResponse{})

		return
	}

	writeJSON(w, http.StatusOK, captchaResponse{
		Required: true,
		Question: s.auth.CaptchaChallenge(source),
	})
}

type loginRequest struct {
	Code          string `json:"code"`
	CaptchaAnswer string `json:"captcha_answer"`
	AcceptedTerms bool   `json:"accepted_terms"`
	Website       string `json:"website"`
}

// loginResponse mirrors auth.LoginResult without the machine-readable
// reason so that the honeypot and blocked users look alike.
type loginResponse struct {
	Success      bool       `json:"success"`
	Token        string     `json:"token,omitempty"`
	User         *auth.User `json:"user,omitempty"`
	Error        string     `json:"error,omitempty"`
	NeedsCaptcha bool       `json:"needs_captcha,omitempty"`
	Challenge    string     `json:"captcha_challenge,omitempty"`
}

// loginStatus maps a refusal reason to its HTTP status.
func loginStatus(r auth.Reason) int {
	switch r {
	case auth.ReasonNone:
		return http.StatusOK
	case auth.ReasonInvalidFormat, auth.ReasonTermsNotAccepted:
		return http.StatusBadRequest
	case auth.ReasonHoneypotTriggered, auth.ReasonUserBlockedOrInactive:
		return http.StatusForbidden
	case auth.ReasonSourceBlocked, auth.ReasonCodeBlocked:
		return http.StatusTooManyRequests
	default:
		return http.StatusUnauthorized
	}
}

// handleLogin authenticates an access code.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	res, err := s.auth.AttemptLogin(r.Context(), auth.LoginRequest{
		Code:          req.Code,
		SourceID:      s.clientIP(r),
		Honeypot:      req.Website,
		CaptchaAnswer: req.CaptchaAnswer,
		AcceptedTerms: req.AcceptedTerms,
	})
	if err != nil {
		s.log.WithError(err).Error("Login failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, loginStatus(res.Reason), loginResponse{
		Success:      res.Success,
		Token:        res.Token,
		User:         res.User,
		Error:        res.Error,
		NeedsCaptcha: res.NeedsCaptcha,
		Challenge:    res.Challenge,
	})
}

// handleLogout ends the session for the Bearer token.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if tok := bearerToken(r); tok != "" {
		s.auth.Logout(r.Context(), tok)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleMe returns the current user.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"not authenticated"})

		return
	}

	user.Code = ""

	writeJSON(w, http.StatusOK, user)
}

type dashboardLoginRequest struct {
	Password string `json:"password"`
}

// handleDashboardLogin exchanges the dashboard password for a dashboard
// token.
func (s *server) handleDashboardLogin(w http.ResponseWriter, r *http.Request) {
	var req dashboardLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	res, err := s.auth.AttemptDashboardLogin(
		r.Context(), tokenFromContext(r.Context()), req.Password,
	)
	if err != nil {
		s.log.WithError(err).Error("Dashboard login failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	status := http.StatusOK

	switch res.Reason {
	case auth.ReasonUnauthorized:
		status = http.StatusForbidden
	case auth.ReasonDashboardPasswordIncorrect:
		status = http.StatusUnauthorized
	}

	writeJSON(w, status, res)
}

// --- Admin handlers ---

// dashboardCredentials returns the primary and dashboard tokens already
// checked by requireDashboard.
func dashboardCredentials(r *http.Request) (string, string) {
	return tokenFromContext(r.Context()), r.Header.Get(dashboardTokenHeader)
}

// handleDashboardData returns the training user overview.
func (s *server) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	primary, dashboard := dashboardCredentials(r)

	view := s.auth.DashboardData(r.Context(), primary, dashboard)
	if view == nil {
		writeJSON(w, http.StatusForbidden,
			errorResponse{auth.ReasonUnauthorized.Message()})

		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleSecurityStats returns lockout and session statistics.
func (s *server) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	primary, dashboard := dashboardCredentials(r)

	stats := s.auth.SecurityStats(r.Context(), primary, dashboard)
	if stats == nil {
		writeJSON(w, http.StatusForbidden,
			errorResponse{auth.ReasonUnauthorized.Message()})

		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRevokeCode blocks an access code and evicts its sessions.
func (s *server) handleRevokeCode(w http.ResponseWriter, r *http.Request) {
	primary, dashboard := dashboardCredentials(r)
	code := chi.URLParam(r, "code")

	if !s.auth.RevokeCode(r.Context(), code, primary, dashboard) {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"code not found"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleListLoginAttempts returns the persisted login attempt history.
func (s *server) handleListLoginAttempts(
	w http.ResponseWriter, r *http.Request,
) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	attempts, err := s.store.ListLoginAttempts(
		r.Context(), r.URL.Query().Get("source"), limit,
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to list login attempts")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, attempts)
}

// handleListAdminActions returns the persisted admin action history.
func (s *server) handleListAdminActions(
	w http.ResponseWriter, r *http.Request,
) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	actions, err := s.store.ListAdminActions(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list admin actions")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, actions)
}

// parseLimit reads the optional limit query parameter. It writes a 400
// and returns false when the value is not a non-negative integer.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid limit"})

		return 0, false
	}

	return limit, true
}
