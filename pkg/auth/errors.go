package auth

import "errors"

// Reason identifies why an operation was refused.
type Reason string

// Failure reasons. InvalidCode deliberately covers both unknown codes and
// digest mismatches so that callers cannot enumerate valid codes.
const (
	ReasonNone                       Reason = ""
	ReasonInvalidFormat              Reason = "invalid_format"
	ReasonTermsNotAccepted           Reason = "terms_not_accepted"
	ReasonHoneypotTriggered          Reason = "honeypot_triggered"
	ReasonSourceBlocked              Reason = "source_blocked"
	ReasonCodeBlocked                Reason = "code_blocked"
	ReasonCaptchaRequired            Reason = "captcha_required"
	ReasonCaptchaIncorrect           Reason = "captcha_incorrect"
	ReasonInvalidCode                Reason = "invalid_code"
	ReasonUserBlockedOrInactive      Reason = "user_blocked"
	ReasonUnauthorized               Reason = "unauthorized"
	ReasonDashboardPasswordIncorrect Reason = "dashboard_password_incorrect"
)

var (
	ErrInvalidFormat              = errors.New("invalid access code format")
	ErrTermsNotAccepted           = errors.New("terms not accepted")
	ErrHoneypotTriggered          = errors.New("honeypot triggered")
	ErrSourceBlocked              = errors.New("source temporarily blocked")
	ErrCodeBlocked                = errors.New("code temporarily blocked")
	ErrCaptchaRequired            = errors.New("captcha required")
	ErrCaptchaIncorrect           = errors.New("captcha incorrect")
	ErrInvalidCode                = errors.New("invalid access code")
	ErrUserBlockedOrInactive      = errors.New("user blocked or inactive")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrDashboardPasswordIncorrect = errors.New("dashboard password incorrect")
)

var reasonErrors = map[Reason]error{
	ReasonInvalidFormat:              ErrInvalidFormat,
	ReasonTermsNotAccepted:           ErrTermsNotAccepted,
	ReasonHoneypotTriggered:          ErrHoneypotTriggered,
	ReasonSourceBlocked:              ErrSourceBlocked,
	ReasonCodeBlocked:                ErrCodeBlocked,
	ReasonCaptchaRequired:            ErrCaptchaRequired,
	ReasonCaptchaIncorrect:           ErrCaptchaIncorrect,
	ReasonInvalidCode:                ErrInvalidCode,
	ReasonUserBlockedOrInactive:      ErrUserBlockedOrInactive,
	ReasonUnauthorized:               ErrUnauthorized,
	ReasonDashboardPasswordIncorrect: ErrDashboardPasswordIncorrect,
}

// User-facing messages. Credential failures share one message and the
// honeypot gets the same generic denial as a blocked user.
var reasonMessages = map[Reason]string{
	ReasonInvalidFormat:              "invalid access code",
	ReasonTermsNotAccepted:           "you must accept the terms and conditions",
	ReasonHoneypotTriggered:          "access denied",
	ReasonSourceBlocked:              "access temporarily blocked",
	ReasonCodeBlocked:                "code temporarily blocked",
	ReasonCaptchaRequired:            "verification required",
	ReasonCaptchaIncorrect:           "verification failed, solve the new challenge",
	ReasonInvalidCode:                "invalid access code",
	ReasonUserBlockedOrInactive:      "access denied",
	ReasonUnauthorized:               "unauthorized access",
	ReasonDashboardPasswordIncorrect: "incorrect dashboard credentials",
}

// Err returns the sentinel error for r, or nil for ReasonNone.
func (r Reason) Err() error {
	return reasonErrors[r]
}

// Message returns the user-facing message for r.
func (r Reason) Message() string {
	return reasonMessages[r]
}
