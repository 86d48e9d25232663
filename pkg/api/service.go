package api

import (
	"fmt"

	"github.com/minucst/portal/pkg/auth"
	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/auth/token"
	"github.com/minucst/portal/pkg/clock"
	"github.com/minucst/portal/pkg/config"
	"github.com/sirupsen/logrus"
)

// NewHasher builds the configured code hasher.
func NewHasher(cfg *config.AuthConfig) (codes.Hasher, error) {
	switch cfg.Hasher {
	case config.HasherStatic:
		return codes.NewStaticHasher(cfg.HashSecret), nil
	case config.HasherBcrypt:
		return codes.NewBcryptHasher(cfg.BcryptCost), nil
	default:
		return nil, fmt.Errorf("unsupported hasher: %s", cfg.Hasher)
	}
}

// NewSigner builds the configured primary token signer.
func NewSigner(cfg *config.AuthConfig, clk clock.Clock) (token.Signer, error) {
	switch cfg.Signer {
	case config.SignerLegacy:
		return token.NewLegacySigner(cfg.TokenSecret), nil
	case config.SignerJWT:
		return token.NewJWTSigner(cfg.TokenSecret, clk)
	default:
		return nil, fmt.Errorf("unsupported signer: %s", cfg.Signer)
	}
}

// NewAuthService builds the authentication service from configuration.
func NewAuthService(
	log logrus.FieldLogger,
	cfg *config.AuthConfig,
	audit auth.AuditSink,
	metrics *auth.Metrics,
	clk clock.Clock,
) (*auth.Service, error) {
	if clk == nil {
		clk = clock.Real{}
	}

	hasher, err := NewHasher(cfg)
	if err != nil {
		return nil, err
	}

	signer, err := NewSigner(cfg, clk)
	if err != nil {
		return nil, err
	}

	if cfg.Signer == config.SignerLegacy {
		log.Warn("Legacy token signer does not verify signatures; use the jwt signer in production")
	}

	svc, err := auth.New(log, auth.Config{
		MaxLoginAttempts:    cfg.MaxLoginAttempts,
		CaptchaThreshold:    cfg.CaptchaThreshold,
		SourceBlockDuration: cfg.SourceBlockDuration,
		CodeBlockDuration:   cfg.CodeBlockDuration,
		SessionDuration:     cfg.SessionDuration,
		AttemptWindow:       cfg.AttemptWindow,
		AttemptHistory:      cfg.AttemptHistory,
		DashboardPassword:   cfg.DashboardPassword,
		LoginDelay:          cfg.LoginDelay,
	}, auth.Dependencies{
		Hasher:  hasher,
		Signer:  signer,
		Clock:   clk,
		Audit:   audit,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}

	return svc, nil
}
