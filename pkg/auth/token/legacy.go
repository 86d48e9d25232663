package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// legacyHeader is the fixed header segment of legacy tokens.
var legacyHeader = map[string]string{"alg": "HS256", "typ": "JWT"}

// LegacySigner produces header.payload.signature tokens where each segment
// is standard base64 and the signature is base64(header.payload.secret).
//
// Parse checks structure only: the signature segment is never compared
// against the payload, so anyone can forge a token. It exists for
// compatibility with tokens already held by clients; configure JWTSigner
// for real deployments.
type LegacySigner struct {
	secret string
}

// Compile-time interface check.
var _ Signer = (*LegacySigner)(nil)

// NewLegacySigner creates a LegacySigner.
func NewLegacySigner(secret string) *LegacySigner {
	return &LegacySigner{secret: secret}
}

// Sign encodes claims into a legacy token.
func (s *LegacySigner) Sign(claims Claims) (string, error) {
	headerJSON, err := json.Marshal(legacyHeader)
	if err != nil {
		return "", fmt.Errorf("marshaling header: %w", err)
	}

	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}

	header := base64.StdEncoding.EncodeToString(headerJSON)
	payload := base64.StdEncoding.EncodeToString(payloadJSON)
	signature := base64.StdEncoding.EncodeToString(
		[]byte(header + "." + payload + "." + s.secret),
	)

	return header + "." + payload + "." + signature, nil
}

// Parse splits token into exactly three segments and decodes the payload.
func (s *LegacySigner) Parse(tok string) (Claims, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: decoding payload: %v", ErrMalformed, err)
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: parsing payload: %v", ErrMalformed, err)
	}

	return claims, nil
}
