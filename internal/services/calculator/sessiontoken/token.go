// Package sessiontoken issues and verifies the bearer tokens that bind a
// client to one calculator session.
package sessiontoken

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/examdesk/internal/platform/config"
	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
)

// EnvPrefix prefixes every session token variable.
const EnvPrefix = "EXAMDESK_SESSION_TOKEN_"

const minSecretBytes = 32

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL" envDefault:"2h"`
	Issuer string        `env:"ISSUER" envDefault:"examdesk"`
}

// Config defines how session tokens are signed and verified.
type Config struct {
	Issuer string
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

// Claims captures validated session token claims.
type Claims struct {
	SessionID string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// LoadConfigFromEnv reads session token configuration. An empty secret is
// replaced with a random one, so tokens stop verifying after a restart.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw tokenEnv
	if err := config.ParseEnvPrefixed(&raw, EnvPrefix); err != nil {
		return Config{}, fmt.Errorf("parse session token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	if issuer == "" {
		return Config{}, fmt.Errorf("%sISSUER is required", EnvPrefix)
	}
	if raw.TTL <= 0 {
		return Config{}, fmt.Errorf("%sTTL must be positive", EnvPrefix)
	}

	var secret []byte
	if value := strings.TrimSpace(raw.Secret); value != "" {
		decoded, err := decodeBase64(value)
		if err != nil {
			decoded = []byte(value)
		}
		secret = decoded
	} else {
		secret = make([]byte, minSecretBytes)
		if _, err := rand.Read(secret); err != nil {
			return Config{}, fmt.Errorf("generate session token secret: %w", err)
		}
	}
	if len(secret) < minSecretBytes {
		return Config{}, fmt.Errorf("%sSECRET must be at least %d bytes", EnvPrefix, minSecretBytes)
	}
	if now == nil {
		now = time.Now
	}
	return Config{Issuer: issuer, Secret: secret, TTL: raw.TTL, Now: now}, nil
}

// Issuer signs and verifies session tokens.
type Issuer struct {
	cfg Config
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("session token issuer is required")
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("session token secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session token ttl must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{cfg: cfg}, nil
}

// Issue returns a signed token for sessionID.
func (i *Issuer) Issue(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	now := i.cfg.Now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
		SessionID: sessionID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks token and that it was issued for sessionID. An empty
// sessionID accepts any session and returns the one in the token.
func (i *Issuer) Verify(token, sessionID string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token is required")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer != i.cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeTokenInvalid,
			"session token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token exp is required")
	}
	now := i.cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeTokenExpired, "session token is expired")
	}
	if strings.TrimSpace(parsed.SessionID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token sid is required")
	}
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" && parsed.SessionID != sessionID {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeTokenInvalid,
			"session token session mismatch",
			map[string]string{"Field": "sid"},
		)
	}

	claims := Claims{
		SessionID: parsed.SessionID,
		Issuer:    parsed.Issuer,
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.Wrap(apperrors.CodeTokenInvalid, "session token signature is invalid", err)
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.Wrap(apperrors.CodeTokenInvalid, "session token alg is invalid", err)
	}
	return apperrors.Wrap(apperrors.CodeTokenInvalid, "session token is invalid", err)
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
