package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultJWTTTL is the lifetime of a minted token.
	DefaultJWTTTL = 5 * time.Minute

	// jwtRenewBefore is how long before expiry a cached token is re-minted.
	jwtRenewBefore = 30 * time.Second
)

// JWTConfig configures a JWT strategy.
type JWTConfig struct {
	// Algorithm is the signing method: HS256, HS384, HS512, RS256 or ES256.
	Algorithm string

	// Secret is the shared key for HS* algorithms.
	Secret []byte

	// PrivateKey is the signing key for RS256 (*rsa.PrivateKey) or
	// ES256 (*ecdsa.PrivateKey).
	PrivateKey any

	// KeyID is set as the "kid" header when non-empty.
	KeyID string

	Issuer   string
	Subject  string
	Audience []string

	// TTL is the token lifetime. Default: 5m
	TTL time.Duration

	// Claims are merged into every token. Registered claims win.
	Claims map[string]any
}

// JWT mints short-lived signed tokens and sends them as bearer credentials.
type JWT struct {
	cfg    JWTConfig
	method jwt.SigningMethod
	key    any
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewJWT validates cfg and returns a JWT strategy.
func NewJWT(cfg JWTConfig) (*JWT, error) {
	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = "HS256"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultJWTTTL
	}

	j := &JWT{cfg: cfg, now: time.Now}
	switch alg {
	case "HS256", "HS384", "HS512":
		if len(cfg.Secret) == 0 {
			return nil, fmt.Errorf("jwt %s requires a secret", alg)
		}
		j.key = cfg.Secret
	case "RS256":
		key, ok := cfg.PrivateKey.(*rsa.PrivateKey)
		if !ok || key == nil {
			return nil, fmt.Errorf("jwt RS256 requires an *rsa.PrivateKey")
		}
		j.key = key
	case "ES256":
		key, ok := cfg.PrivateKey.(*ecdsa.PrivateKey)
		if !ok || key == nil {
			return nil, fmt.Errorf("jwt ES256 requires an *ecdsa.PrivateKey")
		}
		j.key = key
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}
	j.method = jwt.GetSigningMethod(alg)
	j.cfg.Algorithm = alg
	return j, nil
}

// ParsePrivateKeyPEM parses a PEM-encoded RSA or EC private key for use as
// JWTConfig.PrivateKey.
func ParsePrivateKeyPEM(algorithm string, data []byte) (any, error) {
	switch strings.ToUpper(algorithm) {
	case "RS256":
		return jwt.ParseRSAPrivateKeyFromPEM(data)
	case "ES256":
		return jwt.ParseECPrivateKeyFromPEM(data)
	default:
		return nil, fmt.Errorf("algorithm %q does not use a private key", algorithm)
	}
}

// Headers implements Strategy.
func (j *JWT) Headers(context.Context) (http.Header, error) {
	token, err := j.Token()
	if err != nil {
		return nil, err
	}
	h := make(http.Header, 1)
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

// Token returns the cached token, minting a new one when the cached token is
// within 30s of expiry.
func (j *JWT) Token() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	if j.token != "" && now.Before(j.expires.Add(-jwtRenewBefore)) {
		return j.token, nil
	}

	claims := jwt.MapClaims{}
	for k, v := range j.cfg.Claims {
		claims[k] = v
	}
	expires := now.Add(j.cfg.TTL)
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(expires)
	claims["jti"] = uuid.NewString()
	if j.cfg.Issuer != "" {
		claims["iss"] = j.cfg.Issuer
	}
	if j.cfg.Subject != "" {
		claims["sub"] = j.cfg.Subject
	}
	if len(j.cfg.Audience) > 0 {
		claims["aud"] = jwt.ClaimStrings(j.cfg.Audience)
	}

	t := jwt.NewWithClaims(j.method, claims)
	if j.cfg.KeyID != "" {
		t.Header["kid"] = j.cfg.KeyID
	}
	signed, err := t.SignedString(j.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign jwt: %w", err)
	}

	j.token = signed
	j.expires = expires
	return signed, nil
}
