package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"github.com/taskboard/core/internal/v1/logging"
)

// CustomClaims is the JWT claim set the task board expects on every
// access token: the standard registered claims plus scope and the
// display fields used to populate a session's displayName.
type CustomClaims struct {
	Scope string `json:"scope"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies access tokens against an OIDC issuer's JWKS:
// signature via the matching "kid", plus issuer and audience checks.
type Validator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience []string
}

// NewValidator builds a Validator for the issuer at domain, registering
// its JWKS endpoint in a background-refreshed cache and doing one
// synchronous fetch so a misconfigured domain fails at startup instead
// of on the first request. regOpts lets tests override the cache's HTTP
// client/refresh behavior.
func NewValidator(ctx context.Context, domain, audience string, regOpts ...jwk.RegisterOption) (*Validator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("auth: parse issuer url: %w", err)
	}

	jwksURL := issuerURL.JoinPath(".well-known/jwks.json").String()

	cache := jwk.NewCache(ctx)
	opts := append([]jwk.RegisterOption{jwk.WithRefreshInterval(1 * time.Hour)}, regOpts...)

	if err := cache.Register(jwksURL, opts...); err != nil {
		return nil, fmt.Errorf("auth: register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("auth: fetch initial jwks: %w", err)
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}

		keys, err := cache.Get(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to get keys from cache: %w", err)
		}

		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key with kid %s not found", kid)
		}

		var pubKey interface{}
		if err := key.Raw(&pubKey); err != nil {
			return nil, fmt.Errorf("failed to get raw public key: %w", err)
		}

		return pubKey, nil
	}

	return &Validator{
		keyFunc:  keyFunc,
		issuer:   issuerURL.String(),
		audience: []string{audience},
	}, nil
}

// ValidateToken verifies tokenString's signature, issuer, and audience
// and returns its claims. Called once per WebSocket handshake (the
// Session Gateway has no per-frame auth check after that).
func (v *Validator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, v.keyFunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience[0]),
	)

	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("auth: token is invalid")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("auth: claims are not CustomClaims")
	}

	return claims, nil
}

// GetAllowedOriginsFromEnv parses a comma-separated origin list from the
// named env var, e.g. ALLOWED_ORIGINS="http://localhost:5173,https://board.example.com".
// Falls back to defaultEnvs (typically localhost dev origins) when unset.
func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		logging.Warn(context.Background(), fmt.Sprintf("%s not set, using default origins: %v", envVarName, defaultEnvs))
		return defaultEnvs
	}
	return strings.Split(originsStr, ",")
}

// MockValidator accepts any syntactically-JWT-shaped token without
// verifying its signature, decoding sub/name/email straight off the
// unverified payload. Wired by cmd/v1/boardserver when SKIP_AUTH=true, for local
// development against a frontend that still issues real-looking tokens.
type MockValidator struct{}

func (m *MockValidator) ValidateToken(tokenString string) (*CustomClaims, error) {
	var subject, name, email string

	if parts := strings.Split(tokenString, "."); len(parts) == 3 {
		if payload, err := base64.RawURLEncoding.DecodeString(parts[1]); err == nil {
			var claims map[string]interface{}
			if json.Unmarshal(payload, &claims) == nil {
				if sub, ok := claims["sub"].(string); ok {
					subject = sub
				}
				if n, ok := claims["name"].(string); ok {
					name = n
				}
				if e, ok := claims["email"].(string); ok {
					email = e
				}
				logging.Info(context.Background(), "auth: mock validator decoded token", zap.String("subject", subject))
			}
		}
	}

	if subject == "" {
		subject = "dev-user-local"
	}
	if name == "" {
		name = "Local Dev"
	}
	if email == "" {
		email = "dev@taskboard.local"
	}

	claims := &CustomClaims{Name: name, Email: email}
	claims.Subject = subject
	return claims, nil
}
