package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller resolved from an access token.
type Identity struct {
	UserID    int64
	Name      string
	AvatarURL string
}

// TokenVerifier resolves a bearer token into a caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type accessClaims struct {
	jwt.RegisteredClaims
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type jwtVerifier struct {
	secret []byte
}

// NewJWTVerifier verifies HS256 access tokens issued by the auth backend.
// The token subject carries the numeric user id; name and avatar ride along
// as custom claims.
func NewJWTVerifier(secret string) (TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &jwtVerifier{secret: []byte(secret)}, nil
}

// Verify implements TokenVerifier.
func (v *jwtVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if v == nil {
		return Identity{}, errors.New("verifier is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, errors.New("access token is required")
	}

	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse access token: %w", err)
	}
	if !parsed.Valid {
		return Identity{}, errors.New("invalid access token")
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, errors.New("access token has no user id")
	}
	return Identity{
		UserID:    userID,
		Name:      strings.TrimSpace(claims.Name),
		AvatarURL: strings.TrimSpace(claims.AvatarURL),
	}, nil
}

// SignAccessToken mints an HS256 access token for the given identity. The
// auth backend owns token issuance in production; this exists for tests and
// local tooling.
func SignAccessToken(secret string, identity Identity, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("token secret is required")
	}
	if identity.UserID <= 0 {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:      identity.Name,
		AvatarURL: identity.AvatarURL,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// bearerToken extracts the credential from the Authorization header, with a
// query parameter fallback for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
