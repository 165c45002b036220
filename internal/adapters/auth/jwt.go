// Package auth verifies connect-time credentials for the signaling gateway.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
)

// JWTVerifier accepts HS256 tokens carrying a userId claim. Token issuance
// lives with the account service; the gateway only verifies.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (domain.UserID, error) {
	if token == "" {
		return "", core.ErrAuthRejected
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", core.ErrAuthRejected, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", core.ErrAuthRejected
	}
	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: missing userId claim", core.ErrAuthRejected)
	}
	return domain.UserID(userID), nil
}

var _ core.TokenVerifier = (*JWTVerifier)(nil)
