package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/httputil"
	"github.com/utafrali/searchsync/pkg/logger"
)

// ErrInvalidToken is returned by validators for unknown tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator resolves a bearer token to the caller's subject.
type TokenValidator func(ctx context.Context, token string) (subject string, err error)

// StaticToken accepts exactly one shared secret and reports subject for it.
func StaticToken(secret, subject string) TokenValidator {
	want := []byte(secret)
	return func(_ context.Context, token string) (string, error) {
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			return "", ErrInvalidToken
		}
		return subject, nil
	}
}

// JWT accepts HMAC-signed tokens issued with secret. The subject is the
// "sub" claim, falling back to "user_id".
func JWT(secret string) TokenValidator {
	key := []byte(secret)
	return func(_ context.Context, token string) (string, error) {
		if len(key) == 0 {
			return "", ErrInvalidToken
		}
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !parsed.Valid {
			return "", ErrInvalidToken
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return "", ErrInvalidToken
		}
		subject, _ := claims["sub"].(string)
		if subject == "" {
			subject, _ = claims["user_id"].(string)
		}
		return subject, nil
	}
}

// AnyToken accepts a token when one of validators does.
func AnyToken(validators ...TokenValidator) TokenValidator {
	return func(ctx context.Context, token string) (string, error) {
		for _, v := range validators {
			if subject, err := v(ctx, token); err == nil {
				return subject, nil
			}
		}
		return "", ErrInvalidToken
	}
}

// BearerAuth rejects requests without a valid bearer token. The validated
// subject is stored on the context for logging.
func BearerAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing authorization header"), nil)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid authorization header format"), nil)
				return
			}

			subject, err := validate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid token"), nil)
				return
			}

			ctx := logger.WithActor(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
