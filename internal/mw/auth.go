package mw

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type subjectKeyType string

const subjectKey subjectKeyType = "sub"

// HMACAuthenticator validates HS256 bearer tokens and yields their subject.
type HMACAuthenticator struct {
	Secret []byte
	Leeway time.Duration
}

func (a HMACAuthenticator) ValidateBearer(r *http.Request) (string, error) {
	tokStr, err := BearerToken(r)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.Leeway),
	)
	tok, err := parser.ParseWithClaims(tokStr, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	})
	if err != nil || tok == nil || !tok.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("missing sub")
	}
	return claims.Subject, nil
}

func BearerToken(r *http.Request) (string, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", errors.New("missing bearer token")
	}
	tok := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	if tok == "" {
		return "", errors.New("missing bearer token")
	}
	return tok, nil
}

func WithSubject(next http.Handler, sub string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), sub)))
	})
}

func ContextWithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

func Subject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok
}
