package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session is the identity established against the remote store.
type Session struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the session can still be used at now.
func (s Session) Valid(now time.Time) bool {
	return s.UserID != "" && now.Before(s.ExpiresAt)
}

// Identity establishes a session. Implementations reuse a still valid
// session instead of signing in again.
type Identity interface {
	Ensure(ctx context.Context) (Session, error)
}

// clockSkew is tolerated on nbf and iat.
const clockSkew = time.Minute

// sessionFromClaims validates the registered claims against now the same way
// for every identity source and returns the resulting session.
func sessionFromClaims(token string, claims jwt.MapClaims, audience, issuer string, now time.Time) (Session, error) {
	if !claims.VerifyExpiresAt(now.Unix(), true) {
		return Session{}, errors.New("token expired")
	}
	skewed := now.Add(clockSkew).Unix()
	if !claims.VerifyNotBefore(skewed, false) {
		return Session{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(skewed, false) {
		return Session{}, errors.New("token used before issued")
	}
	if audience != "" && !claims.VerifyAudience(audience, false) {
		return Session{}, errors.New("invalid audience")
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, false) {
		return Session{}, errors.New("invalid issuer")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Session{}, errors.New("missing sub")
	}
	var exp time.Time
	if v, ok := claims["exp"].(float64); ok {
		exp = time.Unix(int64(v), 0)
	}
	return Session{UserID: sub, Token: token, ExpiresAt: exp}, nil
}
