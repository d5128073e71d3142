package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const defaultAnonymousTTL = time.Hour

// Anonymous signs the process in with a locally minted HS256 token whose
// subject is a fresh anonymous user id.
type Anonymous struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time

	mu      sync.Mutex
	session Session
}

// NewAnonymous returns an anonymous identity signing with secret. An empty
// secret is replaced by random bytes for the lifetime of the process.
func NewAnonymous(secret []byte, ttl time.Duration) *Anonymous {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("auth.NewAnonymous: " + err.Error())
		}
	}
	if ttl <= 0 {
		ttl = defaultAnonymousTTL
	}
	return &Anonymous{
		secret: secret,
		ttl:    ttl,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}
}

// Ensure returns the current session or signs in anonymously.
func (a *Anonymous) Ensure(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if a.session.Valid(now.Add(time.Minute)) {
		return a.session, nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "anon-" + uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return Session{}, err
	}
	sess, err := a.verify(signed, now)
	if err != nil {
		return Session{}, err
	}
	a.session = sess
	return sess, nil
}

func (a *Anonymous) verify(tokenStr string, now time.Time) (Session, error) {
	parsed, err := a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return Session{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, errors.New("invalid claims")
	}
	return sessionFromClaims(tokenStr, claims, "", "", now)
}
