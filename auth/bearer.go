package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

var errMissingToken = errors.New("missing bearer token")

// Bearer validates a pre-issued RS256 token against the issuer's JWKS. The
// key set is fetched lazily on the first Ensure so startup is bounded by the
// caller's context.
type Bearer struct {
	jwksURL  string
	token    string
	audience string
	issuer   string
	parser   *jwt.Parser
	now      func() time.Time

	mu      sync.Mutex
	jwks    *keyfunc.JWKS
	session Session
}

// NewBearer returns an identity for token issued by the Auth0 style domain.
func NewBearer(domain, audience, token string) *Bearer {
	return &Bearer{
		jwksURL:  fmt.Sprintf("https://%s/.well-known/jwks.json", domain),
		token:    token,
		audience: audience,
		issuer:   "https://" + domain + "/",
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation()),
		now:      time.Now,
	}
}

// NewBearerWithJWKS returns an identity using an already loaded key set.
func NewBearerWithJWKS(jwks *keyfunc.JWKS, audience, issuer, token string) *Bearer {
	return &Bearer{
		jwks:     jwks,
		token:    token,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation()),
		now:      time.Now,
	}
}

// Ensure validates the token and returns the session it describes.
func (b *Bearer) Ensure(ctx context.Context) (Session, error) {
	if b.token == "" {
		return Session{}, errMissingToken
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if b.session.Valid(now.Add(time.Minute)) {
		return b.session, nil
	}
	if b.jwks == nil {
		jwks, err := fetchJWKS(ctx, b.jwksURL)
		if err != nil {
			return Session{}, fmt.Errorf("jwks: %w", err)
		}
		b.jwks = jwks
	}

	parsed, err := b.parser.Parse(b.token, b.jwks.Keyfunc)
	if err != nil {
		return Session{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, errors.New("invalid claims")
	}
	sess, err := sessionFromClaims(b.token, claims, b.audience, b.issuer, now)
	if err != nil {
		return Session{}, err
	}
	b.session = sess
	return sess, nil
}

// Close stops the key set's background refresh.
func (b *Bearer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.jwks != nil {
		b.jwks.EndBackground()
	}
}

// fetchJWKS loads the key set, giving up when ctx ends even if the HTTP
// request is still in flight.
func fetchJWKS(ctx context.Context, url string) (*keyfunc.JWKS, error) {
	type result struct {
		jwks *keyfunc.JWKS
		err  error
	}
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	ch := make(chan result, 1)
	go func() {
		jwks, err := keyfunc.Get(url, keyfunc.Options{
			Ctx:             context.Background(),
			RefreshInterval: time.Hour,
			RefreshTimeout:  timeout,
		})
		ch <- result{jwks, err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.jwks != nil {
				r.jwks.EndBackground()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.jwks, r.err
	}
}
