package security

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired indicates the token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates the token failed signature or claim validation.
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessClaims is the claim set carried by issued access tokens.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies a raw bearer token and returns its claims.
type TokenVerifier interface {
	Name() string
	Verify(token string) (*AccessClaims, error)
}

// HS256Issuer issues and verifies HMAC-signed access tokens.
type HS256Issuer struct {
	name   string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewHS256Issuer constructs an issuer for locally minted tokens.
func NewHS256Issuer(name, secret string, ttl time.Duration) *HS256Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HS256Issuer{
		name:   name,
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (i *HS256Issuer) WithClock(clock func() time.Time) *HS256Issuer {
	if clock != nil {
		i.now = clock
	}
	return i
}

// Name identifies the issuer in logs and auth results.
func (i *HS256Issuer) Name() string {
	return i.name
}

// TTL returns the configured token lifetime.
func (i *HS256Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a new access token for the supplied account.
func (i *HS256Issuer) Issue(accountID, email string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify parses and validates a token signed by this issuer.
func (i *HS256Issuer) Verify(token string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// VerifyAllowExpired validates the token signature but tolerates a passed exp
// claim. Refresh flows use it to identify the caller behind a stale token.
func (i *HS256Issuer) VerifyAllowExpired(token string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// VerifierChain tries each verifier in order and returns the first success.
// The order is significant: when an external identity provider is configured
// its verifier runs before the local one.
type VerifierChain struct {
	verifiers []TokenVerifier
}

// NewVerifierChain builds a chain from the supplied verifiers, skipping nils.
func NewVerifierChain(verifiers ...TokenVerifier) *VerifierChain {
	chain := make([]TokenVerifier, 0, len(verifiers))
	for _, v := range verifiers {
		if v != nil {
			chain = append(chain, v)
		}
	}
	return &VerifierChain{verifiers: chain}
}

// Verify walks the chain. It reports the verifier that accepted the token.
// Expiry is only surfaced when every verifier agrees the token is expired,
// otherwise the last non-expiry error wins.
func (c *VerifierChain) Verify(token string) (*AccessClaims, string, error) {
	if len(c.verifiers) == 0 {
		return nil, "", fmt.Errorf("no token verifiers configured")
	}

	var lastErr error
	expiredCount := 0
	for _, v := range c.verifiers {
		claims, err := v.Verify(token)
		if err == nil {
			return claims, v.Name(), nil
		}
		if errors.Is(err, ErrTokenExpired) {
			expiredCount++
		}
		lastErr = err
	}

	if expiredCount == len(c.verifiers) {
		return nil, "", ErrTokenExpired
	}
	return nil, "", lastErr
}
