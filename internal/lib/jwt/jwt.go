package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 7 * 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour

	DefaultIssuer   = "portal"
	DefaultAudience = "customer-portal"
)

// Codec signs and verifies HS256 portal tokens.
type Codec struct {
	key        []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat/exp and validation.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithAccessTTL(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.accessTTL = d
		}
	}
}

func WithRefreshTTL(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.refreshTTL = d
		}
	}
}

func WithIssuer(iss string) Option {
	return func(c *Codec) {
		if iss != "" {
			c.issuer = iss
		}
	}
}

func WithAudience(aud string) Option {
	return func(c *Codec) {
		if aud != "" {
			c.audience = aud
		}
	}
}

// New creates a Codec signing with key.
func New(key []byte, opts ...Option) *Codec {
	c := &Codec{
		key:        key,
		issuer:     DefaultIssuer,
		audience:   DefaultAudience,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// TTL returns the validity window for tokens of the given type.
func (c *Codec) TTL(typ TokenType) time.Duration {
	switch typ {
	case Access:
		return c.accessTTL
	case Refresh:
		return c.refreshTTL
	default:
		return 0
	}
}

// Sign issues a token of type typ for the session and returns it with its expiry.
func (c *Codec) Sign(subject, email, sessionID string, typ TokenType) (string, time.Time, error) {
	if !typ.Valid() {
		return "", time.Time{}, fmt.Errorf("jwt: cannot sign token of type %s", typ)
	}
	if subject == "" || sessionID == "" {
		return "", time.Time{}, errors.New("not enough data for token generation")
	}

	now := c.now()

	claims := Claims{
		Email:     email,
		Type:      typ,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(typ))),
			ID:        generateJTI(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify checks signature, expiry and the fixed claims, then requires the
// token to be of the expected type.
func (c *Codec) Verify(tokenString string, expected TokenType) (*Claims, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongTokenType, claims.Type, expected)
	}

	return claims, nil
}

// Parse is Verify without the type check.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classify(err)
	}

	if !claims.Type.Valid() || claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing portal claims", ErrMalformedToken)
	}

	return claims, nil
}

func (c *Codec) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.key, nil
}

// DecodeUnsafe decodes the payload without checking signature or expiry.
// It is meant for logs and diagnostics only; never authorize with it.
// Returns nil when the token cannot be decoded.
func DecodeUnsafe(tokenString string) *Claims {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}

	return claims
}

func generateJTI() string {
	return uuid.New().String()
}
