package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired means the token was valid but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignature means the signature does not match the signing key.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenMalformed means the token could not be parsed at all.
	ErrTokenMalformed = errors.New("token malformed")
)

// TokenCodec signs and verifies compact, time-bound identity tokens (HS256).
// The signing key is shared by issuer and verifier and fixed for the process
// lifetime; tokens are self-contained, so no server-side state is needed.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: secret, ttl: ttl}
}

// TTL returns the configured validity duration.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue produces a signed token asserting subject from now until now+TTL.
func (c *TokenCodec) Issue(subject string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks the signature and expiry against now and returns the subject.
// Failures are reported as ErrTokenExpired, ErrTokenSignature, or
// ErrTokenMalformed.
func (c *TokenCodec) Verify(tokenString string, now time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignature
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithLeeway(0))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrTokenSignature):
			return "", ErrTokenSignature
		default:
			return "", ErrTokenMalformed
		}
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}
