/**
 * @description
 * This package owns the credential material handled by the aggregator-service:
 * the application-issued session token (a signed JWT binding to a principal
 * id) and inspection of the upstream provider's access token expiry.
 *
 * The signing secret is carried by an explicit Codec value wired at startup;
 * there is no process-wide signing state.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT signing, verification, and claim parsing.
 * - github.com/google/uuid: Principal ids and per-token jti values.
 */

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSessionToken = errors.New("invalid session token")
	ErrMalformedToken      = errors.New("malformed token")
)

// Codec issues and verifies session tokens. A session token is an HS256 JWT
// whose subject is the owning principal's id; every issue produces a fresh
// jti, so a rotated token never equals its predecessor.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec signing with the given secret.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Issue signs a new session token for the principal.
func (c *Codec) Issue(principalID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": principalID.String(),
		"jti": uuid.NewString(),
		"iat": time.Now().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// PrincipalID verifies the session token's signature and returns the
// principal id it binds to.
func (c *Codec) PrincipalID(sessionToken string) (uuid.UUID, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	parsed, err := parser.Parse(sessionToken, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidSessionToken
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidSessionToken
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidSessionToken
	}
	return id, nil
}

// AccessTokenExpiry extracts the expiry of an upstream access token without
// verifying its signature; the provider signs with its own keys and we only
// need the exp claim to decide whether a refresh is due. A malformed token
// or a missing exp claim yields ErrMalformedToken, which callers treat as
// expired.
func AccessTokenExpiry(accessToken string) (time.Time, error) {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, ErrMalformedToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrMalformedToken
	}
	return exp.Time, nil
}
