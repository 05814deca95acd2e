// Package auth verifies bearer tokens presented by clients on connection.
// Sessions work without authentication; when a token is supplied it carries
// a stable user identity used for reconnection and an optional role claim.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is the verified subject of a token.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

func (id Identity) Instructor() bool { return id.Role == "instructor" }

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Name: c.Name, Role: c.Role}, nil
}

// Sign issues a token for the given identity. Used by tests and by
// deployments that let this service mint its own session tokens.
func (v *JWTVerifier) Sign(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.UserID},
		Name:             id.Name,
		Role:             id.Role,
	})
	return token.SignedString(v.secret)
}

// NoopVerifier accepts any token and is used when no secret is configured.
// The raw token is taken as the user id so reconnection still works in
// development setups.
type NoopVerifier struct{}

func (NoopVerifier) Verify(token string) (Identity, error) {
	return Identity{UserID: token}, nil
}
