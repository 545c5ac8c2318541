package auth

import (
	"errors"
	"fmt"
	"time"
)

// Issuer kinds.
const (
	IssuerPASETO = "paseto"
	IssuerJWT    = "jwt"
)

const (
	tokenIssuer   = "beacon-server"
	tokenAudience = "beacon-client"
)

// Token verification errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Issuer signs and verifies bearer tokens.
type Issuer interface {
	Sign(claims Claims, subject string, ttl time.Duration) (string, error)
	Verify(token string) (*VerifiedToken, error)
}

// IssuerConfig selects and keys an Issuer.
type IssuerConfig struct {
	Kind string
	// PasetoKey is the hex-encoded v4.local key.
	PasetoKey string
	// JWTSecret is the HS256 signing secret.
	JWTSecret string
}

// NewIssuer creates the Issuer named by cfg.Kind.
func NewIssuer(cfg IssuerConfig) (Issuer, error) {
	switch cfg.Kind {
	case IssuerPASETO, "":
		return NewPasetoIssuer(cfg.PasetoKey)
	case IssuerJWT:
		return NewJWTIssuer(cfg.JWTSecret)
	default:
		return nil, fmt.Errorf("unknown token issuer %q", cfg.Kind)
	}
}
