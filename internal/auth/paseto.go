package auth

import (
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/beaconapp/beacon-server/internal/id"
)

// PasetoIssuer issues encrypted v4.local tokens.
type PasetoIssuer struct {
	key paseto.V4SymmetricKey
	now func() time.Time
}

// NewPasetoIssuer creates an issuer from a hex-encoded 32-byte key.
func NewPasetoIssuer(keyHex string) (*PasetoIssuer, error) {
	key, err := parseKey(keyHex)
	if err != nil {
		return nil, err
	}
	return &PasetoIssuer{key: key, now: time.Now}, nil
}

// Sign implements Issuer.
func (p *PasetoIssuer) Sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := p.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(subject)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(ttl))

	tokenID, err := id.Generate(id.Token)
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	if err := token.Set(claimsKey, claims); err != nil {
		return "", fmt.Errorf("set claims: %w", err)
	}

	return token.V4Encrypt(p.key, nil), nil
}

// Verify implements Issuer.
func (p *PasetoIssuer) Verify(tokenString string) (*VerifiedToken, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))

	token, err := parser.ParseV4Local(p.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	exp, err := token.GetExpiration()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !p.now().Before(exp) {
		return nil, ErrTokenExpired
	}

	var claims Claims
	if err := token.Get(claimsKey, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	out := &VerifiedToken{Claims: claims, ExpiresAt: exp}
	if out.Subject, err = token.GetSubject(); err != nil {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	out.TokenID, _ = token.GetJti()
	out.IssuedAt, _ = token.GetIssuedAt()
	return out, nil
}
