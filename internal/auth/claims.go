package auth

import "time"

// Claims are the application claims carried by a bearer token.
type Claims struct {
	// Anon is set for users who logged in by id without credentials.
	Anon  bool   `json:"anon"`
	Email string `json:"email,omitempty"`
}

// VerifiedToken is a token that passed signature and expiry checks.
type VerifiedToken struct {
	Claims
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// claimsKey namespaces the application claims inside the token body.
const claimsKey = "https://beacon.app/claims"
