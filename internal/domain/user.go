package domain

import (
	"slices"
	"time"
)

// User is a registered participant. Anonymous users have no email.
type User struct {
	Document
	Name         string         `json:"name"`
	Email        string         `json:"email,omitempty"`
	PasswordHash string         `json:"password_hash,omitempty"`
	IsVerified   bool           `json:"is_verified"`
	Location     *Location      `json:"location,omitempty"`
	Groups       []string       `json:"groups"`
	Beacons      []string       `json:"beacons"`
	Reset        *PasswordReset `json:"reset,omitempty"`
}

// PasswordReset is a pending one-time code. Only its digest is stored.
type PasswordReset struct {
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAnonymous reports whether the user registered without credentials.
func (u *User) IsAnonymous() bool {
	return u.Email == ""
}

// InGroup reports whether groupID is in the user's group set.
func (u *User) InGroup(groupID string) bool {
	return slices.Contains(u.Groups, groupID)
}

// InBeacon reports whether beaconID is in the user's beacon set.
func (u *User) InBeacon(beaconID string) bool {
	return slices.Contains(u.Beacons, beaconID)
}

// Profile is the public slice of a user that other participants may see.
type Profile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location *Location `json:"location,omitempty"`
}

// Profile returns the redacted view of u.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Location: u.Location}
}
