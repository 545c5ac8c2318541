// Package id mints document ids and join codes.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Kind is the prefix naming what an id refers to.
type Kind string

const (
	User         Kind = "user"
	Group        Kind = "group"
	Beacon       Kind = "beacon"
	Landmark     Kind = "landmark"
	Token        Kind = "token"
	Subscription Kind = "sub"
)

// 26^6 gives roughly 3.09e8 codes.
const (
	ShortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	ShortcodeLength   = 6
)

// Generate returns "<kind>-<nanoid>", e.g. "beacon-V1StGXR8_Z5jdHi6B-myT".
func Generate(kind Kind) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", kind, err)
	}
	return string(kind) + "-" + n, nil
}

// MustGenerate panics when the system is out of entropy.
func MustGenerate(kind Kind) string {
	v, err := Generate(kind)
	if err != nil {
		panic(err)
	}
	return v
}

// Code draws a random code of the given length from alphabet.
// Uniqueness is left to the store's unique index.
func Code(alphabet string, length int) (string, error) {
	if alphabet == "" || length <= 0 {
		return "", fmt.Errorf("generate code: invalid alphabet or length %d", length)
	}
	code, err := gonanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}

// Shortcode returns a human-shareable join code for a group or beacon.
func Shortcode() (string, error) {
	return Code(ShortcodeAlphabet, ShortcodeLength)
}
