package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2Hasher(t *testing.T) {
	var h Hasher = Argon2Hasher{}

	digest, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$"))

	assert.True(t, h.Verify("correct horse", digest))
	assert.False(t, h.Verify("wrong horse", digest))
	assert.False(t, h.Verify("correct horse", "not-a-digest"))

	_, err = h.Hash("")
	assert.Error(t, err)

	again, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, digest, again, "salt must differ")
}

func TestArgon2Hasher_ParamsTravelWithDigest(t *testing.T) {
	cheap := Argon2Hasher{Params: &Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}}

	digest, err := cheap.Hash("123456")
	require.NoError(t, err)
	assert.Contains(t, digest, "$m=1024,t=1,p=1$")

	// A hasher with other defaults still verifies the older digest.
	assert.True(t, Argon2Hasher{}.Verify("123456", digest))
	assert.False(t, Argon2Hasher{}.Verify("654321", digest))
}

func TestArgon2Hasher_RejectsMalformed(t *testing.T) {
	h := Argon2Hasher{}
	for _, digest := range []string{
		"",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5",
		"argon2id$v=19$m=1024,t=1,p=1$c2FsdA$a2V5$",
	} {
		assert.False(t, h.Verify("secret", digest), digest)
	}

	_, err := h.Hash(strings.Repeat("x", maxSecretLength+1))
	assert.Error(t, err)
	assert.False(t, h.Verify(strings.Repeat("x", maxSecretLength+1), "irrelevant"))
}

func newIssuers(t *testing.T) map[string]Issuer {
	t.Helper()
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	p, err := NewPasetoIssuer(key)
	require.NoError(t, err)
	j, err := NewJWTIssuer(strings.Repeat("s", 32))
	require.NoError(t, err)

	return map[string]Issuer{IssuerPASETO: p, IssuerJWT: j}
}

func TestIssuers_RoundTrip(t *testing.T) {
	for name, issuer := range newIssuers(t) {
		t.Run(name, func(t *testing.T) {
			token, err := issuer.Sign(Claims{Anon: false, Email: "a@example.com"}, "user-1", time.Hour)
			require.NoError(t, err)

			got, err := issuer.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, "user-1", got.Subject)
			assert.Equal(t, "a@example.com", got.Email)
			assert.False(t, got.Anon)
			assert.NotEmpty(t, got.TokenID)
			assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, 5*time.Second)

			anon, err := issuer.Sign(Claims{Anon: true}, "user-2", time.Hour)
			require.NoError(t, err)
			got, err = issuer.Verify(anon)
			require.NoError(t, err)
			assert.True(t, got.Anon)
			assert.Empty(t, got.Email)
		})
	}
}

func TestIssuers_RejectTampered(t *testing.T) {
	for name, issuer := range newIssuers(t) {
		t.Run(name, func(t *testing.T) {
			token, err := issuer.Sign(Claims{}, "user-1", time.Hour)
			require.NoError(t, err)

			_, err = issuer.Verify(token[:len(token)-4] + "AAAA")
			assert.ErrorIs(t, err, ErrInvalidToken)

			_, err = issuer.Verify("garbage")
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIssuers_Expired(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }

	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	p, err := NewPasetoIssuer(key)
	require.NoError(t, err)
	p.now = past

	j, err := NewJWTIssuer(strings.Repeat("s", 32))
	require.NoError(t, err)
	j.now = past

	pt, err := p.Sign(Claims{}, "user-1", time.Hour)
	require.NoError(t, err)
	p.now = time.Now
	_, err = p.Verify(pt)
	assert.ErrorIs(t, err, ErrTokenExpired)

	jt, err := j.Sign(Claims{}, "user-1", time.Hour)
	require.NoError(t, err)
	j.now = time.Now
	_, err = j.Verify(jt)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestNewIssuer(t *testing.T) {
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	iss, err := NewIssuer(IssuerConfig{PasetoKey: key})
	require.NoError(t, err)
	assert.IsType(t, &PasetoIssuer{}, iss)

	_, err = NewIssuer(IssuerConfig{Kind: IssuerJWT, JWTSecret: "short"})
	assert.Error(t, err)

	_, err = NewIssuer(IssuerConfig{Kind: "saml"})
	assert.Error(t, err)
}

func TestLoadOrGenerateKey_Persists(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyHexLength)

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.key"), []byte("abc"), 0o600))
	_, err = LoadOrGenerateKey(dir)
	assert.Error(t, err)
}

func TestNewOneTimeCode(t *testing.T) {
	for range 50 {
		code, err := NewOneTimeCode()
		require.NoError(t, err)
		require.Len(t, code, OneTimeCodeDigits)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', code)
		}
	}
}
