package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
)

func TestRegisterAndLogin_Anonymous(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, RegisterRequest{Name: "ana"})
	require.NoError(t, err)
	assert.True(t, user.IsAnonymous())
	assert.Regexp(t, `^user-`, user.ID)

	resp, err := env.auth.Login(ctx, LoginRequest{ID: user.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), resp.ExpiresAt, time.Minute)

	verified, err := env.auth.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.Subject)
	assert.True(t, verified.Anon)
	assert.Empty(t, verified.Email)

	_, err = env.auth.Login(ctx, LoginRequest{ID: "user-unknown"})
	requireCode(t, err, domainerrors.CodeInvalidCredentials, "")

	_, err = env.auth.Login(ctx, LoginRequest{})
	requireCode(t, err, domainerrors.CodeValidation, "")
}

func TestRegisterAndLogin_Credentials(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, RegisterRequest{Name: "ana", Email: "Ana@Example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.False(t, user.IsAnonymous())
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.auth.Register(ctx, RegisterRequest{Name: "imposter", Email: "ana@example.com", Password: "another-pass"})
		requireCode(t, err, domainerrors.CodeConflict, "")
	})

	t.Run("short password", func(t *testing.T) {
		_, err := env.auth.Register(ctx, RegisterRequest{Name: "bo", Email: "bo@example.com", Password: "short"})
		requireCode(t, err, domainerrors.CodeValidation, "")
	})

	t.Run("password without email", func(t *testing.T) {
		_, err := env.auth.Register(ctx, RegisterRequest{Name: "bo", Password: "long-enough"})
		requireCode(t, err, domainerrors.CodeValidation, "")
	})

	t.Run("id login refused", func(t *testing.T) {
		_, err := env.auth.Login(ctx, LoginRequest{ID: user.ID})
		requireCode(t, err, domainerrors.CodeInvalidCredentials, "")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.auth.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "nope-nope"})
		requireCode(t, err, domainerrors.CodeInvalidCredentials, "")
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := env.auth.Login(ctx, LoginRequest{Email: "who@example.com", Password: "s3cret-pass"})
		requireCode(t, err, domainerrors.CodeInvalidCredentials, "")
	})

	t.Run("success", func(t *testing.T) {
		resp, err := env.auth.Login(ctx, LoginRequest{Email: "ANA@example.com", Password: "s3cret-pass"})
		require.NoError(t, err)
		verified, err := env.auth.Authenticate(ctx, resp.Token)
		require.NoError(t, err)
		assert.False(t, verified.Anon)
		assert.Equal(t, "Ana@Example.com", verified.Email)
	})
}

func TestOAuth(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	first, err := env.auth.OAuth(ctx, OAuthRequest{Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)
	assert.True(t, first.User.IsVerified)

	again, err := env.auth.OAuth(ctx, OAuthRequest{Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)

	// An unverified credential account becomes verified.
	plain, err := env.auth.Register(ctx, RegisterRequest{Name: "ben", Email: "ben@example.com", Password: "password1"})
	require.NoError(t, err)
	require.False(t, plain.IsVerified)
	resp, err := env.auth.OAuth(ctx, OAuthRequest{Email: "ben@example.com", Name: "Ben"})
	require.NoError(t, err)
	assert.Equal(t, plain.ID, resp.User.ID)
	assert.True(t, resp.User.IsVerified)
}

func TestPasswordReset(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user, err := env.auth.Register(ctx, RegisterRequest{Name: "ana", Email: "ana@example.com", Password: "old-password"})
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, PasswordResetRequest{Email: "nobody@example.com"}))
	assert.Empty(t, env.mail.sent, "unknown emails get no mail")

	require.NoError(t, env.auth.RequestPasswordReset(ctx, PasswordResetRequest{Email: "ana@example.com"}))
	require.Len(t, env.mail.sent, 1)
	assert.Equal(t, "ana@example.com", env.mail.sent[0].To)
	code := regexp.MustCompile(`\b\d{6}\b`).FindString(env.mail.sent[0].Body)
	require.NotEmpty(t, code)

	stored := env.reload(t, user)
	require.NotNil(t, stored.Reset)
	assert.NotContains(t, stored.Reset.CodeHash, code, "only the digest is stored")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = env.auth.ResetPassword(ctx, ResetPasswordRequest{Email: "ana@example.com", Code: wrong, NewPassword: "new-password"})
	requireCode(t, err, domainerrors.CodeInvalidCredentials, "")

	require.NoError(t, env.auth.ResetPassword(ctx, ResetPasswordRequest{Email: "ana@example.com", Code: code, NewPassword: "new-password"}))
	assert.Nil(t, env.reload(t, user).Reset, "a used code is cleared")

	_, err = env.auth.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "old-password"})
	requireCode(t, err, domainerrors.CodeInvalidCredentials, "")
	_, err = env.auth.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "new-password"})
	require.NoError(t, err)

	err = env.auth.ResetPassword(ctx, ResetPasswordRequest{Email: "ana@example.com", Code: code, NewPassword: "third-password"})
	requireCode(t, err, domainerrors.CodeInvalidCredentials, "")
}

func TestPasswordReset_Expired(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, RegisterRequest{Name: "ana", Email: "ana@example.com", Password: "old-password"})
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, PasswordResetRequest{Email: "ana@example.com"}))
	code := regexp.MustCompile(`\b\d{6}\b`).FindString(env.mail.sent[0].Body)

	env.auth.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	err = env.auth.ResetPassword(ctx, ResetPasswordRequest{Email: "ana@example.com", Code: code, NewPassword: "new-password"})
	requireCode(t, err, domainerrors.CodeInvalidCredentials, "")
}

func TestAuthenticate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "ana")
	resp, err := env.auth.Login(ctx, LoginRequest{ID: user.ID})
	require.NoError(t, err)

	_, err = env.auth.Authenticate(ctx, resp.Token+"x")
	requireCode(t, err, domainerrors.CodeUnauthorized, "")

	require.NoError(t, env.users.DeleteUser(ctx, user.ID, DeleteAccountRequest{}))
	_, err = env.auth.Authenticate(ctx, resp.Token)
	requireCode(t, err, domainerrors.CodeUnauthorized, "")
}

func TestAuthenticate_Expired(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.auth.cfg.TokenTTL = time.Millisecond
	user := env.user(t, "ana")

	resp, err := env.auth.Login(ctx, LoginRequest{ID: user.ID})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = env.auth.Authenticate(ctx, resp.Token)
	requireCode(t, err, domainerrors.CodeTokenExpired, "")
}
