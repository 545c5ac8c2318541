package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconapp/beacon-server/internal/auth"
	"github.com/beaconapp/beacon-server/internal/domain"
	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/id"
	"github.com/beaconapp/beacon-server/internal/mail"
	"github.com/beaconapp/beacon-server/internal/store"
)

// AuthConfig tunes token and reset code lifetimes.
type AuthConfig struct {
	TokenTTL time.Duration
	ResetTTL time.Duration
}

// DefaultAuthConfig returns a 7 day token and a 15 minute reset code.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		TokenTTL: 7 * 24 * time.Hour,
		ResetTTL: 15 * time.Minute,
	}
}

// AuthService registers users and issues bearer tokens.
type AuthService struct {
	store  *store.Store
	hasher auth.Hasher
	issuer auth.Issuer
	mailer mail.Dispatcher
	cfg    AuthConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates an authentication service.
func NewAuthService(
	s *store.Store,
	hasher auth.Hasher,
	issuer auth.Issuer,
	mailer mail.Dispatcher,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	def := DefaultAuthConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = def.ResetTTL
	}
	return &AuthService{
		store:  s,
		hasher: hasher,
		issuer: issuer,
		mailer: mailer,
		cfg:    cfg,
		logger: loggerOrDiscard(logger),
		now:    time.Now,
	}
}

// RegisterRequest creates an account. Email and password are optional but
// must be given together.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Password string `json:"password,omitempty" validate:"required_with=Email,excluded_without=Email,max=1024"`
}

// minPasswordLength applies to every password a user sets.
const minPasswordLength = 8

// LoginRequest logs in anonymously by id or with credentials.
type LoginRequest struct {
	ID       string `json:"id,omitempty" validate:"required_without=Email"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password,omitempty" validate:"required_with=Email,max=1024"`
}

// OAuthRequest carries an identity verified by an external provider.
type OAuthRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"required,max=100"`
}

// PasswordResetRequest asks for a reset code.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest redeems a reset code.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,numeric,len=6"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=1024"`
}

// TokenResponse is a signed bearer token for a user.
type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// Register creates a user. Anonymous users log in by id afterwards.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	if req.Email != "" && len(req.Password) < minPasswordLength {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{
			"password": fmt.Sprintf("must be at least %d characters", minPasswordLength),
		})
	}

	user := &domain.User{Name: req.Name, Email: req.Email}
	if req.Password != "" {
		digest, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, domainerrors.Internal("failed to hash password").WithCause(err)
		}
		user.PasswordHash = digest
	}
	if err := s.insertUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "anonymous", user.IsAnonymous())
	return user, nil
}

// Login authenticates by id (anonymous accounts only) or by email and password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	if req.Email == "" {
		user, err := s.store.GetUser(ctx, req.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, domainerrors.InvalidCredentials("unknown user")
			}
			return nil, translate(err)
		}
		if !user.IsAnonymous() {
			return nil, domainerrors.InvalidCredentials("this account must log in with email and password")
		}
		return s.issue(user)
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, translate(err)
	}
	if user.PasswordHash == "" || !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}
	return s.issue(user)
}

// OAuth logs in the user owning a verified email, creating them on first use.
func (s *AuthService) OAuth(ctx context.Context, req OAuthRequest) (*TokenResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		user = &domain.User{Name: req.Name, Email: req.Email, IsVerified: true}
		if err := s.insertUser(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("user registered through oauth", "user_id", user.ID)
	case err != nil:
		return nil, translate(err)
	case !user.IsVerified:
		user, err = s.store.UpdateUser(ctx, user.ID, func(u *domain.User) error {
			u.IsVerified = true
			return nil
		})
		if err != nil {
			return nil, translate(err)
		}
	}
	return s.issue(user)
}

// RequestPasswordReset mails a one-time code to the account owning email.
// Unknown emails succeed silently so accounts cannot be enumerated.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error {
	if err := validate.Validate(req); err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return translate(err)
	}

	code, err := auth.NewOneTimeCode()
	if err != nil {
		return domainerrors.Internal("failed to generate reset code").WithCause(err)
	}
	digest, err := s.hasher.Hash(code)
	if err != nil {
		return domainerrors.Internal("failed to hash reset code").WithCause(err)
	}

	reset := &domain.PasswordReset{CodeHash: digest, ExpiresAt: s.now().Add(s.cfg.ResetTTL)}
	if err := s.store.SetPasswordReset(ctx, user.ID, reset); err != nil {
		return translate(err)
	}

	msg := mail.Message{
		To:      user.Email,
		Subject: "Your password reset code",
		Body: fmt.Sprintf("Hi %s,\n\nYour password reset code is %s. It expires in %d minutes.\n",
			user.Name, code, int(s.cfg.ResetTTL.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send password reset mail", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword replaces the password when code matches the pending reset.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validate.Validate(req); err != nil {
		return err
	}

	invalid := domainerrors.InvalidCredentials("invalid or expired reset code")

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return invalid
	}
	if err != nil {
		return translate(err)
	}
	if user.Reset == nil || !user.Reset.ExpiresAt.After(s.now()) || !s.hasher.Verify(req.Code, user.Reset.CodeHash) {
		return invalid
	}

	digest, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return domainerrors.Internal("failed to hash password").WithCause(err)
	}

	_, err = s.store.UpdateUser(ctx, user.ID, func(u *domain.User) error {
		// A second reset request may have replaced the code meanwhile.
		if u.Reset == nil || u.Reset.CodeHash != user.Reset.CodeHash {
			return invalid
		}
		u.PasswordHash = digest
		u.Reset = nil
		return nil
	})
	if err != nil {
		return translate(err)
	}

	s.logger.Info("password reset", "user_id", user.ID)
	return nil
}

// Authenticate verifies a bearer token and returns its subject.
// Tokens of deleted users are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.VerifiedToken, error) {
	verified, err := s.issuer.Verify(token)
	if errors.Is(err, auth.ErrTokenExpired) {
		return nil, domainerrors.TokenExpired("token has expired")
	}
	if err != nil {
		return nil, domainerrors.Unauthorized("invalid token")
	}

	if _, err := s.store.GetUser(ctx, verified.Subject); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.Unauthorized("account no longer exists")
		}
		return nil, translate(err)
	}
	return verified, nil
}

func (s *AuthService) insertUser(ctx context.Context, user *domain.User) error {
	userID, err := id.Generate(id.User)
	if err != nil {
		return domainerrors.Internal("failed to generate user id").WithCause(err)
	}
	user.ID = userID
	user.InitTimestamps()

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return domainerrors.Conflict("email is already registered")
		}
		return translate(err)
	}
	return nil
}

func (s *AuthService) issue(user *domain.User) (*TokenResponse, error) {
	claims := auth.Claims{Anon: user.IsAnonymous(), Email: user.Email}
	token, err := s.issuer.Sign(claims, user.ID, s.cfg.TokenTTL)
	if err != nil {
		return nil, domainerrors.Internal("failed to sign token").WithCause(err)
	}
	return &TokenResponse{
		Token:     token,
		ExpiresAt: s.now().Add(s.cfg.TokenTTL),
		User:      user,
	}, nil
}
