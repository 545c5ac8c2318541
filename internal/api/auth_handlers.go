package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/beaconapp/beacon-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/api/v1/auth/register",
		Summary:       "Register new user",
		Description:   "Creates an account. Without email and password the account is anonymous and logs in by id.",
		Tags:          []string{"Authentication"},
		DefaultStatus: http.StatusCreated,
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "User login",
		Description: "Logs in by id (anonymous accounts) or by email and password, and returns a bearer token",
		Tags:        []string{"Authentication"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "oauth",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/oauth",
		Summary:     "OAuth login",
		Description: "Logs in or registers a user whose email an external provider verified",
		Tags:        []string{"Authentication"},
	}, s.handleOAuth)

	huma.Register(s.api, huma.Operation{
		OperationID:   "requestPasswordReset",
		Method:        http.MethodPost,
		Path:          "/api/v1/auth/password-reset",
		Summary:       "Request password reset",
		Description:   "Mails a one-time code valid for 15 minutes. Always succeeds so emails cannot be enumerated.",
		Tags:          []string{"Authentication"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleRequestPasswordReset)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetPassword",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/password-reset/confirm",
		Summary:     "Reset password",
		Description: "Sets a new password using the mailed code",
		Tags:        []string{"Authentication"},
	}, s.handleResetPassword)
}

// === DTOs ===

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Name     string `json:"name" maxLength:"100" doc:"Display name"`
	Email    string `json:"email,omitempty" doc:"Email address, required together with password"`
	Password string `json:"password,omitempty" doc:"Password, at least 8 characters"`
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body RegisterRequest
}

// UserOutput wraps a user for Huma.
type UserOutput struct {
	Body UserResponse
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	ID       string `json:"id,omitempty" doc:"User ID, for anonymous accounts"`
	Email    string `json:"email,omitempty" doc:"User email"`
	Password string `json:"password,omitempty" doc:"User password"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body LoginRequest
}

// OAuthRequest is the request body for OAuth login.
type OAuthRequest struct {
	Email string `json:"email" doc:"Verified email"`
	Name  string `json:"name" doc:"Display name"`
}

// OAuthInput wraps the OAuth request for Huma.
type OAuthInput struct {
	Body OAuthRequest
}

// AuthResponse contains a bearer token and the user it belongs to.
type AuthResponse struct {
	Token     string       `json:"token" doc:"Bearer token"`
	TokenType string       `json:"token_type" doc:"Token type (Bearer)"`
	ExpiresAt time.Time    `json:"expires_at" doc:"Token expiry"`
	User      UserResponse `json:"user" doc:"Authenticated user"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// PasswordResetRequest is the request body for asking a reset code.
type PasswordResetRequest struct {
	Email string `json:"email" doc:"Account email"`
}

// PasswordResetInput wraps the reset request for Huma.
type PasswordResetInput struct {
	Body PasswordResetRequest
}

// ResetPasswordRequest is the request body for redeeming a reset code.
type ResetPasswordRequest struct {
	Email       string `json:"email" doc:"Account email"`
	Code        string `json:"code" doc:"Six digit code from the email"`
	NewPassword string `json:"new_password" doc:"New password"`
}

// ResetPasswordInput wraps the confirm request for Huma.
type ResetPasswordInput struct {
	Body ResetPasswordRequest
}

// MessageOutput wraps the message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*UserOutput, error) {
	if err := s.allow(s.authRateLimiter, clientIP(ctx)); err != nil {
		return nil, err
	}

	user, err := s.services.Auth.Register(ctx, service.RegisterRequest{
		Name:     input.Body.Name,
		Email:    input.Body.Email,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUser(user)}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	if err := s.allow(s.authRateLimiter, clientIP(ctx)); err != nil {
		return nil, err
	}

	resp, err := s.services.Auth.Login(ctx, service.LoginRequest{
		ID:       input.Body.ID,
		Email:    input.Body.Email,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Body: mapAuthResponse(resp)}, nil
}

func (s *Server) handleOAuth(ctx context.Context, input *OAuthInput) (*AuthOutput, error) {
	if err := s.allow(s.authRateLimiter, clientIP(ctx)); err != nil {
		return nil, err
	}

	resp, err := s.services.Auth.OAuth(ctx, service.OAuthRequest{
		Email: input.Body.Email,
		Name:  input.Body.Name,
	})
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Body: mapAuthResponse(resp)}, nil
}

func (s *Server) handleRequestPasswordReset(ctx context.Context, input *PasswordResetInput) (*MessageOutput, error) {
	if err := s.allow(s.authRateLimiter, clientIP(ctx)); err != nil {
		return nil, err
	}

	err := s.services.Auth.RequestPasswordReset(ctx, service.PasswordResetRequest{Email: input.Body.Email})
	if err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "If the address has an account, a code is on its way"}}, nil
}

func (s *Server) handleResetPassword(ctx context.Context, input *ResetPasswordInput) (*MessageOutput, error) {
	if err := s.allow(s.authRateLimiter, clientIP(ctx)); err != nil {
		return nil, err
	}

	err := s.services.Auth.ResetPassword(ctx, service.ResetPasswordRequest{
		Email:       input.Body.Email,
		Code:        input.Body.Code,
		NewPassword: input.Body.NewPassword,
	})
	if err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Password updated"}}, nil
}

// === Helpers ===

func mapAuthResponse(resp *service.TokenResponse) AuthResponse {
	return AuthResponse{
		Token:     resp.Token,
		TokenType: "Bearer",
		ExpiresAt: resp.ExpiresAt,
		User:      mapUser(resp.User),
	}
}
