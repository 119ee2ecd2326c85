package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	iauth "github.com/charlesng35/arenahub/internal/auth"
	"github.com/charlesng35/arenahub/internal/auth/providers"
	"github.com/charlesng35/arenahub/internal/models"
	apperrors "github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/metrics"
	"github.com/charlesng35/arenahub/pkg/validator"
)

// SignupInput carries the sign-up form.
type SignupInput struct {
	Gamertag string
	Email    string
	Password string
}

// LoginInput identifies a player by email or gamertag.
type LoginInput struct {
	Identifier string
	Password   string
}

// AuthResult is returned after a successful sign-up or login.
type AuthResult struct {
	Tokens iauth.TokenPair `json:"tokens"`
	User   UserProfile     `json:"user"`
}

// AuthService signs players up and in, and manages their sessions.
type AuthService struct {
	local    *providers.LocalProvider
	sessions *iauth.SessionService
	audit    *AuditService
}

// NewAuthService wires the local credential provider to the session service.
func NewAuthService(local *providers.LocalProvider, sessions *iauth.SessionService, audit *AuditService) (*AuthService, error) {
	if local == nil {
		return nil, errors.New("auth service: local provider is required")
	}
	if sessions == nil {
		return nil, errors.New("auth service: session service is required")
	}
	return &AuthService{local: local, sessions: sessions, audit: audit}, nil
}

// Signup registers a player and opens their first session.
func (s *AuthService) Signup(ctx context.Context, input SignupInput, meta iauth.SessionMetadata) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	gamertag := strings.TrimSpace(input.Gamertag)
	if !validator.IsGamertag(gamertag) {
		metrics.AuthAttempts.WithLabelValues("signup", "failure").Inc()
		return nil, ErrInvalidGamertag
	}

	user, err := s.local.Register(ctx, providers.RegisterInput{
		Gamertag: gamertag,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("signup", "failure").Inc()
		return nil, mapProviderError(err)
	}

	result, err := s.open(ctx, user, meta)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("signup", "failure").Inc()
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("signup", "success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:    &user.ID,
		Gamertag:  user.Gamertag,
		Action:    "auth.signup",
		Resource:  user.ID,
		Result:    "success",
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return result, nil
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, input LoginInput, meta iauth.SessionMetadata) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	user, err := s.local.Authenticate(ctx, providers.AuthenticateInput{
		Identifier: input.Identifier,
		Password:   input.Password,
		IPAddress:  meta.IPAddress,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		recordAudit(s.audit, ctx, AuditEntry{
			Action:    "auth.login",
			Result:    "failure",
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]any{"identifier": strings.TrimSpace(input.Identifier)},
		})
		return nil, mapProviderError(err)
	}

	result, err := s.open(ctx, user, meta)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:    &user.ID,
		Gamertag:  user.Gamertag,
		Action:    "auth.login",
		Resource:  user.ID,
		Result:    "success",
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return result, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (iauth.TokenPair, error) {
	pair, _, err := s.sessions.RefreshSession(ensureContext(ctx), refreshToken)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("refresh", "failure").Inc()
		if isSessionError(err) {
			return iauth.TokenPair{}, apperrors.ErrUnauthorized
		}
		return iauth.TokenPair{}, err
	}
	metrics.AuthAttempts.WithLabelValues("refresh", "success").Inc()
	return pair, nil
}

// Logout revokes the session behind the caller's access token. The access
// token itself remains valid until it expires.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	ctx = ensureContext(ctx)
	if err := s.sessions.RevokeSession(ctx, sessionID); err != nil {
		if isSessionError(err) {
			return apperrors.ErrUnauthorized
		}
		return err
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "auth.logout",
		Resource: sessionID,
		Result:   "success",
	})
	return nil
}

// ChangePassword replaces the caller's password and revokes every session they
// hold, including the one that made the request. Outstanding access tokens stay
// valid until they expire.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta iauth.SessionMetadata) error {
	ctx = ensureContext(ctx)

	if err := s.local.ChangePassword(ctx, userID, currentPassword, newPassword); err != nil {
		metrics.AuthAttempts.WithLabelValues("password_change", "failure").Inc()
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:    &userID,
			Action:    "auth.password_change",
			Resource:  userID,
			Result:    "failure",
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		return mapProviderError(err)
	}

	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("auth service: revoke sessions: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("password_change", "success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:    &userID,
		Action:    "auth.password_change",
		Resource:  userID,
		Result:    "success",
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return nil
}

func (s *AuthService) open(ctx context.Context, user *models.User, meta iauth.SessionMetadata) (*AuthResult, error) {
	pair, _, err := s.sessions.CreateSession(ctx, iauth.Subject{UserID: user.ID, Gamertag: user.Gamertag}, meta)
	if err != nil {
		return nil, fmt.Errorf("auth service: create session: %w", err)
	}
	return &AuthResult{Tokens: pair, User: NewUserProfile(user, true)}, nil
}

func mapProviderError(err error) error {
	switch {
	case errors.Is(err, providers.ErrInvalidCredentials):
		return apperrors.ErrInvalidCredentials
	case errors.Is(err, providers.ErrAccountLocked):
		return apperrors.ErrAccountLocked
	case errors.Is(err, providers.ErrEmailInUse):
		return ErrEmailInUse
	case errors.Is(err, providers.ErrGamertagInUse):
		return ErrGamertagInUse
	case errors.Is(err, providers.ErrWeakPassword):
		return ErrWeakPassword
	}
	return err
}

func isSessionError(err error) bool {
	return errors.Is(err, iauth.ErrSessionNotFound) ||
		errors.Is(err, iauth.ErrSessionRevoked) ||
		errors.Is(err, iauth.ErrSessionExpired) ||
		errors.Is(err, iauth.ErrSessionInvalidToken)
}
