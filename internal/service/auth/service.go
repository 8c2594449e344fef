package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
	"github.com/hoxsec/Godot-GameBackendAPI/pkg/config"
	"github.com/hoxsec/Godot-GameBackendAPI/pkg/crypto"
	jwtpkg "github.com/hoxsec/Godot-GameBackendAPI/pkg/jwt"
)

var (
	// ErrInvalidCredentials is returned when an email/username and password do not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrInvalidToken is returned for missing, expired, malformed or mistyped tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrValidation is returned when required input is missing.
	ErrValidation = errors.New("auth: email and password are required")
)

// Service handles player authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
	now    func() time.Time
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, logger: logger.With("component", "auth"), cfg: cfg, now: time.Now}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Guest creates an anonymous player.
func (s Service) Guest(ctx context.Context) (*domain.User, TokenPair, error) {
	user := &domain.User{
		ID:        "guest_" + uuid.NewString(),
		Type:      domain.UserTypeGuest,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, TokenPair{}, fmt.Errorf("create guest: %w", err)
	}
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("guest created", "user_id", user.ID)
	return user, tokens, nil
}

// Register creates a registered player.
func (s Service) Register(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrValidation
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	user := &domain.User{
		ID:           "user_" + uuid.NewString(),
		Email:        &email,
		PasswordHash: hash,
		Type:         domain.UserTypeRegistered,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, TokenPair{}, ErrEmailTaken
		}
		return nil, TokenPair{}, fmt.Errorf("create user: %w", err)
	}
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

// Login authenticates a registered player and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrValidation
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s Service) Refresh(refreshToken string) (string, TokenPair, error) {
	claims, err := jwtpkg.ParseType(strings.TrimSpace(refreshToken), s.cfg.JWTSecret, jwtpkg.TypeRefresh)
	if err != nil || claims.UserID == "" {
		return "", TokenPair{}, ErrInvalidToken
	}
	tokens, err := s.issueTokens(claims.UserID)
	if err != nil {
		return "", TokenPair{}, err
	}
	s.logger.Info("token refreshed", "user_id", claims.UserID)
	return claims.UserID, tokens, nil
}

// Authorize validates an access token and returns the player id it carries.
func (s Service) Authorize(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	claims, err := jwtpkg.ParseType(trimmed, s.cfg.JWTSecret, jwtpkg.TypeAccess)
	if err != nil || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// Banned reports whether the player is banned. Lookup failures are returned
// to the caller, which decides whether to fail open.
func (s Service) Banned(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Banned, nil
}

// SetBanned bans or unbans a player.
func (s Service) SetBanned(ctx context.Context, userID string, banned bool) error {
	if err := s.users.SetUserBanned(ctx, userID, banned); err != nil {
		return err
	}
	s.logger.Info("user ban updated", "user_id", userID, "banned", banned)
	return nil
}

func (s Service) issueTokens(userID string) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(jwtpkg.Claims{Type: jwtpkg.TypeAccess, UserID: userID}, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(jwtpkg.Claims{Type: jwtpkg.TypeRefresh, UserID: userID}, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
