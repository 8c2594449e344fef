package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
	"github.com/hoxsec/Godot-GameBackendAPI/pkg/config"
	"github.com/hoxsec/Godot-GameBackendAPI/pkg/crypto"
	jwtpkg "github.com/hoxsec/Godot-GameBackendAPI/pkg/jwt"
)

// Admin authenticates dashboard operators. Its token check gates both the
// admin HTTP routes and the telemetry stream handshake.
type Admin struct {
	admins repository.AdminRepository
	logger *slog.Logger
	cfg    config.APIConfig
	now    func() time.Time
}

// NewAdmin constructs an Admin authenticator.
func NewAdmin(admins repository.AdminRepository, logger *slog.Logger, cfg config.APIConfig) Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return Admin{admins: admins, logger: logger.With("component", "admin_auth"), cfg: cfg, now: time.Now}
}

// Login verifies operator credentials and issues an admin token.
func (a Admin) Login(ctx context.Context, username, password string) (*domain.Admin, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrValidation
	}
	admin, err := a.admins.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(admin.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := jwtpkg.GenerateToken(jwtpkg.Claims{
		Type:     jwtpkg.TypeAdmin,
		AdminID:  admin.ID,
		Username: admin.Username,
	}, a.cfg.AdminSecret, a.cfg.AdminTokenTTL)
	if err != nil {
		return nil, "", err
	}
	now := a.now().UTC()
	if err := a.admins.TouchAdminLogin(ctx, admin.ID, now); err != nil {
		a.logger.Warn("failed to record admin login", "admin_id", admin.ID, "error", err)
	} else {
		admin.LastLogin = &now
	}
	a.logger.Info("admin logged in", "admin_id", admin.ID, "username", admin.Username)
	return admin, token, nil
}

// Verify validates an admin token.
func (a Admin) Verify(token string) (*jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, ErrInvalidToken
	}
	claims, err := jwtpkg.ParseType(trimmed, a.cfg.AdminSecret, jwtpkg.TypeAdmin)
	if err != nil || claims.AdminID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Get returns the operator identified by id.
func (a Admin) Get(ctx context.Context, id int64) (*domain.Admin, error) {
	return a.admins.GetAdminByID(ctx, id)
}

// EnsureDefault seeds the configured default operator when none exist.
func (a Admin) EnsureDefault(ctx context.Context) error {
	count, err := a.admins.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := crypto.HashPassword(a.cfg.DefaultAdminPassword)
	if err != nil {
		return err
	}
	admin := &domain.Admin{
		Username:     a.cfg.DefaultAdminUsername,
		PasswordHash: hash,
		Role:         "admin",
		CreatedAt:    a.now().UTC(),
	}
	if err := a.admins.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil
		}
		return fmt.Errorf("create default admin: %w", err)
	}
	a.logger.Warn("default admin created, change its password", "username", admin.Username)
	return nil
}
