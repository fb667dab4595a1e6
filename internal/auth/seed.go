package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
)

// EnsureAdmin creates the configured admin account if it does not exist yet.
// An existing account is left untouched, password included.
func EnsureAdmin(ctx context.Context, users UserStore, email, password string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if email == "" || password == "" {
		logger.Warn("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}
	_, err := users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := users.Create(ctx, email, hash, models.RoleAdmin); err != nil && !errors.Is(err, ErrEmailTaken) {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("admin account created", zap.String("email", email))
	return nil
}
