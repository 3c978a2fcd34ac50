package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eventease/booking-service/internal/config"
	"github.com/eventease/booking-service/internal/handler"
	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/storage"
)

// ensureAdmin creates the configured administrator account unless it
// already exists.  Nothing happens when no credentials are configured.
func ensureAdmin(ctx context.Context, log *slog.Logger, users handler.UserStore, cfg config.AdminConfig, cost int) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	u, err := users.GetByEmail(ctx, cfg.Email)
	switch {
	case err == nil:
		if u.Role != model.RoleAdmin {
			log.Warn("admin email belongs to a regular user", slog.String("email", u.Email))
		}
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("look up admin: %w", err)
	}

	id, err := users.Create(ctx, cfg.Name, cfg.Email, cfg.Password, model.RoleAdmin, cost)
	if errors.Is(err, storage.ErrEmailExists) {
		// Another instance won the race.
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("admin account provisioned", slog.Uint64("user_id", id), slog.String("email", cfg.Email))
	return nil
}
