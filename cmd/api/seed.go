package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/drs-api/internal/application/auth"
	"github.com/drs-api/internal/config"
	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/pkg/id"
	"github.com/rs/zerolog"
)

// seedAdmin creates the first admin from ADMIN_SEED_* when that email is not
// registered yet. The seeded admin is active and verified.
func seedAdmin(ctx context.Context, cfg *config.Config, admins auth.AccountStore, hasher auth.Hasher, now func() time.Time, log zerolog.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminSeedEmail))
	if email == "" || cfg.AdminSeedPassword == "" {
		return nil
	}
	_, err := admins.FindByEmail(ctx, email)
	switch {
	case err == nil:
		log.Debug().Str("email", email).Msg("seed admin already present")
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	hash, err := hasher.Hash(cfg.AdminSeedPassword)
	if err != nil {
		return err
	}
	ts := now().UTC()
	a := &domain.Account{
		AccountID:    id.New(),
		Kind:         domain.KindAdmin,
		Name:         cfg.AdminSeedName,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		IsActive:     true,
		IsVerified:   true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := admins.Save(ctx, a); err != nil {
		return err
	}
	log.Info().Str("account_id", a.AccountID).Str("email", email).Msg("seed admin created")
	return nil
}
