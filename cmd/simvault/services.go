// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"

	"github.com/simvault/simvault/internal/auth"
	"github.com/simvault/simvault/internal/auth/postgres"
	"github.com/simvault/simvault/internal/config"
)

// newAuthService assembles the session service the same way a server
// process would: pooled Argon2id hashing, the configured signing key and
// PostgreSQL-backed stores.
func newAuthService(cfg *config.Config, db postgres.DB, logger *slog.Logger) (*auth.Service, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.Argon2Params())
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("component", "hasher").Wrap(err)
	}
	pool, err := auth.NewHashPool(hasher, cfg.Auth.HashConcurrency)
	if err != nil {
		return nil, err
	}

	issuerCfg, err := cfg.IssuerConfig()
	if err != nil {
		return nil, err
	}
	issuer, err := auth.NewTokenIssuer(issuerCfg)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("component", "token issuer").Wrap(err)
	}

	validator, err := auth.NewDomainValidator(postgres.NewAllowlistRepository(db),
		auth.WithCacheTTL(cfg.Auth.AllowlistCacheTTL),
		auth.WithValidatorLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return auth.NewService(
		postgres.NewUserRepository(db),
		postgres.NewRefreshTokenLedger(db),
		issuer,
		pool,
		validator,
		auth.WithLogger(logger),
		auth.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
		auth.WithRequestTimeout(cfg.Auth.RequestTimeout),
		auth.WithFamilyRevocationOnReuse(cfg.Auth.RevokeFamilyOnReuse),
	)
}
