// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/simvault/simvault/internal/config"
	"github.com/simvault/simvault/internal/logging"
	"github.com/simvault/simvault/internal/store"
)

const serviceName = "simvault"

// app carries the state shared by every subcommand of one invocation.
type app struct {
	deps       *Deps
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCmd creates the root command for the simvault CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "simvault",
		Short: "SimVault - credential and session management",
		Long: `SimVault stores user credentials, issues access and refresh tokens,
and restricts self-service sign-up to allowlisted email domains.

This CLI administers the database: schema migrations, the sign-up
allowlist, operator-created accounts and refresh token maintenance.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newAllowlistCmd(a))
	cmd.AddCommand(newUserCmd(a))
	cmd.AddCommand(newTokenCmd(a))

	return cmd
}

// setup loads configuration and builds the logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.deps.ConfigLoader(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	a.cfg = cfg
	a.logger = logging.Setup(serviceName, version, cfg.Log.Format, cmd.ErrOrStderr(), level)
	return nil
}

// connect opens the database pool described by the loaded configuration.
func (a *app) connect(ctx context.Context) (Pool, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pool, err := a.deps.PoolFactory(ctx, a.cfg.Database.URL, store.ConnectOptions{
		MaxConns:  a.cfg.Database.MaxConns,
		Retries:   a.cfg.Database.ConnectRetries,
		RetryBase: store.DefaultRetryBase,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return pool, nil
}
