// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/simvault/simvault/internal/auth"
	"github.com/simvault/simvault/internal/auth/postgres"
)

type userCreateConfig struct {
	email         string
	role          string
	fullName      string
	organization  string
	passwordStdin bool
}

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}

	cfg := &userCreateConfig{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account without consulting the allowlist",
		Long: `Create registers a user on behalf of an operator. The account may be
given any role, and the email is treated as confirmed.

The password is read from the first line of standard input:

  printf '%s\n' "$PASSWORD" | simvault user create --email ops@example.com --role admin --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runUserCreate(cmd, cfg)
		},
	}
	create.Flags().StringVar(&cfg.email, "email", "", "account email (required)")
	create.Flags().StringVar(&cfg.role, "role", string(auth.RoleUser), "account role: user or admin")
	create.Flags().StringVar(&cfg.fullName, "full-name", "", "profile full name")
	create.Flags().StringVar(&cfg.organization, "organization", "", "profile organization")
	create.Flags().BoolVar(&cfg.passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke-sessions EMAIL",
		Short: "Revoke every refresh token of a user",
		Long: `Revoke-sessions signs a user out everywhere. Access tokens already
issued stay valid until they expire.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runUserRevokeSessions,
	})

	return cmd
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INVALID_ARGUMENT").With("operation", "read password").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("INVALID_ARGUMENT").Errorf("no password on stdin")
	}
	return password, nil
}

func (a *app) runUserCreate(cmd *cobra.Command, cfg *userCreateConfig) error {
	if !cfg.passwordStdin {
		return oops.Code("INVALID_ARGUMENT").Errorf("--password-stdin is required; passwords are never taken as arguments")
	}
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	pool, err := a.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := newAuthService(a.cfg, pool, a.logger)
	if err != nil {
		return err
	}

	req := auth.CreateUserRequest{
		Email:    cfg.email,
		Password: password,
		Role:     auth.Role(cfg.role),
	}
	if cfg.fullName != "" || cfg.organization != "" {
		req.Profile = &auth.Profile{FullName: cfg.fullName, Organization: cfg.organization}
	}

	user, err := svc.CreateUser(cmd.Context(), req)
	if err != nil {
		return err
	}
	cmd.Printf("Created %s user %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}

func (a *app) runUserRevokeSessions(cmd *cobra.Command, args []string) error {
	pool, err := a.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer pool.Close()

	user, err := postgres.NewUserRepository(pool).GetByEmail(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	revoked, err := postgres.NewRefreshTokenLedger(pool).RevokeAll(cmd.Context(), user.ID, auth.SystemClock.Now())
	if err != nil {
		return err
	}
	a.logger.Info("sessions revoked by operator", "user_id", user.ID.String(), "revoked", revoked)
	cmd.Printf("Revoked %d refresh token(s) for %s\n", revoked, user.Email)
	return nil
}
