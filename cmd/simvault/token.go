// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/simvault/simvault/internal/auth"
	"github.com/simvault/simvault/internal/auth/postgres"
	"github.com/simvault/simvault/internal/xdg"
)

const defaultKeyFile = "jwt_ed25519.pem"

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect access tokens and maintain the refresh token ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "introspect TOKEN",
		Short: "Verify an access token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runTokenIntrospect,
	})

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh tokens",
		Long: `Purge deletes refresh tokens whose expiry lies more than --older-than
in the past. Revoked but unexpired tokens are kept so reuse can still be
detected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTokenPurge(cmd, olderThan)
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "grace period after expiry (e.g. 24h)")
	cmd.AddCommand(purge)

	var out string
	var force bool
	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 signing key for EdDSA access tokens",
		Long: `Keygen writes a PKCS#8 PEM private key. Point auth.jwt.private_key_file
at it and set auth.jwt.algorithm to EdDSA.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTokenKeygen(cmd, out, force)
		},
	}
	keygen.Flags().StringVar(&out, "out", "", "key file path (default $XDG_CONFIG_HOME/simvault/"+defaultKeyFile+")")
	keygen.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	cmd.AddCommand(keygen)

	return cmd
}

func (a *app) runTokenIntrospect(cmd *cobra.Command, args []string) error {
	issuerCfg, err := a.cfg.IssuerConfig()
	if err != nil {
		return err
	}
	issuer, err := auth.NewTokenIssuer(issuerCfg)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("component", "token issuer").Wrap(err)
	}

	claims, err := issuer.VerifyAccess(args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return oops.With("operation", "encode claims").Wrap(err)
	}
	cmd.Println(string(out))
	return nil
}

func (a *app) runTokenPurge(cmd *cobra.Command, olderThan time.Duration) error {
	if olderThan < 0 {
		return oops.Code("INVALID_ARGUMENT").Errorf("--older-than must not be negative")
	}

	pool, err := a.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer pool.Close()

	cutoff := auth.SystemClock.Now().Add(-olderThan)
	deleted, err := postgres.NewRefreshTokenLedger(pool).DeleteExpired(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	a.logger.Info("expired refresh tokens purged", "deleted", deleted, "cutoff", cutoff)
	cmd.Printf("Deleted %d expired refresh token(s)\n", deleted)
	return nil
}

func runTokenKeygen(cmd *cobra.Command, path string, force bool) error {
	if path == "" {
		dir, err := xdg.ConfigDir()
		if err != nil {
			return oops.Code("KEYGEN_FAILED").Wrap(err)
		}
		path = filepath.Join(dir, defaultKeyFile)
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return oops.Code("KEYGEN_FAILED").Wrap(err)
	}

	keyPEM, err := generateSigningKey()
	if err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600) //nolint:gosec // operator-chosen path
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return oops.Code("KEY_EXISTS").With("path", path).Errorf("%s already exists; pass --force to replace it", path)
		}
		return oops.Code("KEYGEN_FAILED").With("path", path).Wrap(err)
	}
	if _, err := f.Write(keyPEM); err != nil {
		_ = f.Close()
		return oops.Code("KEYGEN_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("KEYGEN_FAILED").With("path", path).Wrap(err)
	}

	cmd.Printf("Wrote ed25519 signing key to %s\n", path)
	return nil
}

func generateSigningKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, oops.Code("KEYGEN_FAILED").With("operation", "generate key").Wrap(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, oops.Code("KEYGEN_FAILED").With("operation", "marshal key").Wrap(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
