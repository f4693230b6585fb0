// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/simvault/simvault/internal/auth"
	"github.com/simvault/simvault/internal/auth/postgres"
)

const (
	entryDomain = "domain"
	entryEmail  = "email"
)

func newAllowlistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Manage the sign-up allowlist",
		Long: `Self-service sign-up is limited to allowlisted email domains and
individual addresses. Domains may be exact ("example.com") or glob
patterns ("*.example.com").`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List allowlisted domains and emails",
		Args:  cobra.NoArgs,
		RunE:  a.runAllowlistList,
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "add {domain|email} VALUE...",
		Short:     "Allowlist domains or email addresses",
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: []string{entryDomain, entryEmail},
		RunE:      a.runAllowlistAdd,
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "remove {domain|email} VALUE",
		Short:     "Remove an allowlist entry",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{entryDomain, entryEmail},
		RunE:      a.runAllowlistRemove,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check EMAIL",
		Short: "Report whether an email may sign up",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runAllowlistCheck,
	})

	return cmd
}

// withAllowlist runs fn against the allowlist repository on a fresh pool.
func (a *app) withAllowlist(ctx context.Context, fn func(*postgres.AllowlistRepository) error) error {
	pool, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(postgres.NewAllowlistRepository(pool))
}

func checkEntryKind(kind string) error {
	if kind != entryDomain && kind != entryEmail {
		return oops.Code("INVALID_ARGUMENT").With("kind", kind).Errorf("entry kind must be %q or %q", entryDomain, entryEmail)
	}
	return nil
}

func (a *app) runAllowlistList(cmd *cobra.Command, _ []string) error {
	return a.withAllowlist(cmd.Context(), func(repo *postgres.AllowlistRepository) error {
		domains, err := repo.ListDomains(cmd.Context())
		if err != nil {
			return err
		}
		emails, err := repo.ListEmails(cmd.Context())
		if err != nil {
			return err
		}

		if len(domains) == 0 && len(emails) == 0 {
			cmd.Println("Allowlist is empty; self-service sign-up is closed")
			return nil
		}
		for _, d := range domains {
			cmd.Printf("%s\t%s\n", entryDomain, d)
		}
		for _, e := range emails {
			cmd.Printf("%s\t%s\n", entryEmail, e)
		}
		return nil
	})
}

func (a *app) runAllowlistAdd(cmd *cobra.Command, args []string) error {
	kind, values := args[0], args[1:]
	if err := checkEntryKind(kind); err != nil {
		return err
	}

	return a.withAllowlist(cmd.Context(), func(repo *postgres.AllowlistRepository) error {
		add := repo.AddDomain
		if kind == entryEmail {
			add = repo.AddEmail
		}
		for _, v := range values {
			if err := add(cmd.Context(), v); err != nil {
				return err
			}
			cmd.Printf("Added %s %s\n", kind, v)
		}
		return nil
	})
}

func (a *app) runAllowlistRemove(cmd *cobra.Command, args []string) error {
	kind, value := args[0], args[1]
	if err := checkEntryKind(kind); err != nil {
		return err
	}

	return a.withAllowlist(cmd.Context(), func(repo *postgres.AllowlistRepository) error {
		remove := repo.RemoveDomain
		if kind == entryEmail {
			remove = repo.RemoveEmail
		}
		if err := remove(cmd.Context(), value); err != nil {
			return err
		}
		cmd.Printf("Removed %s %s\n", kind, value)
		return nil
	})
}

func (a *app) runAllowlistCheck(cmd *cobra.Command, args []string) error {
	email, err := auth.NormalizeAllowlistEmail(args[0])
	if err != nil {
		return err
	}

	return a.withAllowlist(cmd.Context(), func(repo *postgres.AllowlistRepository) error {
		validator, err := auth.NewDomainValidator(repo, auth.WithValidatorLogger(a.logger))
		if err != nil {
			return err
		}
		// Surface read errors instead of the fail-closed "denied".
		if err := validator.Refresh(cmd.Context()); err != nil {
			return err
		}
		if validator.IsAllowed(cmd.Context(), email) {
			cmd.Printf("%s: allowed\n", email)
		} else {
			cmd.Printf("%s: denied\n", email)
		}
		return nil
	})
}
