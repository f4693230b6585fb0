// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const jwtSecret = "cli-integration-secret-0123456789abcdef"

// simvault runs the built CLI against the test database and returns its
// combined output.
func simvault(ctx context.Context, stdin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, env.binary, args...)
	cmd.Env = append(cmd.Environ(),
		"DATABASE_URL="+env.connStr,
		"SIMVAULT_JWT_SECRET="+jwtSecret,
		"XDG_CONFIG_HOME="+GinkgoT().TempDir(),
	)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var _ = Describe("simvault CLI", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
	})

	Describe("migrate", func() {
		It("applies, reports and rolls back the schema", func() {
			output, err := simvault(ctx, "", "migrate", "status")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("Current version: none"))
			Expect(output).To(ContainSubstring("Pending migrations: 3"))

			output, err = simvault(ctx, "", "migrate")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("Migrations completed successfully (version 3)"))

			output, err = simvault(ctx, "", "migrate", "status")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("000003_allowlist"))
			Expect(output).To(ContainSubstring("Schema is up to date"))

			output, err = simvault(ctx, "", "migrate", "down")
			Expect(err).NotTo(HaveOccurred(), output)

			var exists bool
			Expect(env.pool.QueryRow(ctx,
				`SELECT to_regclass('public.allowed_emails') IS NOT NULL`).Scan(&exists)).To(Succeed())
			Expect(exists).To(BeFalse())
		})

		It("is idempotent", func() {
			for range 2 {
				output, err := simvault(ctx, "", "migrate", "up")
				Expect(err).NotTo(HaveOccurred(), output)
			}
		})
	})

	Describe("administration", func() {
		BeforeEach(func() {
			output, err := simvault(ctx, "", "migrate")
			Expect(err).NotTo(HaveOccurred(), output)
		})

		It("manages the allowlist", func() {
			output, err := simvault(ctx, "", "allowlist", "add", "domain", "*.chalmers.se", "KTH.se")
			Expect(err).NotTo(HaveOccurred(), output)

			output, err = simvault(ctx, "", "allowlist", "check", "ada@cs.chalmers.se")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("ada@cs.chalmers.se: allowed"))

			output, err = simvault(ctx, "", "allowlist", "list")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("domain\tkth.se"))

			output, err = simvault(ctx, "", "allowlist", "remove", "domain", "kth.se")
			Expect(err).NotTo(HaveOccurred(), output)

			output, err = simvault(ctx, "", "allowlist", "remove", "domain", "kth.se")
			Expect(err).To(HaveOccurred(), output)
		})

		It("creates an operator account and revokes its sessions", func() {
			output, err := simvault(ctx, "correct horse battery staple\n",
				"user", "create", "--email", "ops@example.org", "--role", "admin", "--password-stdin")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("Created admin user ops@example.org"))

			var role, hash string
			Expect(env.pool.QueryRow(ctx,
				`SELECT role, password_hash FROM users WHERE email = 'ops@example.org'`).Scan(&role, &hash)).To(Succeed())
			Expect(role).To(Equal("admin"))
			Expect(hash).To(HavePrefix("$argon2id$"))

			output, err = simvault(ctx, "", "user", "revoke-sessions", "ops@example.org")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("Revoked 0 refresh token(s)"))
		})

		It("purges expired refresh tokens", func() {
			output, err := simvault(ctx, "", "token", "purge")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("Deleted 0 expired refresh token(s)"))
		})
	})
})
