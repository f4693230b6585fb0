// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

//go:build integration

package auth_test

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/simvault/simvault/internal/auth"
)

var _ = Describe("RefreshTokenLedger", func() {
	var (
		user *auth.User
		now  time.Time
	)

	BeforeEach(func() {
		resetTables()
		now = time.Now().UTC().Truncate(time.Microsecond)

		var err error
		user, err = auth.NewUser("ledger@example.com", "$argon2id$v=19$m=64,t=1,p=1$c2FsdA$a2V5", auth.RoleUser, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Users.Create(env.ctx, user)).To(Succeed())
	})

	record := func(token string, familyID ulid.ULID, expiresAt time.Time) *auth.RefreshToken {
		rt, err := auth.NewRefreshToken(auth.HashRefreshToken(token), user.ID, familyID, now.Add(-time.Hour), expiresAt)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Ledger.Store(env.ctx, rt)).To(Succeed())
		return rt
	}

	It("stores tokens for known users only", func() {
		rt, err := auth.NewRefreshToken(auth.HashRefreshToken("orphan"), ulid.Make(), ulid.Make(), now, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Ledger.Store(env.ctx, rt)).To(MatchError(auth.ErrNotFound))
	})

	It("consumes an active token once", func() {
		rt := record("t1", ulid.Make(), now.Add(time.Hour))

		consumed, err := env.Ledger.Consume(env.ctx, rt.TokenHash, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(consumed.Revoked).To(BeTrue())
		Expect(consumed.UserID).To(Equal(user.ID))

		_, err = env.Ledger.Consume(env.ctx, rt.TokenHash, now)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("refuses expired tokens", func() {
		rt := record("t2", ulid.Make(), now.Add(time.Minute))
		_, err := env.Ledger.Consume(env.ctx, rt.TokenHash, now.Add(2*time.Minute))
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("leaves the presented token active when the successor cannot be issued", func() {
		rt := record("t3", ulid.Make(), now.Add(time.Hour))

		_, err := env.Ledger.Rotate(env.ctx, rt.TokenHash, now, func(context.Context, *auth.RefreshToken) (*auth.RefreshToken, error) {
			return nil, errors.New("signing key unavailable")
		})
		Expect(err).To(HaveOccurred())

		found, err := env.Ledger.Lookup(env.ctx, rt.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.Revoked).To(BeFalse())
	})

	It("revokes idempotently and by family", func() {
		family := ulid.Make()
		a := record("a", family, now.Add(time.Hour))
		record("b", family, now.Add(time.Hour))
		record("c", ulid.Make(), now.Add(time.Hour))

		Expect(env.Ledger.Revoke(env.ctx, a.TokenHash, now)).To(Succeed())
		Expect(env.Ledger.Revoke(env.ctx, a.TokenHash, now)).To(Succeed())
		Expect(env.Ledger.Revoke(env.ctx, auth.HashRefreshToken("unknown"), now)).To(Succeed())

		n, err := env.Ledger.RevokeFamily(env.ctx, family, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		n, err = env.Ledger.RevokeAll(env.ctx, user.ID, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})

	It("purges only expired tokens", func() {
		expired := record("old", ulid.Make(), now.Add(-time.Minute))
		revoked := record("revoked", ulid.Make(), now.Add(time.Hour))
		Expect(env.Ledger.Revoke(env.ctx, revoked.TokenHash, now)).To(Succeed())

		n, err := env.Ledger.DeleteExpired(env.ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		_, err = env.Ledger.Lookup(env.ctx, expired.TokenHash)
		Expect(err).To(MatchError(auth.ErrNotFound))
		_, err = env.Ledger.Lookup(env.ctx, revoked.TokenHash)
		Expect(err).NotTo(HaveOccurred())
	})

	It("removes a user's tokens with the user", func() {
		rt := record("cascade", ulid.Make(), now.Add(time.Hour))
		_, err := env.pool.Exec(env.ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Ledger.Lookup(env.ctx, rt.TokenHash)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("Allowlist", func() {
	BeforeEach(resetTables)

	It("normalises, deduplicates and removes entries", func() {
		Expect(env.Allowlist.AddDomain(env.ctx, " KTH.se ")).To(Succeed())
		Expect(env.Allowlist.AddDomain(env.ctx, "kth.se")).To(Succeed())
		Expect(env.Allowlist.AddDomain(env.ctx, "*.chalmers.se")).To(Succeed())
		Expect(env.Allowlist.AddEmail(env.ctx, "Guest@Example.com")).To(Succeed())

		domains, err := env.Allowlist.ListDomains(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(domains).To(Equal([]string{"*.chalmers.se", "kth.se"}))

		emails, err := env.Allowlist.ListEmails(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(emails).To(Equal([]string{"guest@example.com"}))

		Expect(env.Allowlist.RemoveDomain(env.ctx, "kth.se")).To(Succeed())
		Expect(env.Allowlist.RemoveDomain(env.ctx, "kth.se")).To(MatchError(auth.ErrNotFound))
	})

	It("feeds the domain validator", func() {
		Expect(env.Allowlist.AddDomain(env.ctx, "*.chalmers.se")).To(Succeed())
		validator, err := auth.NewDomainValidator(env.Allowlist, auth.WithCacheTTL(0))
		Expect(err).NotTo(HaveOccurred())

		Expect(validator.IsAllowed(env.ctx, "ada@cs.chalmers.se")).To(BeTrue())
		Expect(validator.IsAllowed(env.ctx, "ada@chalmers.se")).To(BeFalse())
		Expect(validator.IsAllowed(env.ctx, "ada@cs.chalmers.se.evil.test")).To(BeFalse())

		Expect(env.Allowlist.RemoveDomain(env.ctx, "*.chalmers.se")).To(Succeed())
		Expect(validator.IsAllowed(env.ctx, "ada@cs.chalmers.se")).To(BeFalse(), "uncached validator sees removals")
	})
})
