// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

//go:build integration

package auth_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/simvault/simvault/internal/auth"
	"github.com/simvault/simvault/pkg/errutil"
)

const password = "correct horse battery staple"

var _ = Describe("Session lifecycle", func() {
	var svc *auth.Service

	BeforeEach(func() {
		resetTables()
		Expect(env.Allowlist.AddDomain(env.ctx, "*.chalmers.se")).To(Succeed())
		Expect(env.Allowlist.AddEmail(env.ctx, "guest@example.com")).To(Succeed())
		svc = newService()
	})

	Describe("SignUp", func() {
		It("registers an allowlisted user and opens a session", func() {
			result, err := svc.SignUp(env.ctx, auth.SignUpRequest{
				Email:    "Ada@CS.Chalmers.se",
				Password: password,
				Profile:  &auth.Profile{FullName: "Ada Lovelace", Organization: "Chalmers"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.User.Email).To(Equal("Ada@CS.Chalmers.se"))
			Expect(result.User.Role).To(Equal(auth.RoleUser))
			Expect(result.Session.AccessToken).NotTo(BeEmpty())
			Expect(result.Session.RefreshToken).NotTo(BeEmpty())
			Expect(result.Session.TokenType).To(Equal(auth.TokenType))

			stored, err := env.Users.GetByEmail(env.ctx, "Ada@CS.Chalmers.se")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordHash).To(HavePrefix("$argon2id$"))
			Expect(stored.PasswordHash).NotTo(ContainSubstring(password))
			Expect(stored.EmailConfirmed).To(BeFalse())

			var fullName string
			Expect(env.pool.QueryRow(env.ctx,
				`SELECT full_name FROM profiles WHERE user_id = $1`, stored.ID.String()).Scan(&fullName)).To(Succeed())
			Expect(fullName).To(Equal("Ada Lovelace"))
		})

		It("accepts an individually allowlisted address", func() {
			_, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "guest@example.com", Password: password})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects domains outside the allowlist", func() {
			_, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "mallory@example.com", Password: password})
			Expect(errutil.Code(err)).To(Equal(auth.CodeDomainNotAllowed))

			_, err = env.Users.GetByEmail(env.ctx, "mallory@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("rejects a second account for the same email", func() {
			_, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(errutil.Code(err)).To(Equal(auth.CodeAlreadyExists))
		})

		It("keeps addresses that differ only in case as separate accounts", func() {
			first, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "Alice.Svensson@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "alice.svensson@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.User.ID).NotTo(Equal(first.User.ID))

			stored, err := env.Users.GetByEmail(env.ctx, "Alice.Svensson@cs.chalmers.se")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).To(Equal(first.User.ID))
		})
	})

	Describe("SignIn", func() {
		BeforeEach(func() {
			_, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())
		})

		It("opens a session and records the sign-in time", func() {
			result, err := svc.SignIn(env.ctx, "ada@cs.chalmers.se", password)
			Expect(err).NotTo(HaveOccurred())

			user, err := svc.GetUser(env.ctx, result.Session.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("ada@cs.chalmers.se"))
			Expect(user.LastSignIn).NotTo(BeNil())
		})

		It("does not distinguish a wrong password from an unknown email", func() {
			_, wrongPassword := svc.SignIn(env.ctx, "ada@cs.chalmers.se", "not the password")
			_, unknownEmail := svc.SignIn(env.ctx, "nobody@cs.chalmers.se", password)

			Expect(errutil.Code(wrongPassword)).To(Equal(auth.CodeInvalidCredentials))
			Expect(errutil.Code(unknownEmail)).To(Equal(auth.CodeInvalidCredentials))
			Expect(wrongPassword.Error()).To(Equal(unknownEmail.Error()))
		})
	})

	Describe("Refresh", func() {
		var session *auth.Session

		BeforeEach(func() {
			result, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())
			session = result.Session
		})

		It("rotates the refresh token", func() {
			next, err := svc.Refresh(env.ctx, session.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Session.RefreshToken).NotTo(Equal(session.RefreshToken))

			_, err = svc.Refresh(env.ctx, session.RefreshToken)
			Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidRefreshToken))

			_, err = svc.Refresh(env.ctx, next.Session.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps the login chain across rotations", func() {
			next, err := svc.Refresh(env.ctx, session.RefreshToken)
			Expect(err).NotTo(HaveOccurred())

			first, err := env.Ledger.Lookup(env.ctx, auth.HashRefreshToken(session.RefreshToken))
			Expect(err).NotTo(HaveOccurred())
			second, err := env.Ledger.Lookup(env.ctx, auth.HashRefreshToken(next.Session.RefreshToken))
			Expect(err).NotTo(HaveOccurred())

			Expect(first.Revoked).To(BeTrue())
			Expect(first.RevokedAt).NotTo(BeNil())
			Expect(second.Revoked).To(BeFalse())
			Expect(second.FamilyID).To(Equal(first.FamilyID))
		})

		It("lets exactly one of many concurrent callers win", func() {
			expectSingleWinner(svc, session.RefreshToken, 12)
		})

		It("lets exactly one caller win when callers outnumber connections", func() {
			small := newSmallPoolService(4)
			expectSingleWinner(small, session.RefreshToken, 8)
		})
	})

	Describe("reuse detection", func() {
		It("revokes the whole chain when enabled", func() {
			strict := newService(auth.WithFamilyRevocationOnReuse(true))
			result, err := strict.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())

			next, err := strict.Refresh(env.ctx, result.Session.RefreshToken)
			Expect(err).NotTo(HaveOccurred())

			// replaying the consumed token poisons its successor
			_, err = strict.Refresh(env.ctx, result.Session.RefreshToken)
			Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidRefreshToken))

			_, err = strict.Refresh(env.ctx, next.Session.RefreshToken)
			Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidRefreshToken))
		})

		It("leaves the chain alone by default", func() {
			result, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())
			next, err := svc.Refresh(env.ctx, result.Session.RefreshToken)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Refresh(env.ctx, result.Session.RefreshToken)
			Expect(err).To(HaveOccurred())

			_, err = svc.Refresh(env.ctx, next.Session.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("SignOut", func() {
		It("revokes a single session", func() {
			result, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.SignOut(env.ctx, result.Session.RefreshToken)).To(Succeed())
			Expect(svc.SignOut(env.ctx, result.Session.RefreshToken)).To(Succeed(), "sign-out is idempotent")

			_, err = svc.Refresh(env.ctx, result.Session.RefreshToken)
			Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidRefreshToken))
		})

		It("revokes every session of the user", func() {
			first, err := svc.SignUp(env.ctx, auth.SignUpRequest{Email: "ada@cs.chalmers.se", Password: password})
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.SignIn(env.ctx, "ada@cs.chalmers.se", password)
			Expect(err).NotTo(HaveOccurred())

			revoked, err := svc.SignOutAll(env.ctx, second.Session.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked).To(Equal(int64(2)))

			for _, s := range []*auth.Session{first.Session, second.Session} {
				_, err := svc.Refresh(env.ctx, s.RefreshToken)
				Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidRefreshToken))
			}
		})
	})

	Describe("CreateUser", func() {
		It("bypasses the allowlist and assigns the requested role", func() {
			user, err := svc.CreateUser(env.ctx, auth.CreateUserRequest{
				Email:    "ops@example.org",
				Password: password,
				Role:     auth.RoleAdmin,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal(auth.RoleAdmin))
			Expect(user.EmailConfirmed).To(BeTrue())

			result, err := svc.SignIn(env.ctx, "ops@example.org", password)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.User.Role).To(Equal(auth.RoleAdmin))
		})
	})
})

// expectSingleWinner races callers refreshes of token and asserts exactly one
// succeeds while the rest are rejected as invalid.
func expectSingleWinner(svc *auth.Service, token string, callers int) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		codes     []string
	)

	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			<-start
			_, err := svc.Refresh(env.ctx, token)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			codes = append(codes, errutil.Code(err))
		}()
	}
	close(start)
	wg.Wait()

	Expect(successes).To(Equal(1))
	Expect(codes).To(HaveLen(callers - 1))
	for _, code := range codes {
		Expect(code).To(Equal(auth.CodeInvalidRefreshToken))
	}

	var active int
	Expect(env.pool.QueryRow(env.ctx,
		`SELECT count(*) FROM refresh_tokens WHERE revoked = FALSE`).Scan(&active)).To(Succeed())
	Expect(active).To(Equal(1))
}
