// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

// Package auth provides credential and session management for SimVault.
//
// # Domain Types
//
// Users are created with NewUser, which validates the email address, the
// password hash and the role. Refresh tokens are opaque random strings; only
// their SHA-256 digest (see HashRefreshToken) is ever persisted, as a
// RefreshToken record that belongs to a rotation family.
//
// # Components
//
//   - Argon2idHasher and HashPool - salted, bounded password hashing
//   - TokenIssuer - signed access tokens and opaque refresh tokens
//   - RefreshTokenLedger - single-use refresh records (see internal/auth/postgres)
//   - DomainValidator - sign-up allowlist over email domains and addresses
//   - Service - sign-up, sign-in, refresh, sign-out and current-user lookup
//
// Services are created with New* constructors that validate dependencies.
//
// # Errors
//
// Every error returned by Service carries one of the public codes declared in
// errors.go. Use KindOf to classify an error and Kind.HTTPStatus to map it to a
// transport status. Storage failures never leak through: they are logged and
// replaced by an AUTH_INTERNAL error.
package auth
