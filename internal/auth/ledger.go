// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshToken is the persisted record of an issued refresh token. The
// plaintext token is never stored; TokenHash is its SHA-256 digest.
// Every token minted by rotation shares the FamilyID of the sign-in that
// started the chain.
type RefreshToken struct {
	TokenHash string
	UserID    ulid.ULID
	FamilyID  ulid.ULID
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// NewRefreshToken creates a validated, unrevoked record.
func NewRefreshToken(tokenHash string, userID, familyID ulid.ULID, createdAt, expiresAt time.Time) (*RefreshToken, error) {
	if tokenHash == "" {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if familyID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_FAMILY").Errorf("family ID cannot be zero")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}
	return &RefreshToken{
		TokenHash: tokenHash,
		UserID:    userID,
		FamilyID:  familyID,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// IsActiveAt reports whether the token can still be consumed at t.
func (r *RefreshToken) IsActiveAt(t time.Time) bool {
	return !r.Revoked && t.Before(r.ExpiresAt)
}

// IssueFunc builds the successor of a consumed refresh token. It runs inside
// the rotation, so returning an error leaves the consumed token untouched.
// It must not call back into storage: the rotation already holds a
// connection, and a pool exhausted by concurrent rotations never frees one.
type IssueFunc func(ctx context.Context, consumed *RefreshToken) (*RefreshToken, error)

// RefreshTokenLedger records refresh tokens and enforces single use.
type RefreshTokenLedger interface {
	// Store persists a new active record.
	Store(ctx context.Context, token *RefreshToken) error

	// Consume atomically flips an active, unexpired record to revoked and
	// returns it. Of any number of concurrent callers presenting the same
	// hash, at most one succeeds; the rest get an error wrapping ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// Rotate consumes tokenHash and stores the record returned by issue as
	// one atomic step. Either both happen or neither does.
	Rotate(ctx context.Context, tokenHash string, now time.Time, issue IssueFunc) (*RefreshToken, error)

	// Lookup returns a record regardless of state, or an error wrapping
	// ErrNotFound.
	Lookup(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Revoke marks a record revoked. Unknown or already revoked hashes are
	// not an error.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeFamily revokes every active record in a rotation family and
	// returns how many were revoked.
	RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time) (int64, error)

	// RevokeAll revokes every active record of a user and returns how many
	// were revoked.
	RevokeAll(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error)
}
