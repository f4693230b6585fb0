// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/simvault/simvault/internal/auth"
)

const refreshTokenColumns = `token_hash, user_id, family_id, expires_at, revoked, revoked_at, created_at`

// RefreshTokenLedger implements auth.RefreshTokenLedger using PostgreSQL.
//
// Single use rests on a conditional UPDATE: concurrent consumers of the same
// row serialize on its row lock and every loser re-evaluates the predicate
// against the already revoked row.
type RefreshTokenLedger struct {
	db DB
}

// NewRefreshTokenLedger creates a new RefreshTokenLedger.
func NewRefreshTokenLedger(db DB) *RefreshTokenLedger {
	return &RefreshTokenLedger{db: db}
}

// Store persists a new refresh token record.
func (l *RefreshTokenLedger) Store(ctx context.Context, token *auth.RefreshToken) error {
	return insertRefreshToken(ctx, l.db, token)
}

// Consume revokes an active, unexpired record and returns it.
func (l *RefreshTokenLedger) Consume(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	return consumeRefreshToken(ctx, l.db, tokenHash, now)
}

// Rotate consumes tokenHash and stores its successor in one transaction.
func (l *RefreshTokenLedger) Rotate(ctx context.Context, tokenHash string, now time.Time, issue auth.IssueFunc) (*auth.RefreshToken, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_ROTATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}

	next, err := rotate(ctx, tx, tokenHash, now, issue)
	if err != nil {
		// the request context may already be done; rollback must still run
		_ = tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // original error wins
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_ROTATE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return next, nil
}

func rotate(ctx context.Context, tx pgx.Tx, tokenHash string, now time.Time, issue auth.IssueFunc) (*auth.RefreshToken, error) {
	consumed, err := consumeRefreshToken(ctx, tx, tokenHash, now)
	if err != nil {
		return nil, err
	}
	next, err := issue(ctx, consumed)
	if err != nil {
		return nil, err
	}
	if err := insertRefreshToken(ctx, tx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Lookup returns a record regardless of its state.
func (l *RefreshTokenLedger) Lookup(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := l.db.QueryRow(ctx, `
		SELECT `+refreshTokenColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_LOOKUP_FAILED").
			With("operation", "lookup refresh token").
			Wrap(err)
	}
	return token, nil
}

// Revoke marks a single record revoked. Unknown hashes are ignored.
func (l *RefreshTokenLedger) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := l.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash, now)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	return nil
}

// RevokeFamily revokes every active record descended from one sign-in.
func (l *RefreshTokenLedger) RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE family_id = $1 AND revoked = FALSE
	`, familyID.String(), now)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token family").
			With("family_id", familyID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// RevokeAll revokes every active record of a user.
func (l *RefreshTokenLedger) RevokeAll(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND revoked = FALSE
	`, userID.String(), now)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "revoke user refresh tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes records that expired before cutoff and returns how
// many were deleted.
func (l *RefreshTokenLedger) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_DELETE_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func insertRefreshToken(ctx context.Context, q querier, token *auth.RefreshToken) error {
	_, err := q.Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.TokenHash,
		token.UserID.String(),
		token.FamilyID.String(),
		token.ExpiresAt,
		token.Revoked,
		token.RevokedAt,
		token.CreatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return oops.Code("REFRESH_TOKEN_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
	case isForeignKeyViolation(err):
		return oops.Code("USER_NOT_FOUND").
			With("id", token.UserID.String()).
			Wrap(auth.ErrNotFound)
	case err != nil:
		return oops.Code("REFRESH_TOKEN_STORE_FAILED").
			With("operation", "insert refresh token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

func consumeRefreshToken(ctx context.Context, q querier, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	row := q.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING `+refreshTokenColumns+`
	`, tokenHash, now)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_ACTIVE").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_CONSUME_FAILED").
			With("operation", "consume refresh token").
			Wrap(err)
	}
	return token, nil
}

// scanRefreshToken scans a single row into a RefreshToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		tokenHash string
		userIDStr string
		familyStr string
		expiresAt time.Time
		revoked   bool
		revokedAt *time.Time
		createdAt time.Time
	)

	err := row.Scan(&tokenHash, &userIDStr, &familyStr, &expiresAt, &revoked, &revokedAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("REFRESH_TOKEN_SCAN_FAILED").
			With("operation", "scan refresh token").
			Wrap(err)
	}

	userID, err := ulid.ParseStrict(userIDStr)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_USER").
			With("user_id", userIDStr).
			Wrap(err)
	}
	familyID, err := ulid.ParseStrict(familyStr)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_FAMILY").
			With("family_id", familyStr).
			Wrap(err)
	}

	return &auth.RefreshToken{
		TokenHash: tokenHash,
		UserID:    userID,
		FamilyID:  familyID,
		ExpiresAt: expiresAt,
		Revoked:   revoked,
		RevokedAt: revokedAt,
		CreatedAt: createdAt,
	}, nil
}

var _ auth.RefreshTokenLedger = (*RefreshTokenLedger)(nil)
