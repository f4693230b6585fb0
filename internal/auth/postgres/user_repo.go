// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/simvault/simvault/internal/auth"
)

const userColumns = `id, email, password_hash, role, email_confirmed, created_at, updated_at, last_sign_in`

// UserRepository implements auth.CredentialStore using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (
			id, email, password_hash, role, email_confirmed,
			created_at, updated_at, last_sign_in
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.EmailConfirmed,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastSignIn,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_ALREADY_EXISTS").
			With("email", user.Email).
			Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// CreateProfile stores the profile of an existing user.
func (r *UserRepository) CreateProfile(ctx context.Context, userID ulid.ULID, profile auth.Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (user_id, full_name, organization)
		VALUES ($1, $2, $3)
	`, userID.String(), profile.FullName, profile.Organization)
	switch {
	case isForeignKeyViolation(err):
		return oops.Code("USER_NOT_FOUND").
			With("id", userID.String()).
			Wrap(auth.ErrNotFound)
	case isUniqueViolation(err):
		return oops.Code("PROFILE_ALREADY_EXISTS").
			With("id", userID.String()).
			Wrap(auth.ErrAlreadyExists)
	case err != nil:
		return oops.Code("PROFILE_CREATE_FAILED").
			With("operation", "insert profile").
			With("id", userID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = strings.TrimSpace(email)
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// UpdateLastSignIn records a successful sign-in.
func (r *UserRepository) UpdateLastSignIn(ctx context.Context, id ulid.ULID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET last_sign_in = $2, updated_at = $2 WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update last sign in").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id.String(), hash, at)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr          string
		email          string
		passwordHash   string
		role           string
		emailConfirmed bool
		createdAt      time.Time
		updatedAt      time.Time
		lastSignIn     *time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&passwordHash,
		&role,
		&emailConfirmed,
		&createdAt,
		&updatedAt,
		&lastSignIn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.ParseStrict(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:             id,
		Email:          email,
		PasswordHash:   passwordHash,
		Role:           auth.Role(role),
		EmailConfirmed: emailConfirmed,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		LastSignIn:     lastSignIn,
	}, nil
}

var _ auth.CredentialStore = (*UserRepository)(nil)
