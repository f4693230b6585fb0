// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Input limits.
const (
	MaxEmailLength        = 254
	MinPasswordLength     = 8
	MaxPasswordLength     = 1024
	MaxProfileFieldLength = 200
)

// Role is the authorization role carried in access tokens.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a registered account.
type User struct {
	ID             ulid.ULID  `json:"id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"role"`
	EmailConfirmed bool       `json:"email_confirmed"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastSignIn     *time.Time `json:"last_sign_in,omitempty"`
}

// NewUser creates a validated, unconfirmed User. The email is normalized
// before storage.
func NewUser(email, passwordHash string, role Role, now time.Time) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, validationError("unknown role %q", role)
	}
	return &User{
		ID:           ulid.Make(),
		Email:        normalized,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Profile is the optional metadata captured at sign-up.
type Profile struct {
	FullName     string `json:"full_name,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Normalize trims the profile fields and enforces their length limit.
func (p Profile) Normalize() (Profile, error) {
	out := Profile{
		FullName:     strings.TrimSpace(p.FullName),
		Organization: strings.TrimSpace(p.Organization),
	}
	if utf8.RuneCountInString(out.FullName) > MaxProfileFieldLength {
		return Profile{}, validationError("full name must be at most %d characters", MaxProfileFieldLength)
	}
	if utf8.RuneCountInString(out.Organization) > MaxProfileFieldLength {
		return Profile{}, validationError("organization must be at most %d characters", MaxProfileFieldLength)
	}
	return out, nil
}

// IsZero reports whether no profile field is set.
func (p Profile) IsZero() bool {
	return p.FullName == "" && p.Organization == ""
}

// NormalizeEmail trims an address and checks that it is a bare addr-spec
// with a non-empty domain. Case is preserved: stored emails are unique and
// compared case-sensitively.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", validationError("email is required")
	}
	if len(email) > MaxEmailLength {
		return "", validationError("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", validationError("email address is malformed")
	}
	if _, domain, ok := SplitEmail(email); !ok || domain == "" {
		return "", validationError("email address is malformed")
	}
	return email, nil
}

// NormalizeAllowlistEmail normalizes an address for allowlist entries and
// lookups, which ignore case.
func NormalizeAllowlistEmail(email string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	return strings.ToLower(email), nil
}

// SplitEmail splits an address at its last '@'.
func SplitEmail(email string) (local, domain string, ok bool) {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", "", false
	}
	return email[:at], email[at+1:], true
}

// ValidatePassword checks the password length bounds in bytes.
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return validationError("password is required")
	case len(password) < MinPasswordLength:
		return validationError("password must be at least %d bytes", MinPasswordLength)
	case len(password) > MaxPasswordLength:
		return validationError("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// CredentialStore persists users and their profiles.
type CredentialStore interface {
	// Create inserts a user. Returns an error wrapping ErrAlreadyExists
	// when the email is taken.
	Create(ctx context.Context, user *User) error

	// CreateProfile attaches profile metadata to an existing user.
	CreateProfile(ctx context.Context, userID ulid.ULID, profile Profile) error

	// GetByID returns the user or an error wrapping ErrNotFound.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail looks up a user by normalized email. Returns an error
	// wrapping ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateLastSignIn records a successful sign-in.
	UpdateLastSignIn(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePasswordHash replaces the stored hash, used for rehashing.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string, at time.Time) error
}
