// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"

	"github.com/simvault/simvault/internal/auth"
)

// AllowlistRepository implements auth.AllowlistStore using PostgreSQL.
type AllowlistRepository struct {
	db DB
}

// NewAllowlistRepository creates a new AllowlistRepository.
func NewAllowlistRepository(db DB) *AllowlistRepository {
	return &AllowlistRepository{db: db}
}

// ListDomains returns every allowed domain or domain pattern.
func (r *AllowlistRepository) ListDomains(ctx context.Context) ([]string, error) {
	return r.list(ctx, `SELECT domain FROM allowed_email_domains ORDER BY domain`, "list domains")
}

// ListEmails returns every individually allowed address.
func (r *AllowlistRepository) ListEmails(ctx context.Context) ([]string, error) {
	return r.list(ctx, `SELECT email FROM allowed_emails ORDER BY email`, "list emails")
}

// AddDomain allows a domain. Adding an existing entry is a no-op.
func (r *AllowlistRepository) AddDomain(ctx context.Context, domain string) error {
	domain, err := auth.NormalizeDomain(domain)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO allowed_email_domains (domain) VALUES ($1)
		ON CONFLICT (domain) DO NOTHING
	`, domain)
	if err != nil {
		return oops.Code("ALLOWLIST_ADD_FAILED").
			With("operation", "add domain").
			With("domain", domain).
			Wrap(err)
	}
	return nil
}

// AddEmail allows a single address. Adding an existing entry is a no-op.
func (r *AllowlistRepository) AddEmail(ctx context.Context, email string) error {
	email, err := auth.NormalizeAllowlistEmail(email)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO allowed_emails (email) VALUES ($1)
		ON CONFLICT (email) DO NOTHING
	`, email)
	if err != nil {
		return oops.Code("ALLOWLIST_ADD_FAILED").
			With("operation", "add email").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// RemoveDomain removes a domain entry.
func (r *AllowlistRepository) RemoveDomain(ctx context.Context, domain string) error {
	domain, err := auth.NormalizeDomain(domain)
	if err != nil {
		return err
	}
	return r.remove(ctx, `DELETE FROM allowed_email_domains WHERE domain = $1`, "domain", domain)
}

// RemoveEmail removes an address entry.
func (r *AllowlistRepository) RemoveEmail(ctx context.Context, email string) error {
	email, err := auth.NormalizeAllowlistEmail(email)
	if err != nil {
		return err
	}
	return r.remove(ctx, `DELETE FROM allowed_emails WHERE email = $1`, "email", email)
}

func (r *AllowlistRepository) list(ctx context.Context, query, operation string) ([]string, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, oops.Code("ALLOWLIST_LIST_FAILED").
			With("operation", operation).
			Wrap(err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, oops.Code("ALLOWLIST_LIST_FAILED").
				With("operation", operation).
				Wrap(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ALLOWLIST_LIST_FAILED").
			With("operation", operation).
			Wrap(err)
	}
	return entries, nil
}

func (r *AllowlistRepository) remove(ctx context.Context, query, kind, entry string) error {
	tag, err := r.db.Exec(ctx, query, entry)
	if err != nil {
		return oops.Code("ALLOWLIST_REMOVE_FAILED").
			With("operation", "remove "+kind).
			With(kind, entry).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ALLOWLIST_ENTRY_NOT_FOUND").
			With(kind, entry).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

var _ auth.AllowlistStore = (*AllowlistRepository)(nil)
