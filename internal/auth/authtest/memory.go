// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/simvault/simvault/internal/auth"
)

// CredentialStore is an in-memory auth.CredentialStore.
type CredentialStore struct {
	mu       sync.RWMutex
	users    map[ulid.ULID]auth.User
	byEmail  map[string]ulid.ULID
	profiles map[ulid.ULID]auth.Profile
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		users:    make(map[ulid.ULID]auth.User),
		byEmail:  make(map[string]ulid.ULID),
		profiles: make(map[ulid.ULID]auth.Profile),
	}
}

// Create stores a copy of user.
func (s *CredentialStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return oops.Code("USER_ALREADY_EXISTS").With("email", user.Email).Wrap(auth.ErrAlreadyExists)
	}
	s.users[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	return nil
}

// CreateProfile attaches a profile to an existing user.
func (s *CredentialStore) CreateProfile(_ context.Context, userID ulid.ULID, profile auth.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", userID.String()).Wrap(auth.ErrNotFound)
	}
	s.profiles[userID] = profile
	return nil
}

// GetByID returns a copy of the user.
func (s *CredentialStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return &user, nil
}

// GetByEmail returns a copy of the user with the given email.
func (s *CredentialStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	user := s.users[id]
	return &user, nil
}

// UpdateLastSignIn records a sign-in time.
func (s *CredentialStore) UpdateLastSignIn(_ context.Context, id ulid.ULID, at time.Time) error {
	return s.update(id, func(u *auth.User) {
		u.LastSignIn = &at
		u.UpdatedAt = at
	})
}

// UpdatePasswordHash replaces the stored hash.
func (s *CredentialStore) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string, at time.Time) error {
	return s.update(id, func(u *auth.User) {
		u.PasswordHash = hash
		u.UpdatedAt = at
	})
}

func (s *CredentialStore) update(id ulid.ULID, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(&user)
	s.users[id] = user
	return nil
}

// Delete removes a user and its profile. Used to simulate account deletion.
func (s *CredentialStore) Delete(id ulid.ULID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		delete(s.byEmail, user.Email)
	}
	delete(s.users, id)
	delete(s.profiles, id)
}

// Profile returns the stored profile, if any.
func (s *CredentialStore) Profile(id ulid.ULID) (auth.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

// Count returns the number of stored users.
func (s *CredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Ledger is an in-memory auth.RefreshTokenLedger. One mutex serialises all
// operations, which makes Consume and Rotate trivially atomic.
type Ledger struct {
	mu     sync.Mutex
	tokens map[string]auth.RefreshToken
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{tokens: make(map[string]auth.RefreshToken)}
}

// Store saves a copy of token.
func (l *Ledger) Store(_ context.Context, token *auth.RefreshToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[token.TokenHash]; ok {
		return oops.Code("REFRESH_TOKEN_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	l.tokens[token.TokenHash] = *token
	return nil
}

// Consume revokes an active token and returns it.
func (l *Ledger) Consume(_ context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumeLocked(tokenHash, now)
}

func (l *Ledger) consumeLocked(tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	token, ok := l.tokens[tokenHash]
	if !ok || !token.IsActiveAt(now) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	token.Revoked = true
	token.RevokedAt = &now
	l.tokens[tokenHash] = token
	return &token, nil
}

// Rotate consumes tokenHash and stores issue's result under one lock.
func (l *Ledger) Rotate(ctx context.Context, tokenHash string, now time.Time, issue auth.IssueFunc) (*auth.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous, ok := l.tokens[tokenHash]
	consumed, err := l.consumeLocked(tokenHash, now)
	if err != nil {
		return nil, err
	}
	next, err := issue(ctx, consumed)
	if err == nil {
		if _, dup := l.tokens[next.TokenHash]; dup {
			err = oops.Code("REFRESH_TOKEN_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
		}
	}
	if err != nil {
		if ok {
			l.tokens[tokenHash] = previous
		}
		return nil, err
	}
	l.tokens[next.TokenHash] = *next
	return next, nil
}

// Lookup returns a copy of the record in any state.
func (l *Ledger) Lookup(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.tokens[tokenHash]
	if !ok {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &token, nil
}

// Revoke marks a record revoked if it exists and is not already.
func (l *Ledger) Revoke(_ context.Context, tokenHash string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token, ok := l.tokens[tokenHash]; ok && !token.Revoked {
		token.Revoked = true
		token.RevokedAt = &now
		l.tokens[tokenHash] = token
	}
	return nil
}

// RevokeFamily revokes all unrevoked records of a family.
func (l *Ledger) RevokeFamily(_ context.Context, familyID ulid.ULID, now time.Time) (int64, error) {
	return l.revokeWhere(now, func(t auth.RefreshToken) bool { return t.FamilyID == familyID }), nil
}

// RevokeAll revokes all unrevoked records of a user.
func (l *Ledger) RevokeAll(_ context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	return l.revokeWhere(now, func(t auth.RefreshToken) bool { return t.UserID == userID }), nil
}

func (l *Ledger) revokeWhere(now time.Time, match func(auth.RefreshToken) bool) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for hash, token := range l.tokens {
		if token.Revoked || !match(token) {
			continue
		}
		token.Revoked = true
		token.RevokedAt = &now
		l.tokens[hash] = token
		n++
	}
	return n
}

// Active returns the number of records usable at now.
func (l *Ledger) Active(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, token := range l.tokens {
		if token.IsActiveAt(now) {
			n++
		}
	}
	return n
}

// Allowlist is an in-memory auth.AllowlistStore. SetErr makes every
// read fail.
type Allowlist struct {
	mu      sync.Mutex
	domains map[string]struct{}
	emails  map[string]struct{}
	reads   int
	err     error
}

// NewAllowlist returns a store seeded with domains.
func NewAllowlist(domains ...string) *Allowlist {
	a := &Allowlist{
		domains: make(map[string]struct{}),
		emails:  make(map[string]struct{}),
	}
	for _, d := range domains {
		a.domains[strings.ToLower(d)] = struct{}{}
	}
	return a
}

// ListDomains returns the domains in sorted order.
func (a *Allowlist) ListDomains(context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reads++
	if a.err != nil {
		return nil, a.err
	}
	return sortedKeys(a.domains), nil
}

// ListEmails returns the addresses in sorted order.
func (a *Allowlist) ListEmails(context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return sortedKeys(a.emails), nil
}

// AddDomain adds a domain.
func (a *Allowlist) AddDomain(_ context.Context, domain string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.domains[strings.ToLower(domain)] = struct{}{}
	return nil
}

// AddEmail adds an address.
func (a *Allowlist) AddEmail(_ context.Context, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emails[strings.ToLower(email)] = struct{}{}
	return nil
}

// RemoveDomain removes a domain.
func (a *Allowlist) RemoveDomain(_ context.Context, domain string) error {
	return a.remove(a.domains, strings.ToLower(domain))
}

// RemoveEmail removes an address.
func (a *Allowlist) RemoveEmail(_ context.Context, email string) error {
	return a.remove(a.emails, strings.ToLower(email))
}

func (a *Allowlist) remove(set map[string]struct{}, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := set[key]; !ok {
		return oops.Code("ALLOWLIST_ENTRY_NOT_FOUND").With("entry", key).Wrap(auth.ErrNotFound)
	}
	delete(set, key)
	return nil
}

// Reads returns how many times the domain list has been read.
func (a *Allowlist) Reads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reads
}

// SetErr changes the read error under the lock.
func (a *Allowlist) SetErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var (
	_ auth.CredentialStore    = (*CredentialStore)(nil)
	_ auth.RefreshTokenLedger = (*Ledger)(nil)
	_ auth.AllowlistStore     = (*Allowlist)(nil)
)
