// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultAllowlistCacheTTL is how long a loaded allowlist is trusted.
	DefaultAllowlistCacheTTL = 30 * time.Second

	// DefaultAllowlistLoadTimeout bounds one shared store round trip.
	DefaultAllowlistLoadTimeout = 5 * time.Second
)

// AllowlistStore persists the sign-up allowlist: email domains (exact or
// glob patterns such as "*.chalmers.se") and individual addresses.
type AllowlistStore interface {
	ListDomains(ctx context.Context) ([]string, error)
	ListEmails(ctx context.Context) ([]string, error)
	// AddDomain and AddEmail are idempotent.
	AddDomain(ctx context.Context, domain string) error
	AddEmail(ctx context.Context, email string) error
	// RemoveDomain and RemoveEmail return an error wrapping ErrNotFound
	// when the entry does not exist.
	RemoveDomain(ctx context.Context, domain string) error
	RemoveEmail(ctx context.Context, email string) error
}

// NormalizeDomain lower-cases and trims a domain or domain pattern and
// checks that a pattern compiles.
func NormalizeDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "@")
	if domain == "" {
		return "", validationError("domain is required")
	}
	if strings.ContainsAny(domain, "@ \t") {
		return "", validationError("domain %q is malformed", domain)
	}
	if isDomainPattern(domain) {
		if _, err := glob.Compile(domain, '.'); err != nil {
			return "", validationError("domain pattern %q does not compile", domain)
		}
	}
	return domain, nil
}

func isDomainPattern(domain string) bool {
	return strings.ContainsAny(domain, "*?[{")
}

// allowlist is an immutable, compiled snapshot of the store.
type allowlist struct {
	emails   map[string]struct{}
	domains  map[string]struct{}
	patterns []glob.Glob
}

func (a *allowlist) allows(email string) bool {
	if _, ok := a.emails[email]; ok {
		return true
	}
	_, domain, ok := SplitEmail(email)
	if !ok {
		return false
	}
	if _, ok := a.domains[domain]; ok {
		return true
	}
	for _, pattern := range a.patterns {
		if pattern.Match(domain) {
			return true
		}
	}
	return false
}

// DomainValidator decides whether an email may sign up. It caches the
// allowlist for a configurable TTL and fails closed when the store cannot
// be read.
type DomainValidator struct {
	store       AllowlistStore
	ttl         time.Duration
	loadTimeout time.Duration
	clock       Clock
	logger      *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	current  *allowlist
	loadedAt time.Time
}

// ValidatorOption configures a DomainValidator.
type ValidatorOption func(*DomainValidator)

// WithCacheTTL sets how long a loaded allowlist is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) ValidatorOption {
	return func(v *DomainValidator) { v.ttl = ttl }
}

// WithLoadTimeout bounds a store reload. The reload is shared by every
// waiting caller, so it does not inherit any one caller's cancellation.
func WithLoadTimeout(timeout time.Duration) ValidatorOption {
	return func(v *DomainValidator) { v.loadTimeout = timeout }
}

// WithValidatorClock sets the clock used for cache expiry.
func WithValidatorClock(clock Clock) ValidatorOption {
	return func(v *DomainValidator) { v.clock = clock }
}

// WithValidatorLogger sets the logger for load failures.
func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *DomainValidator) { v.logger = logger }
}

// NewDomainValidator creates a DomainValidator backed by store.
func NewDomainValidator(store AllowlistStore, opts ...ValidatorOption) (*DomainValidator, error) {
	if store == nil {
		return nil, oops.Errorf("allowlist store is required")
	}
	v := &DomainValidator{
		store:       store,
		ttl:         DefaultAllowlistCacheTTL,
		loadTimeout: DefaultAllowlistLoadTimeout,
		clock:       SystemClock,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.clock == nil || v.logger == nil {
		return nil, oops.Errorf("validator clock and logger must not be nil")
	}
	if v.loadTimeout <= 0 {
		return nil, oops.Errorf("allowlist load timeout must be positive")
	}
	return v, nil
}

// IsAllowed reports whether email's exact address or its domain is on the
// allowlist. Malformed addresses and store failures yield false.
func (v *DomainValidator) IsAllowed(ctx context.Context, email string) bool {
	normalized, err := NormalizeAllowlistEmail(email)
	if err != nil {
		return false
	}
	list, err := v.snapshot(ctx)
	if err != nil {
		v.logger.WarnContext(ctx, "allowlist unavailable, denying sign-up", "error", err)
		return false
	}
	return list.allows(normalized)
}

// Refresh reloads the allowlist from the store now.
func (v *DomainValidator) Refresh(ctx context.Context) error {
	_, err := v.load(ctx)
	return err
}

// Invalidate drops the cached allowlist so the next check reloads it.
func (v *DomainValidator) Invalidate() {
	v.mu.Lock()
	v.current = nil
	v.mu.Unlock()
}

func (v *DomainValidator) snapshot(ctx context.Context) (*allowlist, error) {
	v.mu.RLock()
	current, loadedAt := v.current, v.loadedAt
	v.mu.RUnlock()

	if current != nil && v.ttl > 0 && v.clock.Now().Sub(loadedAt) < v.ttl {
		return current, nil
	}
	return v.load(ctx)
}

// load collapses concurrent reloads into one store round trip. The round
// trip runs detached from ctx under its own timeout; each caller stops
// waiting when its own ctx ends.
func (v *DomainValidator) load(ctx context.Context) (*allowlist, error) {
	ch := v.group.DoChan("allowlist", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.loadTimeout)
		defer cancel()

		list, err := v.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.current = list
		v.loadedAt = v.clock.Now()
		v.mu.Unlock()
		return list, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*allowlist), nil
	case <-ctx.Done():
		return nil, oops.Code("ALLOWLIST_LOAD_FAILED").
			With("operation", "wait for allowlist").
			Wrap(ctx.Err())
	}
}

func (v *DomainValidator) fetch(ctx context.Context) (*allowlist, error) {
	domains, err := v.store.ListDomains(ctx)
	if err != nil {
		return nil, oops.Code("ALLOWLIST_LOAD_FAILED").With("operation", "list domains").Wrap(err)
	}
	emails, err := v.store.ListEmails(ctx)
	if err != nil {
		return nil, oops.Code("ALLOWLIST_LOAD_FAILED").With("operation", "list emails").Wrap(err)
	}

	list := &allowlist{
		emails:  make(map[string]struct{}, len(emails)),
		domains: make(map[string]struct{}, len(domains)),
	}
	for _, email := range emails {
		list.emails[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	for _, raw := range domains {
		domain, err := NormalizeDomain(raw)
		if err != nil {
			v.logger.WarnContext(ctx, "skipping malformed allowlist domain", "domain", raw)
			continue
		}
		if !isDomainPattern(domain) {
			list.domains[domain] = struct{}{}
			continue
		}
		pattern, err := glob.Compile(domain, '.')
		if err != nil {
			v.logger.WarnContext(ctx, "skipping malformed allowlist domain", "domain", raw)
			continue
		}
		list.patterns = append(list.patterns, pattern)
	}
	return list, nil
}
