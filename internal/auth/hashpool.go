// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"context"
	"runtime"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// HashPool bounds how many password hashes run at once. Argon2id is CPU and
// memory bound, so callers queue for a slot instead of oversubscribing the
// host. Waiting respects context cancellation.
type HashPool struct {
	hasher PasswordHasher
	sem    *semaphore.Weighted
	size   int64
}

// NewHashPool wraps hasher with a pool of size slots. A size of zero or less
// uses runtime.NumCPU.
func NewHashPool(hasher PasswordHasher, size int) (*HashPool, error) {
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &HashPool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
	}, nil
}

// Size returns the number of concurrent hash slots.
func (p *HashPool) Size() int {
	return int(p.size)
}

// Hash hashes password on a pool slot.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	return submit(ctx, p, func() (string, error) {
		return p.hasher.Hash(password)
	})
}

// Verify checks password against hash on a pool slot.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	return submit(ctx, p, func() (bool, error) {
		return p.hasher.Verify(password, hash)
	})
}

// DummyHash returns the wrapped hasher's timing-equalisation hash.
func (p *HashPool) DummyHash() string {
	if d, ok := p.hasher.(dummyHasher); ok {
		return d.DummyHash()
	}
	return dummyPasswordHash
}

// NeedsUpgrade is cheap and runs inline.
func (p *HashPool) NeedsUpgrade(hash string) bool {
	return p.hasher.NeedsUpgrade(hash)
}

type poolResult[T any] struct {
	value T
	err   error
}

// submit runs fn once a slot is free. If ctx ends while fn is running the
// caller gets ctx's error immediately; fn finishes in the background and
// releases its slot.
func submit[T any](ctx context.Context, p *HashPool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, oops.Code("HASH_POOL_UNAVAILABLE").
			With("operation", "acquire hash slot").
			Wrap(err)
	}

	done := make(chan poolResult[T], 1)
	hashInflight.Inc()
	go func() {
		defer p.sem.Release(1)
		defer hashInflight.Dec()
		value, err := fn()
		done <- poolResult[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return zero, oops.Code("HASH_POOL_CANCELLED").
			With("operation", "await hash").
			Wrap(ctx.Err())
	}
}
