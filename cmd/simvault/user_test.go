// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simvault/simvault/pkg/errutil"
)

var (
	testUserID = "01JNQ3B2W4X5Y6Z7A8B9C0D1E2"
	epoch      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userCols   = []string{"id", "email", "password_hash", "role", "email_confirmed", "created_at", "updated_at", "last_sign_in"}
)

func existingUserRows(email string) *pgxmock.Rows {
	return pgxmock.NewRows(userCols).
		AddRow(testUserID, email, "$argon2id$hash", "user", true, epoch, epoch, nil)
}

func TestReadPassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "first line", input: "correct horse\nsecond line\n", want: "correct horse"},
		{name: "no trailing newline", input: "battery staple", want: "battery staple"},
		{name: "crlf", input: "hunter22\r\n", want: "hunter22"},
		{name: "keeps inner spaces", input: "  padded  \n", want: "  padded  "},
		{name: "empty", input: "", wantErr: true},
		{name: "blank line", input: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPassword(strings.NewReader(tt.input))
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_ARGUMENT")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserCreate(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("Ops@Example.com").
		WillReturnRows(pgxmock.NewRows(userCols))
	pool.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "Ops@Example.com", pgxmock.AnyArg(), "admin", true,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(`INSERT INTO profiles`).
		WithArgs(pgxmock.AnyArg(), "Grace Hopper", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	output, err := execute(t, testDeps(testConfig(), pool), strings.NewReader("correct horse battery\n"),
		"user", "create", "--email", "Ops@Example.com", "--role", "admin", "--full-name", " Grace Hopper ", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, output, "Created admin user Ops@Example.com (")
	assert.True(t, pool.closed)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestUserCreate_Errors(t *testing.T) {
	t.Run("password must come from stdin", func(t *testing.T) {
		_, err := execute(t, testDeps(testConfig(), nil), nil, "user", "create", "--email", "ops@example.com")
		errutil.AssertErrorCode(t, err, "INVALID_ARGUMENT")
	})

	t.Run("email flag is required", func(t *testing.T) {
		_, err := execute(t, testDeps(testConfig(), nil), strings.NewReader("pw\n"), "user", "create", "--password-stdin")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "email")
	})

	t.Run("short password", func(t *testing.T) {
		pool := newMockPool(t)
		_, err := execute(t, testDeps(testConfig(), pool), strings.NewReader("short\n"),
			"user", "create", "--email", "ops@example.com", "--password-stdin")
		errutil.AssertErrorCode(t, err, "AUTH_VALIDATION")
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("unknown role", func(t *testing.T) {
		pool := newMockPool(t)
		_, err := execute(t, testDeps(testConfig(), pool), strings.NewReader("correct horse battery\n"),
			"user", "create", "--email", "ops@example.com", "--role", "root", "--password-stdin")
		errutil.AssertErrorCode(t, err, "AUTH_VALIDATION")
	})

	t.Run("existing email", func(t *testing.T) {
		pool := newMockPool(t)
		pool.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
			WithArgs("ops@example.com").
			WillReturnRows(existingUserRows("ops@example.com"))

		_, err := execute(t, testDeps(testConfig(), pool), strings.NewReader("correct horse battery\n"),
			"user", "create", "--email", "ops@example.com", "--password-stdin")
		errutil.AssertErrorCode(t, err, "AUTH_ALREADY_EXISTS")
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("bad signing config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.JWT.Secret = "short"
		_, err := execute(t, testDeps(cfg, newMockPool(t)), strings.NewReader("correct horse battery\n"),
			"user", "create", "--email", "ops@example.com", "--password-stdin")
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}

func TestUserRevokeSessions(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("Ada@Example.com").
		WillReturnRows(existingUserRows("Ada@Example.com"))
	pool.ExpectExec(`UPDATE refresh_tokens\s+SET revoked = TRUE, revoked_at = \$2\s+WHERE user_id = \$1`).
		WithArgs(testUserID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	output, err := execute(t, testDeps(testConfig(), pool), nil, "user", "revoke-sessions", "Ada@Example.com")
	require.NoError(t, err)
	assert.Contains(t, output, "Revoked 3 refresh token(s) for Ada@Example.com")
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestUserRevokeSessions_UnknownUser(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(pgxmock.NewRows(userCols))

	_, err := execute(t, testDeps(testConfig(), pool), nil, "user", "revoke-sessions", "nobody@example.com")
	errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
}
