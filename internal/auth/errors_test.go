// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/simvault/simvault/internal/auth"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		code   string
		kind   auth.Kind
		status int
	}{
		{auth.CodeValidation, auth.KindValidation, http.StatusBadRequest},
		{auth.CodeInvalidCredentials, auth.KindInvalidCredentials, http.StatusUnauthorized},
		{auth.CodeInvalidToken, auth.KindInvalidToken, http.StatusUnauthorized},
		{auth.CodeTokenExpired, auth.KindTokenExpired, http.StatusUnauthorized},
		{auth.CodeInvalidRefreshToken, auth.KindInvalidRefreshToken, http.StatusUnauthorized},
		{auth.CodeDomainNotAllowed, auth.KindDomainNotAllowed, http.StatusForbidden},
		{auth.CodeAlreadyExists, auth.KindAlreadyExists, http.StatusConflict},
		{auth.CodeNotFound, auth.KindNotFound, http.StatusNotFound},
		{auth.CodeInternal, auth.KindInternal, http.StatusInternalServerError},
		{"USER_CREATE_FAILED", auth.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := oops.Code(tt.code).Errorf("boom")
			kind := auth.KindOf(err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.status, kind.HTTPStatus())
		})
	}

	t.Run("plain and nil errors are internal", func(t *testing.T) {
		assert.Equal(t, auth.KindInternal, auth.KindOf(errors.New("plain")))
		assert.Equal(t, auth.KindInternal, auth.KindOf(nil))
	})

	t.Run("kind names", func(t *testing.T) {
		assert.Equal(t, "domain_not_allowed", auth.KindDomainNotAllowed.String())
		assert.Equal(t, "unknown", auth.Kind(99).String())
	})
}
