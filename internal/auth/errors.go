// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"errors"
	"net/http"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an entity violates a uniqueness constraint.
var ErrAlreadyExists = errors.New("already exists")

// Public error codes. These are the only codes Service hands back to callers.
const (
	CodeValidation          = "AUTH_VALIDATION"
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken        = "AUTH_INVALID_TOKEN"
	CodeTokenExpired        = "AUTH_TOKEN_EXPIRED"
	CodeInvalidRefreshToken = "AUTH_INVALID_REFRESH_TOKEN"
	CodeDomainNotAllowed    = "AUTH_DOMAIN_NOT_ALLOWED"
	CodeAlreadyExists       = "AUTH_ALREADY_EXISTS"
	CodeNotFound            = "AUTH_NOT_FOUND"
	CodeInternal            = "AUTH_INTERNAL"
)

// Kind classifies a public error for transport mapping.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidCredentials
	KindInvalidToken
	KindTokenExpired
	KindInvalidRefreshToken
	KindDomainNotAllowed
	KindAlreadyExists
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:            "internal",
	KindValidation:          "validation",
	KindInvalidCredentials:  "invalid_credentials",
	KindInvalidToken:        "invalid_token",
	KindTokenExpired:        "token_expired",
	KindInvalidRefreshToken: "invalid_refresh_token",
	KindDomainNotAllowed:    "domain_not_allowed",
	KindAlreadyExists:       "already_exists",
	KindNotFound:            "not_found",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus returns the HTTP status a transport should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindInvalidToken, KindTokenExpired, KindInvalidRefreshToken:
		return http.StatusUnauthorized
	case KindDomainNotAllowed:
		return http.StatusForbidden
	case KindAlreadyExists:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of a public error. Errors without a public code,
// including nil, classify as KindInternal.
func KindOf(err error) Kind {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	switch oopsErr.Code() {
	case CodeValidation:
		return KindValidation
	case CodeInvalidCredentials:
		return KindInvalidCredentials
	case CodeInvalidToken:
		return KindInvalidToken
	case CodeTokenExpired:
		return KindTokenExpired
	case CodeInvalidRefreshToken:
		return KindInvalidRefreshToken
	case CodeDomainNotAllowed:
		return KindDomainNotAllowed
	case CodeAlreadyExists:
		return KindAlreadyExists
	case CodeNotFound:
		return KindNotFound
	default:
		return KindInternal
	}
}

func validationError(format string, args ...any) error {
	return oops.Code(CodeValidation).Errorf(format, args...)
}

// invalidCredentials is shared by every sign-in failure so that an unknown
// email and a wrong password are indistinguishable.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func invalidRefreshToken() error {
	return oops.Code(CodeInvalidRefreshToken).Errorf("invalid or expired refresh token")
}
