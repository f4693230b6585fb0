// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration defaults.
const (
	// Audience is the aud claim carried by every access token.
	Audience = "authenticated"

	DefaultAccessTokenTTL  = 7 * 24 * time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	RefreshTokenBytes = 32 // 32 bytes = 64 hex chars
	MinHMACSecretLen  = 32
)

// Signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
)

// Claims are the access token claims. Subject holds the user ID.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (ulid.ULID, error) {
	id, err := ulid.ParseStrict(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).Errorf("invalid access token")
	}
	return id, nil
}

// IssuerConfig configures a TokenIssuer.
type IssuerConfig struct {
	// Algorithm is AlgorithmHS256 (default) or AlgorithmEdDSA.
	Algorithm string
	// Secret is the HMAC key for HS256.
	Secret []byte
	// PrivateKeyPEM is a PKCS#8 ed25519 key for EdDSA.
	PrivateKeyPEM []byte
	// Issuer is the optional iss claim. When set it is also required on verify.
	Issuer    string
	AccessTTL time.Duration
	Clock     Clock
}

// TokenIssuer mints and verifies access tokens and mints opaque refresh tokens.
type TokenIssuer struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	accessTTL time.Duration
	clock     Clock
}

// NewTokenIssuer creates a TokenIssuer from cfg.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	issuer := &TokenIssuer{
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		clock:     cfg.Clock,
	}
	if issuer.accessTTL <= 0 {
		issuer.accessTTL = DefaultAccessTokenTTL
	}
	if issuer.clock == nil {
		issuer.clock = SystemClock
	}

	switch cfg.Algorithm {
	case "", AlgorithmHS256:
		if len(cfg.Secret) < MinHMACSecretLen {
			return nil, oops.Code("TOKEN_ISSUER_INVALID_KEY").
				With("min_bytes", MinHMACSecretLen).
				Errorf("HS256 secret must be at least %d bytes", MinHMACSecretLen)
		}
		secret := make([]byte, len(cfg.Secret))
		copy(secret, cfg.Secret)
		issuer.method = jwt.SigningMethodHS256
		issuer.signKey = secret
		issuer.verifyKey = secret
	case AlgorithmEdDSA:
		key, err := jwt.ParseEdPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, oops.Code("TOKEN_ISSUER_INVALID_KEY").
				With("operation", "parse ed25519 private key").
				Wrap(err)
		}
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, oops.Code("TOKEN_ISSUER_INVALID_KEY").Errorf("private key is not ed25519")
		}
		issuer.method = jwt.SigningMethodEdDSA
		issuer.signKey = priv
		issuer.verifyKey = priv.Public()
	default:
		return nil, oops.Code("TOKEN_ISSUER_INVALID_ALGORITHM").
			With("algorithm", cfg.Algorithm).
			Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	return issuer, nil
}

// AccessTTL returns the lifetime of minted access tokens.
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// MintAccess signs an access token for user and returns it with its expiry.
// The expiry is truncated to whole seconds, matching the exp claim.
func (i *TokenIssuer) MintAccess(user *User) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.accessTTL).Truncate(time.Second)

	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{Audience},
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.signKey)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").
			With("operation", "sign access token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

// VerifyAccess validates signature, algorithm, audience, issuer and expiry.
// Expired tokens yield AUTH_TOKEN_EXPIRED; anything else AUTH_INVALID_TOKEN.
func (i *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid access token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.clock.Now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.verifyKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeTokenExpired).Errorf("access token has expired")
		}
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid access token")
	}
	return claims, nil
}

// MintRefresh returns a new opaque refresh token. Only HashRefreshToken of
// the result is ever stored.
func (i *TokenIssuer) MintRefresh() (string, error) {
	return GenerateRefreshToken()
}

// GenerateRefreshToken returns RefreshTokenBytes of randomness, hex encoded.
func GenerateRefreshToken() (string, error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("REFRESH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}

// HashRefreshToken computes the SHA256 digest under which a refresh token is stored.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
