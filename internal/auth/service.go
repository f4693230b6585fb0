// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/simvault/simvault/pkg/errutil"
)

var tracer = otel.Tracer("simvault/auth")

// DefaultRequestTimeout bounds every Service call, storage and hashing included.
const DefaultRequestTimeout = 5 * time.Second

// TokenType is the token_type reported in every Session.
const TokenType = "bearer"

// Operation names used for spans, metrics and logs.
const (
	opSignUp         = "sign_up"
	opSignIn         = "sign_in"
	opRefresh        = "refresh"
	opSignOut        = "sign_out"
	opSignOutAll     = "sign_out_all"
	opGetUser        = "get_user"
	opValidateDomain = "validate_domain"
	opCreateUser     = "create_user"
)

// Session is the token pair handed to a client.
type Session struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResult is returned by SignUp, SignIn and Refresh.
type AuthResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// SignUpRequest holds self-service registration input.
type SignUpRequest struct {
	Email    string
	Password string
	Profile  *Profile
}

// CreateUserRequest holds operator registration input. It bypasses the
// allowlist and may assign any role.
type CreateUserRequest struct {
	Email    string
	Password string
	Role     Role
	Profile  *Profile
}

// AccessTokens mints and verifies tokens. *TokenIssuer implements it.
type AccessTokens interface {
	MintAccess(user *User) (string, time.Time, error)
	VerifyAccess(token string) (*Claims, error)
	MintRefresh() (string, error)
}

// CredentialHasher hashes passwords under a context. *HashPool implements it.
type CredentialHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
	NeedsUpgrade(hash string) bool
}

// SignUpPolicy decides who may register. *DomainValidator implements it.
type SignUpPolicy interface {
	IsAllowed(ctx context.Context, email string) bool
}

// Service coordinates sign-up, sign-in, refresh rotation and sign-out.
type Service struct {
	users  CredentialStore
	ledger RefreshTokenLedger
	tokens AccessTokens
	hasher CredentialHasher
	policy SignUpPolicy

	dummyHash           string
	clock               Clock
	logger              *slog.Logger
	refreshTTL          time.Duration
	timeout             time.Duration
	revokeFamilyOnReuse bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock used for token lifetimes and audit timestamps.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.refreshTTL = ttl }
}

// WithRequestTimeout sets the per-call deadline.
func WithRequestTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = timeout }
}

// WithFamilyRevocationOnReuse makes presenting a consumed refresh token
// revoke every token descended from the same sign-in.
func WithFamilyRevocationOnReuse(enabled bool) ServiceOption {
	return func(s *Service) { s.revokeFamilyOnReuse = enabled }
}

// NewService creates a Service. All dependencies are required.
func NewService(users CredentialStore, ledger RefreshTokenLedger, tokens AccessTokens,
	hasher CredentialHasher, policy SignUpPolicy, opts ...ServiceOption,
) (*Service, error) {
	switch {
	case users == nil:
		return nil, oops.Errorf("credential store is required")
	case ledger == nil:
		return nil, oops.Errorf("refresh token ledger is required")
	case tokens == nil:
		return nil, oops.Errorf("token issuer is required")
	case hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case policy == nil:
		return nil, oops.Errorf("sign-up policy is required")
	}

	s := &Service{
		users:      users,
		ledger:     ledger,
		tokens:     tokens,
		hasher:     hasher,
		policy:     policy,
		dummyHash:  dummyPasswordHash,
		clock:      SystemClock,
		logger:     slog.Default(),
		refreshTTL: DefaultRefreshTokenTTL,
		timeout:    DefaultRequestTimeout,
	}
	if d, ok := hasher.(dummyHasher); ok {
		s.dummyHash = d.DummyHash()
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case s.clock == nil:
		return nil, oops.Errorf("clock must not be nil")
	case s.logger == nil:
		return nil, oops.Errorf("logger must not be nil")
	case s.refreshTTL <= 0:
		return nil, oops.Errorf("refresh token TTL must be positive")
	case s.timeout <= 0:
		return nil, oops.Errorf("request timeout must be positive")
	}
	return s, nil
}

// begin applies the request deadline and opens a span. The returned finish
// func must be called with the operation's final error.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth."+operation,
		trace.WithAttributes(attribute.String("auth.operation", operation)))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)

	return ctx, func(err error) {
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err).String())
		}
		span.End()
		recordOperation(operation, err, time.Since(start))
	}
}

// internalError logs the underlying failure and replaces it with a generic
// AUTH_INTERNAL error.
func (s *Service) internalError(ctx context.Context, operation string, err error) error {
	errutil.LogError(ctx, s.logger, "auth operation failed", err, "operation", operation)
	return oops.Code(CodeInternal).Errorf("internal error")
}

// SignUp registers a new user whose email passes the allowlist and opens a
// session for them.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (result *AuthResult, err error) {
	ctx, finish := s.begin(ctx, opSignUp)
	defer func() { finish(err) }()

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err = ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	profile, err := normalizeOptionalProfile(req.Profile)
	if err != nil {
		return nil, err
	}

	if !s.policy.IsAllowed(ctx, email) {
		_, domain, _ := SplitEmail(email)
		return nil, oops.Code(CodeDomainNotAllowed).
			With("domain", domain).
			Errorf("email domain is not allowed to sign up")
	}

	user, err := s.register(ctx, opSignUp, email, req.Password, RoleUser, false, profile)
	if err != nil {
		return nil, err
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, s.internalError(ctx, opSignUp, err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID.String())
	return &AuthResult{User: user, Session: session}, nil
}

// CreateUser registers a user on behalf of an operator. The allowlist is not
// consulted and no session is opened.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (user *User, err error) {
	ctx, finish := s.begin(ctx, opCreateUser)
	defer func() { finish(err) }()

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err = ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, validationError("unknown role %q", role)
	}
	profile, err := normalizeOptionalProfile(req.Profile)
	if err != nil {
		return nil, err
	}

	user, err = s.register(ctx, opCreateUser, email, req.Password, role, true, profile)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID.String(), "role", string(role))
	return user, nil
}

func normalizeOptionalProfile(p *Profile) (Profile, error) {
	if p == nil {
		return Profile{}, nil
	}
	return p.Normalize()
}

func (s *Service) register(ctx context.Context, operation, email, password string, role Role, confirmed bool, profile Profile) (*User, error) {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, oops.Code(CodeAlreadyExists).Errorf("a user with this email already exists")
	case !errors.Is(err, ErrNotFound):
		return nil, s.internalError(ctx, operation, err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, s.internalError(ctx, operation, err)
	}

	user, err := NewUser(email, hash, role, s.clock.Now())
	if err != nil {
		return nil, s.internalError(ctx, operation, err)
	}
	user.EmailConfirmed = confirmed

	if err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code(CodeAlreadyExists).Errorf("a user with this email already exists")
		}
		return nil, s.internalError(ctx, operation, err)
	}

	if !profile.IsZero() {
		if err := s.users.CreateProfile(ctx, user.ID, profile); err != nil {
			return nil, s.internalError(ctx, operation, err)
		}
	}
	return user, nil
}

// SignIn checks credentials and opens a new session. An unknown email and a
// wrong password produce the same error after the same amount of work.
func (s *Service) SignIn(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, finish := s.begin(ctx, opSignIn)
	defer func() { finish(err) }()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}
	if len(password) > MaxPasswordLength {
		return nil, validationError("password must be at most %d bytes", MaxPasswordLength)
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := s.dummyHash
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, s.internalError(ctx, opSignIn, lookupErr)
	}

	// Always verify so both branches cost one hash.
	valid, verifyErr := s.hasher.Verify(ctx, password, targetHash)
	if verifyErr != nil {
		if ctx.Err() != nil || userExists {
			return nil, s.internalError(ctx, opSignIn, verifyErr)
		}
		return nil, invalidCredentials()
	}
	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	now := s.clock.Now()
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password, now)
	}

	if err := s.users.UpdateLastSignIn(ctx, user.ID, now); err != nil {
		return nil, s.internalError(ctx, opSignIn, err)
	}
	user.LastSignIn = &now

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, s.internalError(ctx, opSignIn, err)
	}
	return &AuthResult{User: user, Session: session}, nil
}

// upgradeHash rehashes with current parameters. Failure is logged and
// does not fail the sign-in.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string, now time.Time) {
	newHash, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, newHash, now)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed",
			append(errutil.ErrorAttrs(err), "user_id", user.ID.String())...)
		return
	}
	user.PasswordHash = newHash
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// Refresh exchanges a refresh token for a new session. The presented token
// is consumed; of any concurrent callers presenting it, exactly one wins.
//
// The owner is read before the rotation begins so the issue step never needs
// a second storage connection while the rotation holds one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (result *AuthResult, err error) {
	ctx, finish := s.begin(ctx, opRefresh)
	defer func() { finish(err) }()

	if refreshToken == "" {
		return nil, invalidRefreshToken()
	}
	tokenHash := HashRefreshToken(refreshToken)
	now := s.clock.Now()

	presented, err := s.ledger.Lookup(ctx, tokenHash)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, invalidRefreshToken()
	case err != nil:
		return nil, s.internalError(ctx, opRefresh, err)
	case !presented.IsActiveAt(now):
		if presented.Revoked {
			s.reportReuse(ctx, presented, now)
		}
		return nil, invalidRefreshToken()
	}

	user, err := s.users.GetByID(ctx, presented.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidRefreshToken()
		}
		return nil, s.internalError(ctx, opRefresh, err)
	}

	var (
		plaintext   string
		accessToken string
		accessExp   time.Time
	)
	next, err := s.ledger.Rotate(ctx, tokenHash, now, func(_ context.Context, consumed *RefreshToken) (*RefreshToken, error) {
		token, record, err := s.newRefreshRecord(user.ID, consumed.FamilyID, now)
		if err != nil {
			return nil, err
		}
		access, exp, err := s.tokens.MintAccess(user)
		if err != nil {
			return nil, err
		}
		plaintext, accessToken, accessExp = token, access, exp
		return record, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.checkReuse(ctx, tokenHash, now)
			return nil, invalidRefreshToken()
		}
		return nil, s.internalError(ctx, opRefresh, err)
	}

	return &AuthResult{
		User:    user,
		Session: newSession(accessToken, accessExp, plaintext, next.ExpiresAt, now),
	}, nil
}

// checkReuse inspects a refresh token that lost its rotation. A record that
// exists but was already revoked means the token was replayed.
func (s *Service) checkReuse(ctx context.Context, tokenHash string, now time.Time) {
	record, err := s.ledger.Lookup(ctx, tokenHash)
	if err != nil || !record.Revoked {
		return
	}
	s.reportReuse(ctx, record, now)
}

// reportReuse counts a replayed refresh token and, when configured, revokes
// its whole login chain.
func (s *Service) reportReuse(ctx context.Context, record *RefreshToken, now time.Time) {
	if !s.revokeFamilyOnReuse {
		refreshReuse.WithLabelValues("rejected").Inc()
		s.logger.InfoContext(ctx, "consumed refresh token presented again",
			"user_id", record.UserID.String(), "family_id", record.FamilyID.String())
		return
	}

	revoked, err := s.ledger.RevokeFamily(ctx, record.FamilyID, now)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh family revocation failed",
			append(errutil.ErrorAttrs(err), "family_id", record.FamilyID.String())...)
		return
	}
	refreshReuse.WithLabelValues("family_revoked").Inc()
	s.logger.WarnContext(ctx, "refresh token reuse, family revoked",
		"user_id", record.UserID.String(),
		"family_id", record.FamilyID.String(),
		"revoked", revoked)
}

// SignOut revokes a refresh token. Unknown, expired and already revoked
// tokens are accepted silently.
func (s *Service) SignOut(ctx context.Context, refreshToken string) (err error) {
	ctx, finish := s.begin(ctx, opSignOut)
	defer func() { finish(err) }()

	if refreshToken == "" {
		return nil
	}
	if err := s.ledger.Revoke(ctx, HashRefreshToken(refreshToken), s.clock.Now()); err != nil {
		return s.internalError(ctx, opSignOut, err)
	}
	return nil
}

// SignOutAll revokes every refresh token of the access token's subject and
// returns how many were revoked.
func (s *Service) SignOutAll(ctx context.Context, accessToken string) (revoked int64, err error) {
	ctx, finish := s.begin(ctx, opSignOutAll)
	defer func() { finish(err) }()

	userID, err := s.subject(accessToken)
	if err != nil {
		return 0, err
	}
	revoked, err = s.ledger.RevokeAll(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, s.internalError(ctx, opSignOutAll, err)
	}
	s.logger.InfoContext(ctx, "signed out everywhere", "user_id", userID.String(), "revoked", revoked)
	return revoked, nil
}

// GetUser returns the current state of the access token's subject.
func (s *Service) GetUser(ctx context.Context, accessToken string) (user *User, err error) {
	ctx, finish := s.begin(ctx, opGetUser)
	defer func() { finish(err) }()

	userID, err := s.subject(accessToken)
	if err != nil {
		return nil, err
	}
	user, err = s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).Errorf("user not found")
		}
		return nil, s.internalError(ctx, opGetUser, err)
	}
	return user, nil
}

// ValidateDomain reports whether email may sign up. It never errors.
func (s *Service) ValidateDomain(ctx context.Context, email string) bool {
	ctx, finish := s.begin(ctx, opValidateDomain)
	defer finish(nil)
	return s.policy.IsAllowed(ctx, email)
}

func (s *Service) subject(accessToken string) (ulid.ULID, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return ulid.ULID{}, err
	}
	return claims.UserID()
}

func (s *Service) startSession(ctx context.Context, user *User) (*Session, error) {
	now := s.clock.Now()
	refresh, record, err := s.newRefreshRecord(user.ID, ulid.Make(), now)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.tokens.MintAccess(user)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Store(ctx, record); err != nil {
		return nil, err
	}
	return newSession(access, accessExp, refresh, record.ExpiresAt, now), nil
}

func (s *Service) newRefreshRecord(userID, familyID ulid.ULID, now time.Time) (string, *RefreshToken, error) {
	token, err := s.tokens.MintRefresh()
	if err != nil {
		return "", nil, err
	}
	record, err := NewRefreshToken(HashRefreshToken(token), userID, familyID, now, now.Add(s.refreshTTL))
	if err != nil {
		return "", nil, err
	}
	return token, record, nil
}

func newSession(access string, accessExp time.Time, refresh string, refreshExp, now time.Time) *Session {
	return &Session{
		AccessToken:      access,
		TokenType:        TokenType,
		ExpiresIn:        int64(accessExp.Sub(now) / time.Second),
		ExpiresAt:        accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}
}
