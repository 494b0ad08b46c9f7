package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session is returned by Register and Login.
type Session struct {
	User models.PublicUser `json:"user"`
	TokenPair
}

// AuthService implements the credential and token lifecycle:
// registration, login with lockout, refresh rotation, logout everywhere,
// password reset and email verification. It holds no state between calls;
// every decision goes through the store.
type AuthService struct {
	tx     dbx.Transactor
	rm     repomanager.RepositoryManager
	hasher PasswordHasher
	log    logging.Logger
	now    func() time.Time

	lockout      *LockoutTracker
	refresh      *RefreshLedger
	reset        *ResetLedger
	verification *VerificationLedger

	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	exposeTokens                bool

	// dummyDigest is verified against when the email is unknown so that the
	// response time does not reveal whether an account exists.
	dummyDigest string
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(tx dbx.Transactor, m repomanager.RepositoryManager, hasher PasswordHasher,
	cfg *config.Config, log logging.Logger, opts ...Option) (*AuthService, error) {

	o := buildOptions(opts)

	dummy, err := hasher.Hash("authkeeper-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("error preparing dummy digest: %w", err)
	}

	return &AuthService{
		tx:     tx,
		rm:     m,
		hasher: hasher,
		log:    log,
		now:    o.now,
		lockout: NewLockoutTracker(tx, m, LockoutPolicy{
			Threshold: cfg.LockoutThreshold,
			Window:    cfg.LockoutWindow,
			Duration:  cfg.LockoutDuration,
		}),
		refresh:                     NewRefreshLedger(tx, m, cfg.RefreshTokenValidityDuration, cfg.RefreshTokenBytes, log),
		reset:                       NewResetLedger(tx, m, cfg.ResetTokenValidityDuration, cfg.SingleUseTokenBytes),
		verification:                NewVerificationLedger(tx, m, cfg.VerificationTokenValidityDuration, cfg.SingleUseTokenBytes),
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		exposeTokens:                cfg.ExposeTokens,
		dummyDigest:                 dummy,
	}, nil
}

// Register creates an ACTIVE user with role USER and opens a session.
// An email already taken, compared case-insensitively, fails with
// common.ErrEmailInUse.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	_, err := s.rm.Users(s.tx.Conn()).FindByEmail(ctx, email)
	if err == nil {
		return nil, common.ErrEmailInUse
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	now := s.now()
	var (
		user    *models.User
		refresh string
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.rm.Users(tx).Create(ctx, &models.User{
			Name:         name,
			Email:        email,
			PasswordHash: digest,
			Role:         models.RoleUser,
			Status:       models.StatusActive,
		})
		if err != nil {
			// a concurrent registration won the unique index
			if errors.Is(err, common.ErrEmailInUse) {
				return err
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		refresh, _, err = s.refresh.Issue(ctx, tx, user.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	access, err := s.signAccessToken(user, now)
	if err != nil {
		return nil, err
	}

	metrics.Registrations.Inc()
	s.log.Info(ctx, "user registered", "user_id", user.ID)

	return &Session{User: user.Public(), TokenPair: TokenPair{AccessToken: access, RefreshToken: refresh}}, nil
}

// Login checks email and password and opens a session.
//
// Unknown email, inactive account and wrong password all fail with
// common.ErrInvalidCredentials; a wrong password on an existing account
// carries the remaining attempts (*common.InvalidCredentialsError). A locked
// account, or a failure that reaches the threshold, fails with
// *common.AccountLockedError without the password being checked again.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	now := s.now()

	user, err := s.rm.Users(s.tx.Conn()).FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, common.ErrorNotFound) {
		s.hasher.Verify(s.dummyDigest, password)
		metrics.Logins.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	if until, ok := s.lockout.Admit(user, now); !ok {
		metrics.Logins.WithLabelValues(metrics.ResultLocked).Inc()
		return nil, common.NewAccountLockedError(until, now)
	}

	if user.Status != models.StatusActive {
		s.hasher.Verify(s.dummyDigest, password)
		metrics.Logins.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, common.ErrInvalidCredentials
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		out, err := s.lockout.RecordFailure(ctx, user.ID, now)
		if err != nil {
			return nil, err
		}
		if out.Locked() {
			if out.Escalated {
				metrics.Lockouts.Inc()
				s.log.Warn(ctx, "account locked after failed logins",
					"user_id", user.ID, "failures", out.Count, "locked_until", *out.LockedUntil)
			}
			metrics.Logins.WithLabelValues(metrics.ResultLocked).Inc()
			return nil, common.NewAccountLockedError(*out.LockedUntil, now)
		}
		metrics.Logins.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, &common.InvalidCredentialsError{Remaining: out.Remaining}
	}

	if err := s.lockout.Reset(ctx, user.ID); err != nil {
		return nil, err
	}
	user.LoginFailures = models.LoginFailures{}

	refresh, _, err := s.refresh.Issue(ctx, s.tx.Conn(), user.ID, now)
	if err != nil {
		return nil, err
	}
	access, err := s.signAccessToken(user, now)
	if err != nil {
		return nil, err
	}

	metrics.Logins.WithLabelValues(metrics.ResultSuccess).Inc()
	return &Session{User: user.Public(), TokenPair: TokenPair{AccessToken: access, RefreshToken: refresh}}, nil
}

// Refresh rotates rawRefreshToken and mints a new access token for its
// owner. Any unusable token fails with common.ErrInvalidRefreshToken.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	now := s.now()

	rot, err := s.refresh.ValidateAndRotate(ctx, rawRefreshToken, now)
	if err != nil {
		return nil, err
	}

	access, err := s.signAccessToken(rot.User, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: rot.RefreshToken}, nil
}

// LogoutAll revokes every refresh token of userID. Access tokens already
// issued stay valid until they expire.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	n, err := s.refresh.RevokeAll(ctx, s.tx.Conn(), userID, s.now())
	if err != nil {
		return err
	}
	s.log.Info(ctx, "refresh tokens revoked", "user_id", userID, "count", n)
	return nil
}

// ForgotPassword issues a reset token when email belongs to an account.
// The outcome never reveals whether it does. The raw token is returned only
// when token exposure is enabled; otherwise it must reach the user through
// an out-of-band channel and the result is always empty.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.rm.Users(s.tx.Conn()).FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, common.ErrorNotFound) {
		s.reset.Discard()
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error looking up user: %w", err)
	}

	raw, err := s.reset.Issue(ctx, user.ID, s.now())
	if err != nil {
		return "", err
	}
	s.log.Info(ctx, "password reset requested", "user_id", user.ID)

	if !s.exposeTokens {
		return "", nil
	}
	return raw, nil
}

// ResetPassword consumes rawToken and sets newPassword. Consumption, the
// password update and revocation of every refresh token of the user commit
// together, so a token changes the password at most once. An unknown, used
// or expired token fails with common.ErrInvalidOrExpiredToken.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	now := s.now()
	var userID string
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		userID, err = s.reset.Consume(ctx, tx, rawToken, now)
		if err != nil {
			return err
		}
		if err := s.rm.Users(tx).UpdatePassword(ctx, userID, digest, now); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		_, err = s.refresh.RevokeAll(ctx, tx, userID, now)
		return err
	})
	if errors.Is(err, common.ErrInvalidOrExpiredToken) {
		metrics.PasswordResets.WithLabelValues(metrics.ResultInvalid).Inc()
		return err
	}
	if err != nil {
		return err
	}

	metrics.PasswordResets.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info(ctx, "password reset", "user_id", userID)
	return nil
}

// RequestEmailVerification issues a verification token for userID,
// replacing any outstanding one. The raw token is returned only when token
// exposure is enabled.
func (s *AuthService) RequestEmailVerification(ctx context.Context, userID string) (string, error) {
	user, err := s.rm.Users(s.tx.Conn()).FindByID(ctx, userID)
	if err != nil {
		return "", err
	}

	raw, err := s.verification.Issue(ctx, user.ID, s.now())
	if err != nil {
		return "", err
	}
	if !s.exposeTokens {
		return "", nil
	}
	return raw, nil
}

// VerifyEmail consumes a verification token. It fails with
// common.ErrVerificationExpired for a known but expired token and with
// common.ErrVerificationInvalid otherwise.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	userID, err := s.verification.Consume(ctx, rawToken, s.now())
	switch {
	case errors.Is(err, common.ErrVerificationExpired):
		metrics.EmailVerifications.WithLabelValues(metrics.ResultExpired).Inc()
		return err
	case errors.Is(err, common.ErrVerificationInvalid):
		metrics.EmailVerifications.WithLabelValues(metrics.ResultInvalid).Inc()
		return err
	case err != nil:
		return err
	}

	metrics.EmailVerifications.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info(ctx, "email verified", "user_id", userID)
	return nil
}

// ParseAccessToken checks an access token against the service clock.
func (s *AuthService) ParseAccessToken(token string) (*auth.Claims, error) {
	return auth.ParseToken(token, s.jwtSecret, s.now())
}

func (s *AuthService) signAccessToken(u *models.User, now time.Time) (string, error) {
	token, err := auth.GenerateToken(u.ID, u.Role, s.jwtSecret, now, s.accessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("error signing access token: %w", err)
	}
	return token, nil
}
