package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Status is the outcome of a session validation.
type Status string

const (
	// StatusValid means the access token is present and unexpired
	StatusValid Status = "VALID"

	// StatusRefreshed means the access token was expired and has been
	// refreshed successfully
	StatusRefreshed Status = "REFRESHED"

	// StatusValidOffline means the access token is expired but the
	// refresh token is still valid and the device is offline; local-only
	// operation may continue
	StatusValidOffline Status = "VALID_OFFLINE"

	// StatusExpired means the session can't be recovered; the caller
	// must force a logout
	StatusExpired Status = "EXPIRED"
)

// RefreshClient performs the token refresh call against the backend.
type RefreshClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// Reachability reports whether the device has working internet access
// (active connectivity plus a real probe, not just link state).
type Reachability interface {
	Online(ctx context.Context) bool
}

// Validator decides whether the persisted session permits network sync.
type Validator struct {
	tokens    TokenStore
	refresher RefreshClient
	net       Reachability
	now       func() time.Time
	logger    *slog.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a session validator.
func NewValidator(tokens TokenStore, refresher RefreshClient, net Reachability, opts ...ValidatorOption) *Validator {
	v := &Validator{
		tokens:    tokens,
		refresher: refresher,
		net:       net,
		now:       time.Now,
		logger:    slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate inspects the persisted tokens and returns the session status.
//
// On StatusRefreshed the new access token has already been persisted.
// Transport errors during the refresh call convert to StatusExpired
// (fail closed); there is no retry inside this component.
func (v *Validator) Validate(ctx context.Context) Status {
	sess, err := v.tokens.Session()
	if err != nil {
		v.logger.Debug("No session available", "error", err)
		return StatusExpired
	}

	now := v.now()

	if sess.AccessToken != "" && !TokenExpired(sess.AccessToken, now) {
		return StatusValid
	}

	if sess.RefreshToken == "" || TokenExpired(sess.RefreshToken, now) {
		v.logger.Info("Refresh token missing or expired, session expired")
		return StatusExpired
	}

	if !v.net.Online(ctx) {
		v.logger.Debug("Device offline with valid refresh token, continuing local-only")
		return StatusValidOffline
	}

	newAccess, err := v.refresher.RefreshToken(ctx, sess.RefreshToken)
	if err != nil {
		v.logger.Warn("Token refresh failed, session expired", "error", err)
		return StatusExpired
	}

	if err := v.tokens.SetAccessToken(newAccess); err != nil {
		v.logger.Error("Failed to persist refreshed access token", "error", err)
		return StatusExpired
	}

	v.logger.Info("Access token refreshed")
	return StatusRefreshed
}

// TokenExpired reports whether the JWT's exp claim is at or before now.
//
// The claim is read without signature verification: the server is the
// authority on token validity, this check only avoids sending requests
// that are guaranteed to be rejected. Tokens without a readable exp
// claim are treated as expired.
func TokenExpired(raw string, now time.Time) bool {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return !exp.Time.After(now)
}
