package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maquinaplus/fieldsync/internal/session"
)

// publicPaths are reachable without a bearer token. The refresh path
// must be here or an expired access token would deadlock the refresh
// call behind itself.
var publicPaths = []string{
	"/" + pathLogin,
	"/" + pathTokenRefresh,
}

// AuthTransport is an http.RoundTripper that attaches the bearer token
// to every non-public request. Expired tokens are refreshed before the
// request goes out; an unexpected 401 triggers one refresh-and-retry.
// Concurrent refreshes collapse into a single upstream call.
type AuthTransport struct {
	base      http.RoundTripper
	tokens    session.TokenStore
	refresher session.RefreshClient
	group     singleflight.Group
	now       func() time.Time
	logger    *slog.Logger

	// onAuthFailure fires when a refresh is rejected by the server,
	// meaning the session is gone and the user must log in again.
	onAuthFailure func()
}

// TransportOption configures an AuthTransport.
type TransportOption func(*AuthTransport)

// WithBase sets the underlying RoundTripper.
func WithBase(rt http.RoundTripper) TransportOption {
	return func(t *AuthTransport) {
		t.base = rt
	}
}

// WithAuthFailureHandler registers the forced-logout callback.
func WithAuthFailureHandler(fn func()) TransportOption {
	return func(t *AuthTransport) {
		t.onAuthFailure = fn
	}
}

// WithTransportClock overrides the time source (tests).
func WithTransportClock(now func() time.Time) TransportOption {
	return func(t *AuthTransport) {
		t.now = now
	}
}

// NewAuthTransport creates the authenticating transport.
func NewAuthTransport(tokens session.TokenStore, refresher session.RefreshClient, opts ...TransportOption) *AuthTransport {
	t := &AuthTransport{
		base:      http.DefaultTransport,
		tokens:    tokens,
		refresher: refresher,
		now:       time.Now,
		logger:    slog.Default().With("component", "auth-transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isPublicPath(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	token, err := t.currentToken(req)
	if err != nil {
		return nil, err
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The server disagreed with our local expiry check. Refresh once
	// and replay; a body-carrying request needs GetBody for the replay.
	t.logger.Debug("Received 401, refreshing and retrying once", "path", req.URL.Path)
	resp.Body.Close()

	token, err = t.refresh(req)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(retry)
}

// currentToken returns a usable access token, refreshing pre-flight if
// the stored one has expired.
func (t *AuthTransport) currentToken(req *http.Request) (string, error) {
	sess, err := t.tokens.Session()
	if err != nil {
		return "", fmt.Errorf("no session for %s: %w", req.URL.Path, err)
	}
	if sess.AccessToken != "" && !session.TokenExpired(sess.AccessToken, t.now()) {
		return sess.AccessToken, nil
	}
	return t.refresh(req)
}

// refresh obtains a fresh access token, collapsing concurrent callers
// into one upstream request. Whoever loses the race reuses the winner's
// token.
func (t *AuthTransport) refresh(req *http.Request) (string, error) {
	token, err, _ := t.group.Do("refresh", func() (any, error) {
		sess, err := t.tokens.Session()
		if err != nil {
			return "", err
		}
		// Another flight may have refreshed while we queued.
		if sess.AccessToken != "" && !session.TokenExpired(sess.AccessToken, t.now()) {
			return sess.AccessToken, nil
		}
		if sess.RefreshToken == "" || session.TokenExpired(sess.RefreshToken, t.now()) {
			t.failAuth()
			return "", fmt.Errorf("refresh token expired")
		}

		fresh, err := t.refresher.RefreshToken(req.Context(), sess.RefreshToken)
		if err != nil {
			t.failAuth()
			return "", fmt.Errorf("token refresh failed: %w", err)
		}
		if err := t.tokens.SetAccessToken(fresh); err != nil {
			return "", fmt.Errorf("failed to persist access token: %w", err)
		}
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (t *AuthTransport) failAuth() {
	t.logger.Warn("Session is no longer refreshable, forcing logout")
	if t.onAuthFailure != nil {
		t.onAuthFailure()
	}
}
