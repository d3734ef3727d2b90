package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "3",
		"exp": exp.Unix(),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

type fakeRefresher struct {
	token string
	err   error
	calls int
}

func (f *fakeRefresher) RefreshToken(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeNet struct{ online bool }

func (f *fakeNet) Online(context.Context) bool { return f.online }

func newTestValidator(tokens TokenStore, refresher RefreshClient, online bool) *Validator {
	return NewValidator(tokens, refresher, &fakeNet{online: online},
		WithClock(func() time.Time { return testClock }))
}

func TestValidateAccessTokenStillValid(t *testing.T) {
	t.Parallel()
	tokens := NewMemoryStore()
	require.NoError(t, tokens.SetSession(Session{
		AccessToken:  signedToken(t, testClock.Add(time.Hour)),
		RefreshToken: signedToken(t, testClock.Add(24*time.Hour)),
	}))

	refresher := &fakeRefresher{}
	v := newTestValidator(tokens, refresher, true)

	assert.Equal(t, StatusValid, v.Validate(context.Background()))
	assert.Zero(t, refresher.calls)
}

func TestValidateBothTokensExpired(t *testing.T) {
	t.Parallel()
	tokens := NewMemoryStore()
	require.NoError(t, tokens.SetSession(Session{
		AccessToken:  signedToken(t, testClock.Add(-time.Hour)),
		RefreshToken: signedToken(t, testClock.Add(-time.Minute)),
	}))

	refresher := &fakeRefresher{}
	v := newTestValidator(tokens, refresher, true)

	assert.Equal(t, StatusExpired, v.Validate(context.Background()))
	assert.Zero(t, refresher.calls)
}

func TestValidateOfflineWithValidRefreshToken(t *testing.T) {
	t.Parallel()
	tokens := NewMemoryStore()
	require.NoError(t, tokens.SetSession(Session{
		AccessToken:  signedToken(t, testClock.Add(-time.Hour)),
		RefreshToken: signedToken(t, testClock.Add(24*time.Hour)),
	}))

	refresher := &fakeRefresher{}
	v := newTestValidator(tokens, refresher, false)

	assert.Equal(t, StatusValidOffline, v.Validate(context.Background()))
	assert.Zero(t, refresher.calls)
}

func TestValidateRefreshSucceeds(t *testing.T) {
	t.Parallel()
	tokens := NewMemoryStore()
	require.NoError(t, tokens.SetSession(Session{
		AccessToken:  signedToken(t, testClock.Add(-time.Hour)),
		RefreshToken: signedToken(t, testClock.Add(24*time.Hour)),
	}))

	fresh := signedToken(t, testClock.Add(time.Hour))
	refresher := &fakeRefresher{token: fresh}
	v := newTestValidator(tokens, refresher, true)

	assert.Equal(t, StatusRefreshed, v.Validate(context.Background()))
	assert.Equal(t, 1, refresher.calls)

	sess, err := tokens.Session()
	require.NoError(t, err)
	assert.Equal(t, fresh, sess.AccessToken)
}

func TestValidateRefreshRejected(t *testing.T) {
	t.Parallel()
	tokens := NewMemoryStore()
	original := signedToken(t, testClock.Add(24*time.Hour))
	require.NoError(t, tokens.SetSession(Session{
		AccessToken:  signedToken(t, testClock.Add(-time.Hour)),
		RefreshToken: original,
	}))

	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	v := newTestValidator(tokens, refresher, true)

	assert.Equal(t, StatusExpired, v.Validate(context.Background()))

	// The refresh token itself is never touched on this path.
	sess, err := tokens.Session()
	require.NoError(t, err)
	assert.Equal(t, original, sess.RefreshToken)
}

func TestValidateNoSession(t *testing.T) {
	t.Parallel()
	v := newTestValidator(NewMemoryStore(), &fakeRefresher{}, true)
	assert.Equal(t, StatusExpired, v.Validate(context.Background()))
}

func TestTokenExpired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{name: "future exp", token: signedTokenExp(t, testClock.Add(time.Minute)), expired: false},
		{name: "past exp", token: signedTokenExp(t, testClock.Add(-time.Second)), expired: true},
		{name: "exactly now", token: signedTokenExp(t, testClock), expired: true},
		{name: "garbage", token: "not-a-jwt", expired: true},
		{name: "empty", token: "", expired: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expired, TokenExpired(tt.token, testClock))
		})
	}
}

func signedTokenExp(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}
