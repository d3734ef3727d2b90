package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maquinaplus/fieldsync/internal/session"
)

var transportClock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func tokenWithExp(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

type countingRefresher struct {
	calls atomic.Int32
	token string
	err   error
}

func (c *countingRefresher) RefreshToken(context.Context, string) (string, error) {
	c.calls.Add(1)
	return c.token, c.err
}

func newAuthedClient(t *testing.T, baseURL string, tokens session.TokenStore, refresher session.RefreshClient, opts ...TransportOption) Client {
	t.Helper()
	opts = append(opts, WithTransportClock(func() time.Time { return transportClock }))
	transport := NewAuthTransport(tokens, refresher, opts...)
	return NewClient(baseURL, WithHTTPClient(&http.Client{Transport: transport}))
}

func TestTransportAttachesBearer(t *testing.T) {
	t.Parallel()
	access := tokenWithExp(t, transportClock.Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+access, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]MachineResponse{})
	}))
	defer srv.Close()

	tokens := session.NewMemoryStore()
	require.NoError(t, tokens.SetSession(session.Session{
		AccessToken:  access,
		RefreshToken: tokenWithExp(t, transportClock.Add(24*time.Hour)),
	}))

	c := newAuthedClient(t, srv.URL, tokens, &countingRefresher{})
	_, err := c.ListMachines(context.Background())
	require.NoError(t, err)
}

func TestTransportSkipsPublicPaths(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(LoginResponse{AccessToken: "a", RefreshToken: "r"})
	}))
	defer srv.Close()

	// No session stored at all: login must still go through.
	c := newAuthedClient(t, srv.URL, session.NewMemoryStore(), &countingRefresher{})
	_, err := c.Login(context.Background(), "inspector", "secret")
	require.NoError(t, err)
}

func TestTransportPreflightRefresh(t *testing.T) {
	t.Parallel()
	fresh := tokenWithExp(t, transportClock.Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]MachineResponse{})
	}))
	defer srv.Close()

	tokens := session.NewMemoryStore()
	require.NoError(t, tokens.SetSession(session.Session{
		AccessToken:  tokenWithExp(t, transportClock.Add(-time.Minute)),
		RefreshToken: tokenWithExp(t, transportClock.Add(24*time.Hour)),
	}))

	refresher := &countingRefresher{token: fresh}
	c := newAuthedClient(t, srv.URL, tokens, refresher)
	_, err := c.ListMachines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), refresher.calls.Load())

	// The refreshed token was persisted for the next process start.
	sess, err := tokens.Session()
	require.NoError(t, err)
	assert.Equal(t, fresh, sess.AccessToken)
}

func TestTransportRetriesOnceOn401(t *testing.T) {
	t.Parallel()
	fresh := tokenWithExp(t, transportClock.Add(time.Hour))
	stale := tokenWithExp(t, transportClock.Add(time.Hour))

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First call carries a locally-valid token the server has
		// already revoked; the retry must carry the refreshed one and
		// an intact body.
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))

		var req InspectionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(7), req.MachineID)
		json.NewEncoder(w).Encode(InspectionResponse{ID: 55})
	}))
	defer srv.Close()

	tokens := session.NewMemoryStore()
	require.NoError(t, tokens.SetSession(session.Session{
		AccessToken:  stale,
		RefreshToken: tokenWithExp(t, transportClock.Add(24*time.Hour)),
	}))

	refresher := &countingRefresher{token: fresh}
	c := newAuthedClient(t, srv.URL, tokens, refresher)

	id, err := c.SubmitInspection(context.Background(), &InspectionRequest{MachineID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestTransportCoalescesConcurrentRefreshes(t *testing.T) {
	t.Parallel()
	fresh := tokenWithExp(t, transportClock.Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]MachineResponse{})
	}))
	defer srv.Close()

	tokens := session.NewMemoryStore()
	require.NoError(t, tokens.SetSession(session.Session{
		AccessToken:  tokenWithExp(t, transportClock.Add(-time.Minute)),
		RefreshToken: tokenWithExp(t, transportClock.Add(24*time.Hour)),
	}))

	refresher := &countingRefresher{token: fresh}
	c := newAuthedClient(t, srv.URL, tokens, refresher)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListMachines(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Concurrent expired-token requests collapse into one refresh, and
	// later sequential requests reuse the persisted token.
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestTransportForcesLogoutWhenRefreshRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := session.NewMemoryStore()
	require.NoError(t, tokens.SetSession(session.Session{
		AccessToken:  tokenWithExp(t, transportClock.Add(-time.Minute)),
		RefreshToken: tokenWithExp(t, transportClock.Add(24*time.Hour)),
	}))

	var loggedOut atomic.Bool
	refresher := &countingRefresher{err: NewHTTPError(http.StatusUnauthorized, "/v1/auth/token/refresh", "invalid_grant")}
	c := newAuthedClient(t, srv.URL, tokens, refresher,
		WithAuthFailureHandler(func() { loggedOut.Store(true) }))

	_, err := c.ListMachines(context.Background())
	require.Error(t, err)
	assert.True(t, loggedOut.Load())
}
