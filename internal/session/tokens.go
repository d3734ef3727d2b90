// Package session manages the persisted user session and decides whether
// network sync is allowed to proceed.
package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ErrNoSession is returned when no session is persisted.
var ErrNoSession = errors.New("no session stored")

// Session holds the tokens and user identity persisted across restarts.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
}

// TokenStore is the durable key-value store holding the user session.
//
//go:generate mockgen -destination=mocks/mock_tokens.go -package=mocks github.com/maquinaplus/fieldsync/internal/session TokenStore
type TokenStore interface {
	// Session returns the persisted session, or ErrNoSession.
	Session() (Session, error)

	// SetSession persists a full session (login).
	SetSession(s Session) error

	// SetAccessToken replaces only the access token (refresh). The
	// refresh token is never mutated on this path.
	SetAccessToken(token string) error

	// Clear removes the session entirely (logout or irrecoverable
	// refresh failure).
	Clear() error
}

const (
	keyringService  = "fieldsync"
	keyAccessToken  = "access-token"
	keyRefreshToken = "refresh-token"
	keyUserID       = "user-id"
)

// keyringStore persists the session in the OS keyring.
type keyringStore struct {
	service string
}

// NewKeyringStore returns a TokenStore backed by the OS keyring.
func NewKeyringStore() TokenStore {
	return &keyringStore{service: keyringService}
}

func (k *keyringStore) Session() (Session, error) {
	access, err := keyring.Get(k.service, keyAccessToken)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return Session{}, fmt.Errorf("failed to read access token: %w", err)
	}

	refresh, err := keyring.Get(k.service, keyRefreshToken)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("failed to read refresh token: %w", err)
	}

	userID, err := keyring.Get(k.service, keyUserID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return Session{}, fmt.Errorf("failed to read user id: %w", err)
	}

	return Session{AccessToken: access, RefreshToken: refresh, UserID: userID}, nil
}

func (k *keyringStore) SetSession(s Session) error {
	if err := keyring.Set(k.service, keyAccessToken, s.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if err := keyring.Set(k.service, keyRefreshToken, s.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if err := keyring.Set(k.service, keyUserID, s.UserID); err != nil {
		return fmt.Errorf("failed to store user id: %w", err)
	}
	return nil
}

func (k *keyringStore) SetAccessToken(token string) error {
	if err := keyring.Set(k.service, keyAccessToken, token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

func (k *keyringStore) Clear() error {
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyUserID} {
		if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}
