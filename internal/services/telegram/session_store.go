package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/session"
)

// SessionRepo is the persistence surface the session storage needs: one
// opaque string per platform user, overwritten wholesale.
type SessionRepo interface {
	LoadSession(ctx context.Context, userID int64) (string, error)
	SaveSession(ctx context.Context, userID int64, data string) error
}

// dbSessionStorage adapts a TelegramUser row to gotd's session.Storage.
// gotd loads the blob on connect and stores it after every auth key change,
// so an authorized client survives process restarts without a new QR scan.
type dbSessionStorage struct {
	repo   SessionRepo
	userID int64
}

func newDBSessionStorage(repo SessionRepo, userID int64) *dbSessionStorage {
	return &dbSessionStorage{repo: repo, userID: userID}
}

func (s *dbSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("session repo is nil")
	}

	data, err := s.repo.LoadSession(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("load session for user %d: %w", s.userID, err)
	}
	if data == "" {
		return nil, session.ErrNotFound
	}

	return []byte(data), nil
}

func (s *dbSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	if s.repo == nil {
		return fmt.Errorf("session repo is nil")
	}

	if err := s.repo.SaveSession(ctx, s.userID, string(data)); err != nil {
		return fmt.Errorf("store session for user %d: %w", s.userID, err)
	}

	return nil
}

var _ session.Storage = (*dbSessionStorage)(nil)
