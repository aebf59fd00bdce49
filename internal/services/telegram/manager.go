package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultIdleTTL     = 10 * time.Minute
	DefaultMaxLifetime = time.Hour
)

// ClientFactory builds a Client for one platform user. telegramUserPK is the
// TelegramUser row's primary key (the demo variant derives its synthetic
// identity from it).
type ClientFactory func(userID, telegramUserPK int64) (Client, error)

// Manager is the bounded pool of live clients, one per platform user. Entries
// are evicted after an idle period and unconditionally after a capped
// lifetime, so an abandoned login flow cannot pin a connection forever.
type Manager struct {
	factory     ClientFactory
	idleTTL     time.Duration
	maxLifetime time.Duration
	log         *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	entries map[int64]*poolEntry
}

type poolEntry struct {
	client    Client
	createdAt time.Time
	lastUsed  time.Time
}

func NewManager(factory ClientFactory, idleTTL, maxLifetime time.Duration, log *zap.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if maxLifetime <= 0 {
		maxLifetime = DefaultMaxLifetime
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		factory:     factory,
		idleTTL:     idleTTL,
		maxLifetime: maxLifetime,
		log:         log,
		now:         time.Now,
		entries:     make(map[int64]*poolEntry),
	}
}

// Acquire returns the live client for the user, building one when absent or
// expired.
func (m *Manager) Acquire(ctx context.Context, userID, telegramUserPK int64) (Client, error) {
	if m.factory == nil {
		return nil, fmt.Errorf("client factory is nil")
	}

	m.mu.Lock()
	if entry, ok := m.entries[userID]; ok {
		if m.expired(entry) {
			delete(m.entries, userID)
			m.mu.Unlock()
			_ = entry.client.Close(ctx)
			m.mu.Lock()
		} else {
			entry.lastUsed = m.now()
			client := entry.client
			m.mu.Unlock()
			return client, nil
		}
	}
	m.mu.Unlock()

	client, err := m.factory(userID, telegramUserPK)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	m.mu.Lock()
	if entry, ok := m.entries[userID]; ok && !m.expired(entry) {
		// Lost the build race to a concurrent Acquire; keep the winner.
		entry.lastUsed = m.now()
		winner := entry.client
		m.mu.Unlock()
		_ = client.Close(ctx)
		return winner, nil
	}
	now := m.now()
	m.entries[userID] = &poolEntry{client: client, createdAt: now, lastUsed: now}
	m.mu.Unlock()

	return client, nil
}

// Lookup returns the live client without creating one.
func (m *Manager) Lookup(userID int64) (Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[userID]
	if !ok || m.expired(entry) {
		return nil, false
	}
	entry.lastUsed = m.now()
	return entry.client, true
}

// Evict closes and removes the user's client. Idempotent.
func (m *Manager) Evict(ctx context.Context, userID int64) {
	m.mu.Lock()
	entry, ok := m.entries[userID]
	delete(m.entries, userID)
	m.mu.Unlock()

	if ok {
		if err := entry.client.Close(ctx); err != nil {
			m.log.Debug("close evicted telegram client", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
}

// Sweep closes idle and over-age entries. Returns how many were evicted.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	var stale []*poolEntry
	for userID, entry := range m.entries {
		if m.expired(entry) {
			stale = append(stale, entry)
			delete(m.entries, userID)
		}
	}
	m.mu.Unlock()

	for _, entry := range stale {
		_ = entry.client.Close(ctx)
	}
	return len(stale)
}

// Close evicts everything; used on shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[int64]*poolEntry)
	m.mu.Unlock()

	for _, entry := range entries {
		_ = entry.client.Close(ctx)
	}
}

func (m *Manager) expired(entry *poolEntry) bool {
	now := m.now()
	return now.Sub(entry.lastUsed) > m.idleTTL || now.Sub(entry.createdAt) > m.maxLifetime
}
