// Package visits counts page loads of a card on one device.
package visits

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"card-engagement-api/internal/logger"
)

// ErrUnavailable is returned by stores that cannot be read or written.
var ErrUnavailable = errors.New("visits: storage unavailable")

// Store is durable client-local key/value storage.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Key returns the storage key for a card's visit count.
func Key(cardID string) string {
	return "visits:" + cardID
}

// Counter increments a per-card visit count in a Store.
type Counter struct {
	store  Store
	logger *slog.Logger
}

// NewCounter creates a counter over store. A nil store behaves as if
// storage were disabled.
func NewCounter(store Store, l *slog.Logger) *Counter {
	return &Counter{store: store, logger: logger.OrDiscard(l)}
}

// RegisterVisit increments and persists the visit count for cardID and
// returns the new value. Any storage failure degrades to 1 (first visit).
func (c *Counter) RegisterVisit(ctx context.Context, cardID string) int {
	if c.store == nil {
		return 1
	}

	key := Key(cardID)
	log := logger.WithCard(c.logger, cardID)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn("visit counter read failed", slog.String("error", err.Error()))
		return 1
	}

	previous := 0
	if ok {
		previous, err = strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || previous < 0 {
			log.Warn("visit counter value corrupt", slog.String("value", raw))
			return 1
		}
	}

	count := previous + 1
	if err := c.store.Set(ctx, key, strconv.Itoa(count)); err != nil {
		log.Warn("visit counter write failed", slog.String("error", err.Error()))
		return 1
	}

	log.Debug("visit registered", slog.Int("visit_count", count))
	return count
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}
