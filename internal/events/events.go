package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"card-engagement-api/internal/logger"
	"card-engagement-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventEngagementCreated is emitted when a record is first persisted
	EventEngagementCreated EventType = "engagement.created"
	// EventEngagementUpdated is emitted on every later write
	EventEngagementUpdated EventType = "engagement.updated"
	// EventTemperatureChanged is emitted when a write moves a record to another band
	EventTemperatureChanged EventType = "engagement.temperature_changed"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// EngagementData is the payload of created and updated events.
type EngagementData struct {
	Record models.EngagementRecord
}

// TemperatureChangedData is the payload of temperature change events.
type TemperatureChangedData struct {
	RecordID string
	CardID   string
	From     models.Temperature
	To       models.Temperature
	Score    int
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool, l *slog.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger.OrDiscard(l),
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously and detached from the request context.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	m.mu.RLock()
	enabled := m.enabled
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if !enabled || len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				m.logger.Error("event handler failed",
					slog.String("event", string(eventType)),
					slog.String("error", err.Error()),
				)
			}
		}(handler)
	}
}

// PublishEngagementCreated publishes an engagement created event.
func (m *Manager) PublishEngagementCreated(ctx context.Context, rec models.EngagementRecord) {
	m.Publish(ctx, EventEngagementCreated, EngagementData{Record: rec})
}

// PublishEngagementUpdated publishes an engagement updated event.
func (m *Manager) PublishEngagementUpdated(ctx context.Context, rec models.EngagementRecord) {
	m.Publish(ctx, EventEngagementUpdated, EngagementData{Record: rec})
}

// PublishTemperatureChanged publishes a temperature change.
func (m *Manager) PublishTemperatureChanged(ctx context.Context, rec models.EngagementRecord, from models.Temperature) {
	m.Publish(ctx, EventTemperatureChanged, TemperatureChangedData{
		RecordID: rec.ID,
		CardID:   rec.CardID,
		From:     from,
		To:       rec.Temperature,
		Score:    rec.Score,
	})
}

// Wait blocks until every dispatched handler has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops accepting events and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
