// Package tracker owns the scoring state of one visitor session on a card
// page and wires the dwell monitor, the visit counter and the
// synchronizer around it.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"card-engagement-api/internal/dwell"
	"card-engagement-api/internal/logger"
	"card-engagement-api/internal/models"
	"card-engagement-api/internal/session"
	"card-engagement-api/internal/syncer"
	"card-engagement-api/internal/visits"
)

// Options configures a Tracker.
type Options struct {
	CardID string
	// HasConsent gates every timer, storage access and network call.
	HasConsent bool

	// Visits counts page loads; nil disables repeat-visit scoring.
	Visits *visits.Counter
	// Sync persists the score; nil keeps the session local.
	Sync *syncer.Synchronizer
	// AutoSync pushes the score in the background after each accepted action.
	AutoSync bool

	Dwell dwell.Config

	Logger *slog.Logger
	Now    func() time.Time
}

// Tracker is the per-session scoring engine. It is safe for concurrent
// use; mutations are applied in the order they acquire the tracker.
type Tracker struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	sess    *session.Session
	monitor *dwell.Monitor
	started bool
	closed  bool

	syncMu   sync.Mutex
	inflight sync.WaitGroup
}

// New creates a tracker. Nothing runs until Start.
func New(opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dwell == (dwell.Config{}) {
		opts.Dwell = dwell.DefaultConfig()
	}
	l := logger.WithCard(logger.OrDiscard(opts.Logger), opts.CardID)

	return &Tracker{
		opts:   opts,
		logger: l,
		sess:   session.New(opts.CardID, opts.Now()),
	}
}

// Start registers the visit, applies the repeat-visit offset and starts the
// dwell monitor, which runs until Close or until ctx is done. It returns
// the visit count for this load. Without consent it does nothing and
// returns 0.
func (t *Tracker) Start(ctx context.Context) int {
	if !t.opts.HasConsent {
		return 0
	}

	t.mu.Lock()
	if t.started || t.closed {
		count := t.sess.VisitCount()
		t.mu.Unlock()
		return count
	}
	t.started = true
	t.mu.Unlock()

	count := 1
	if t.opts.Visits != nil {
		count = t.opts.Visits.RegisterVisit(ctx, t.opts.CardID)
	}

	t.mu.Lock()
	offset := t.sess.ApplyVisitCount(count)
	t.monitor = dwell.NewMonitor(t.opts.Dwell, func() { t.Record(models.ActionTimeOnCard) })
	monitor := t.monitor
	t.mu.Unlock()

	monitor.Start(ctx)

	t.logger.Info("session started", slog.Int("visit_count", count), slog.Int("visit_offset", offset))
	if offset > 0 {
		t.autoSync()
	}
	return count
}

// Record applies a visitor action and reports whether it was counted.
func (t *Tracker) Record(kind models.ActionKind) bool {
	if !t.opts.HasConsent {
		return false
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	accepted, points := t.sess.Record(kind)
	score := t.sess.Score()
	t.mu.Unlock()

	if !accepted {
		t.logger.Debug("action ignored", slog.String("action", string(kind)))
		return false
	}

	t.logger.Info("action scored",
		slog.String("action", string(kind)),
		slog.Int("points", points),
		slog.Int("score", score),
	)
	t.autoSync()
	return true
}

// SubmitContact records contact_added and synchronously persists the
// supplied details with the current score. After Close it does nothing.
func (t *Tracker) SubmitContact(ctx context.Context, contact models.ContactFields) (models.EngagementRecord, error) {
	if !t.opts.HasConsent {
		return models.EngagementRecord{}, nil
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.EngagementRecord{}, nil
	}
	t.sess.Record(models.ActionContactAdded)
	t.mu.Unlock()

	return t.Sync(ctx, &contact)
}

// Sync persists the current state and waits for the result. Without consent
// or a synchronizer it returns a zero record.
func (t *Tracker) Sync(ctx context.Context, contact *models.ContactFields) (models.EngagementRecord, error) {
	if !t.opts.HasConsent || t.opts.Sync == nil {
		return models.EngagementRecord{}, nil
	}

	t.syncMu.Lock()
	defer t.syncMu.Unlock()

	// Taken after syncMu so a queued sync always sends the freshest state.
	snap := t.Snapshot()
	return t.opts.Sync.Sync(ctx, snap, contact)
}

// SyncAsync persists the current state in the background. Failures are
// logged; a result arriving after Close is discarded.
func (t *Tracker) SyncAsync(contact *models.ContactFields) {
	if !t.opts.HasConsent || t.opts.Sync == nil {
		return
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()

		rec, err := t.Sync(context.Background(), contact)

		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()

		switch {
		case closed:
			t.logger.Debug("sync result discarded after close", slog.String("record_id", rec.ID))
		case err != nil:
			t.logger.Warn("background sync failed", slog.String("error", err.Error()))
		}
	}()
}

func (t *Tracker) autoSync() {
	if t.opts.AutoSync {
		t.SyncAsync(nil)
	}
}

// Score returns the accumulated score.
func (t *Tracker) Score() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess.Score()
}

// Temperature returns the current classification.
func (t *Tracker) Temperature() models.Temperature {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess.Temperature()
}

// Snapshot copies the session state.
func (t *Tracker) Snapshot() session.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess.Snapshot()
}

// DwellState reports the dwell monitor state; idle when it never started.
func (t *Tracker) DwellState() dwell.State {
	t.mu.Lock()
	m := t.monitor
	t.mu.Unlock()

	if m == nil {
		return dwell.StateIdle
	}
	return m.State()
}

// Close stops the dwell monitor. Later actions are ignored. In-flight
// syncs still complete but their results are discarded.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	m := t.monitor
	t.mu.Unlock()

	// The bonus callback takes t.mu, so the monitor is stopped unlocked.
	if m != nil {
		m.Stop()
	}
	t.logger.Info("session closed", slog.Int("score", t.Score()))
}

// Wait blocks until every background sync has returned.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}
