// Package syncer reconciles a visitor session's local score with its remote
// engagement record.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"card-engagement-api/internal/logger"
	"card-engagement-api/internal/models"
	"card-engagement-api/internal/session"
)

// Remote is the persistence endpoint for engagement records.
type Remote interface {
	CreateEngagement(ctx context.Context, req models.CreateEngagementRequest) (models.EngagementRecord, error)
	UpdateEngagement(ctx context.Context, id string, req models.UpdateEngagementRequest) (models.EngagementRecord, error)
}

// Synchronizer pushes the cumulative state of one session to a Remote.
// Calls are serialised; every call sends the state it is given, so the
// latest call wins.
type Synchronizer struct {
	remote Remote
	logger *slog.Logger

	mu        sync.Mutex
	recordID  string
	created   bool
	syncedLog int

	// contact holds every field submitted so far. pending is set until the
	// remote has acknowledged the latest merge.
	contact models.ContactFields
	pending bool
}

// New creates a synchronizer with no known remote record.
func New(remote Remote, l *slog.Logger) *Synchronizer {
	return &Synchronizer{remote: remote, logger: logger.OrDiscard(l)}
}

// RecordID returns the remote record id, or "" if none has been created.
func (s *Synchronizer) RecordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		return ""
	}
	return s.recordID
}

// Sync creates the remote record on the first qualifying call and updates
// it afterwards. With no record yet, a zero score and no contact fields it
// does nothing and returns a zero record. On failure the local cursor is
// not advanced, so the next call resends everything the remote is missing,
// contact fields included.
func (s *Synchronizer) Sync(ctx context.Context, snap session.Snapshot, contact *models.ContactFields) (models.EngagementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if contact != nil && !contact.IsEmpty() {
		s.contact = s.contact.Merge(*contact)
		s.pending = true
	}

	if !s.created {
		return s.create(ctx, snap)
	}
	return s.update(ctx, snap)
}

// Contact returns the merged contact fields and whether the remote has yet
// to acknowledge them.
func (s *Synchronizer) Contact() (models.ContactFields, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.contact, s.pending
}

func (s *Synchronizer) create(ctx context.Context, snap session.Snapshot) (models.EngagementRecord, error) {
	if snap.Score == 0 && s.contact.IsEmpty() {
		return models.EngagementRecord{}, nil
	}
	if s.recordID == "" {
		s.recordID = uuid.New().String()
	}
	log := logger.WithRecord(logger.WithCard(s.logger, snap.CardID), s.recordID)

	rec, err := s.remote.CreateEngagement(ctx, models.CreateEngagementRequest{
		ID:            s.recordID,
		CardID:        snap.CardID,
		ContactFields: s.contact,
		Score:         snap.Score,
		ActionLog:     snap.ActionLog,
	})
	if err != nil {
		log.Warn("engagement create failed", slog.Int("score", snap.Score), slog.String("error", err.Error()))
		return models.EngagementRecord{}, fmt.Errorf("create engagement: %w", err)
	}

	if rec.ID != "" {
		s.recordID = rec.ID
	}
	s.created = true
	s.syncedLog = len(snap.ActionLog)
	s.pending = false
	log.Debug("engagement created", slog.Int("score", snap.Score))
	return rec, nil
}

func (s *Synchronizer) update(ctx context.Context, snap session.Snapshot) (models.EngagementRecord, error) {
	log := logger.WithRecord(logger.WithCard(s.logger, snap.CardID), s.recordID)

	offset := s.syncedLog
	if offset > len(snap.ActionLog) {
		offset = len(snap.ActionLog)
	}
	req := models.UpdateEngagementRequest{
		Score:           snap.Score,
		ActionLogOffset: offset,
		ActionLog:       snap.ActionLog[offset:],
	}
	if s.pending {
		// Empty fields are ignored by the remote merge.
		req.ContactFields = s.contact
	}

	rec, err := s.remote.UpdateEngagement(ctx, s.recordID, req)
	if err != nil {
		log.Warn("engagement update failed", slog.Int("score", snap.Score), slog.String("error", err.Error()))
		return models.EngagementRecord{}, fmt.Errorf("update engagement %s: %w", s.recordID, err)
	}

	s.syncedLog = len(snap.ActionLog)
	s.pending = false
	log.Debug("engagement updated", slog.Int("score", snap.Score), slog.Int("log_delta", len(req.ActionLog)))
	return rec, nil
}
