// Package session holds the in-memory scoring state of one visitor session
// on one card. A Session is not safe for concurrent use; its owner
// serialises calls.
package session

import (
	"sort"
	"time"

	"card-engagement-api/internal/models"
	"card-engagement-api/internal/scoring"
)

// Session accumulates a visitor's score for a single card page load.
type Session struct {
	CardID    string
	StartedAt time.Time

	actionsTaken map[models.ActionKind]struct{}
	actionLog    []models.ActionKind
	score        int
	visitCount   int
	visitsSeeded bool
}

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	CardID       string
	StartedAt    time.Time
	Score        int
	Temperature  models.Temperature
	VisitCount   int
	ActionsTaken []models.ActionKind
	ActionLog    []models.ActionKind
}

// New creates an empty session for cardID.
func New(cardID string, startedAt time.Time) *Session {
	return &Session{
		CardID:       cardID,
		StartedAt:    startedAt,
		actionsTaken: make(map[models.ActionKind]struct{}),
		visitCount:   1,
	}
}

// Record counts kind at most once per session and returns whether it was
// accepted together with the points it added. Unknown kinds and visit are
// rejected with zero points; repeat visits enter through ApplyVisitCount.
func (s *Session) Record(kind models.ActionKind) (bool, int) {
	if kind == models.ActionVisit || !scoring.IsKnown(kind) {
		return false, 0
	}
	if _, seen := s.actionsTaken[kind]; seen {
		return false, 0
	}

	points := scoring.PointsFor(kind)
	s.actionsTaken[kind] = struct{}{}
	s.actionLog = append(s.actionLog, kind)
	s.score += points
	return true, points
}

// ApplyVisitCount seeds the session with the visit count for this load and
// returns the repeat-visit offset it added. A repeat visit logs a single
// visit entry whatever the count. Only the first call has effect.
func (s *Session) ApplyVisitCount(count int) int {
	if s.visitsSeeded {
		return 0
	}
	s.visitsSeeded = true
	if count < 1 {
		count = 1
	}
	s.visitCount = count

	repeats := count - 1
	if repeats == 0 {
		return 0
	}
	// One visit entry stands for every repeat so the log stays bounded.
	offset := repeats * scoring.VisitPoints
	s.score += offset
	s.actionLog = append(s.actionLog, models.ActionVisit)
	return offset
}

// HasTaken reports whether kind has already been counted.
func (s *Session) HasTaken(kind models.ActionKind) bool {
	_, ok := s.actionsTaken[kind]
	return ok
}

// Score returns the accumulated score.
func (s *Session) Score() int {
	return s.score
}

// Temperature returns the classification of the current score.
func (s *Session) Temperature() models.Temperature {
	return scoring.Classify(s.score)
}

// VisitCount returns the visit count seeded for this load.
func (s *Session) VisitCount() int {
	return s.visitCount
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	taken := make([]models.ActionKind, 0, len(s.actionsTaken))
	for k := range s.actionsTaken {
		taken = append(taken, k)
	}
	sort.Slice(taken, func(i, j int) bool { return taken[i] < taken[j] })

	log := make([]models.ActionKind, len(s.actionLog))
	copy(log, s.actionLog)

	return Snapshot{
		CardID:       s.CardID,
		StartedAt:    s.StartedAt,
		Score:        s.score,
		Temperature:  scoring.Classify(s.score),
		VisitCount:   s.visitCount,
		ActionsTaken: taken,
		ActionLog:    log,
	}
}
