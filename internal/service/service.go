package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"card-engagement-api/internal/cache"
	"card-engagement-api/internal/database"
	"card-engagement-api/internal/events"
	"card-engagement-api/internal/features"
	"card-engagement-api/internal/logger"
	"card-engagement-api/internal/models"
	"card-engagement-api/internal/scoring"
	"card-engagement-api/internal/tracing"
	"card-engagement-api/internal/validation"
)

// Options holds the optional collaborators of a Service.
type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	Events   *events.Manager
	Features *features.Manager
	Tracer   *tracing.Tracer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service provides business logic for engagement records.
type Service struct {
	db       *database.DB
	cache    cache.Cache
	cacheTTL time.Duration
	events   *events.Manager
	features *features.Manager
	tracer   *tracing.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new service instance without cache or events.
func NewService(db *database.DB) *Service {
	return NewServiceWithOptions(db, Options{})
}

// NewServiceWithOptions creates a new service instance with collaborators.
func NewServiceWithOptions(db *database.DB, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Events == nil {
		opts.Events = events.NewManager(false, nil)
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}

	return &Service{
		db:       db,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		events:   opts.Events,
		features: opts.Features,
		tracer:   opts.Tracer,
		logger:   logger.OrDiscard(opts.Logger),
		now:      opts.Now,
	}
}

// CreateEngagement creates a record, or replays a create for an id that
// already exists (a retried create from a client that lost the response).
func (s *Service) CreateEngagement(ctx context.Context, req models.CreateEngagementRequest) (models.EngagementRecord, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.CreateEngagement")
	defer span.End()

	req.ContactFields = validation.SanitizeContact(req.ContactFields)
	if err := validation.ValidateCreate(req); err != nil {
		return models.EngagementRecord{}, err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	span.SetAttributes(attribute.String("engagement.id", req.ID), attribute.String("card.id", req.CardID))

	previous, err := s.db.GetEngagement(ctx, req.ID)
	existed := err == nil
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return models.EngagementRecord{}, s.fail(span, fmt.Errorf("failed to load engagement: %w", err))
	}
	if existed && previous.CardID != req.CardID {
		return models.EngagementRecord{}, &validation.ValidationError{
			Field:   "id",
			Message: "already belongs to another card",
		}
	}

	err = s.db.UpsertEngagement(ctx, models.EngagementRecord{
		ID:            req.ID,
		CardID:        req.CardID,
		ContactFields: req.ContactFields,
		Score:         req.Score,
		ActionLog:     req.ActionLog,
	}, s.now())
	if err != nil {
		return models.EngagementRecord{}, s.fail(span, err)
	}

	rec, err := s.db.GetEngagement(ctx, req.ID)
	if err != nil {
		return models.EngagementRecord{}, s.fail(span, fmt.Errorf("failed to reload engagement: %w", err))
	}
	rec = withTemperature(rec)
	s.invalidate(ctx, rec.ID)

	from := models.TemperatureCold
	if existed {
		from = scoring.Classify(previous.Score)
	}
	if s.hooksEnabled() {
		if existed {
			s.events.PublishEngagementUpdated(ctx, rec)
		} else {
			s.events.PublishEngagementCreated(ctx, rec)
		}
		s.publishTemperature(ctx, rec, from)
	}

	logger.WithRecord(logger.WithCard(s.logger, rec.CardID), rec.ID).Info("engagement created",
		slog.Int("score", rec.Score),
		slog.String("temperature", string(rec.Temperature)),
		slog.Bool("replayed", existed),
	)
	return rec, nil
}

// UpdateEngagement applies a cumulative score, an action log delta and a
// contact merge to an existing record.
func (s *Service) UpdateEngagement(ctx context.Context, id string, req models.UpdateEngagementRequest) (models.EngagementRecord, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.UpdateEngagement")
	defer span.End()
	span.SetAttributes(attribute.String("engagement.id", id))

	if err := validation.ValidateUUID(id, "id"); err != nil {
		return models.EngagementRecord{}, err
	}
	req.ContactFields = validation.SanitizeContact(req.ContactFields)
	if err := validation.ValidateUpdate(req); err != nil {
		return models.EngagementRecord{}, err
	}

	previous, err := s.db.GetEngagement(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.EngagementRecord{}, err
		}
		return models.EngagementRecord{}, s.fail(span, fmt.Errorf("failed to load engagement: %w", err))
	}

	rec, err := s.db.UpdateEngagement(ctx, id, req, s.now())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.EngagementRecord{}, err
		}
		return models.EngagementRecord{}, s.fail(span, err)
	}
	rec = withTemperature(rec)
	s.invalidate(ctx, id)

	if s.hooksEnabled() {
		s.events.PublishEngagementUpdated(ctx, rec)
		s.publishTemperature(ctx, rec, scoring.Classify(previous.Score))
	}

	logger.WithRecord(logger.WithCard(s.logger, rec.CardID), rec.ID).Info("engagement updated",
		slog.Int("score", rec.Score),
		slog.String("temperature", string(rec.Temperature)),
		slog.Int("log_delta", len(req.ActionLog)),
	)
	return rec, nil
}

// GetEngagement returns a record with its derived temperature.
func (s *Service) GetEngagement(ctx context.Context, id string) (models.EngagementRecord, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.GetEngagement")
	defer span.End()

	if err := validation.ValidateUUID(id, "id"); err != nil {
		return models.EngagementRecord{}, err
	}

	useCache := s.cache != nil && s.features.IsEnabled(features.FeatureCacheEnabled)
	if useCache {
		var cached models.EngagementRecord
		err := cache.GetJSON(ctx, s.cache, cache.EngagementKey(id), &cached)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return withTemperature(cached), nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("engagement cache read failed", slog.String("error", err.Error()))
		}
	}

	rec, err := s.db.GetEngagement(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.EngagementRecord{}, err
		}
		return models.EngagementRecord{}, s.fail(span, err)
	}
	rec = withTemperature(rec)

	if useCache {
		if err := cache.SetJSON(ctx, s.cache, cache.EngagementKey(id), rec, s.cacheTTL); err != nil {
			s.logger.Warn("engagement cache write failed", slog.String("error", err.Error()))
		}
	}
	return rec, nil
}

// ListEngagements returns a card's records ordered by follow-up priority,
// optionally restricted to one temperature band.
func (s *Service) ListEngagements(ctx context.Context, cardID string, temperature models.Temperature, limit int) (models.ListEngagementsResponse, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.ListEngagements")
	defer span.End()

	if err := validation.ValidateCardID(cardID); err != nil {
		return models.ListEngagementsResponse{}, err
	}
	limit, err := validation.ValidateLimit(limit)
	if err != nil {
		return models.ListEngagementsResponse{}, err
	}

	minScore, maxScore := math.MinInt32, math.MaxInt32
	if temperature != "" {
		minScore, maxScore = scoring.ScoreRange(temperature)
	}

	records, err := s.db.ListByCard(ctx, cardID, minScore, maxScore, limit)
	if err != nil {
		return models.ListEngagementsResponse{}, s.fail(span, err)
	}

	out := make([]models.EngagementRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, withTemperature(rec))
	}
	return models.ListEngagementsResponse{CardID: cardID, Engagements: out}, nil
}

// hooksEnabled reports whether events are published. Without a flag
// manager the event manager's own switch decides.
func (s *Service) hooksEnabled() bool {
	return s.features == nil || s.features.IsEnabled(features.FeatureEventHooksEnabled)
}

func (s *Service) publishTemperature(ctx context.Context, rec models.EngagementRecord, from models.Temperature) {
	if from != rec.Temperature {
		s.events.PublishTemperatureChanged(ctx, rec, from)
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.EngagementKey(id)); err != nil {
		s.logger.Warn("engagement cache invalidation failed", slog.String("error", err.Error()))
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error("engagement storage error", slog.String("error", err.Error()))
	return err
}

// withTemperature derives the temperature from the stored score.
func withTemperature(rec models.EngagementRecord) models.EngagementRecord {
	rec.Temperature = scoring.Classify(rec.Score)
	if rec.ActionLog == nil {
		rec.ActionLog = []models.ActionKind{}
	}
	return rec
}
