package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"card-engagement-api/internal/database"
	"card-engagement-api/internal/features"
	"card-engagement-api/internal/logger"
	"card-engagement-api/internal/models"
	"card-engagement-api/internal/scoring"
	"card-engagement-api/internal/service"
	"card-engagement-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	features    *features.Manager
	logger      *slog.Logger
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	Features    *features.Manager
	Logger      *slog.Logger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		service:     svc,
		features:    opts.Features,
		logger:      logger.OrDiscard(opts.Logger),
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts the engagement endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/engagements", h.CreateEngagement)
	r.Get("/engagements/{id}", h.GetEngagement)
	r.Patch("/engagements/{id}", h.UpdateEngagement)
	r.Get("/cards/{card_id}/engagements", h.ListCardEngagements)
	if h.features != nil {
		r.Get("/features", h.ListFeatures)
		r.Put("/features/{name}", h.SetFeature)
	}
}

// CreateEngagement handles POST /engagements
func (h *Handler) CreateEngagement(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEngagementRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.ID = validation.SanitizeString(req.ID)
	req.CardID = validation.SanitizeString(req.CardID)

	rec, err := h.service.CreateEngagement(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, rec)
}

// UpdateEngagement handles PATCH /engagements/{id}
func (h *Handler) UpdateEngagement(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))

	var req models.UpdateEngagementRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.service.UpdateEngagement(r.Context(), id, req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// GetEngagement handles GET /engagements/{id}
func (h *Handler) GetEngagement(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))

	rec, err := h.service.GetEngagement(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// ListCardEngagements handles GET /cards/{card_id}/engagements
func (h *Handler) ListCardEngagements(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid 'limit' parameter, must be an integer")
			return
		}
		limit = parsed
	}

	var temperature models.Temperature
	if raw := query.Get("temperature"); raw != "" {
		parsed, ok := scoring.ParseTemperature(validation.SanitizeString(raw))
		if !ok {
			h.respondError(w, http.StatusBadRequest, "invalid 'temperature' parameter, must be cold, warm or hot")
			return
		}
		temperature = parsed
	}

	response, err := h.service.ListEngagements(r.Context(), cardID, temperature, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

type featureView struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// ListFeatures handles GET /features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	all := h.features.List()
	out := make([]featureView, 0, len(all))
	for _, f := range all {
		out = append(out, newFeatureView(f))
	}

	h.respondJSON(w, http.StatusOK, out)
}

// SetFeature handles PUT /features/{name}
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := validation.SanitizeString(chi.URLParam(r, "name"))
	if _, ok := h.features.Lookup(name); !ok {
		h.respondError(w, http.StatusNotFound, "unknown feature")
		return
	}

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		h.respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	f, ok := h.features.Set(name, *req.Enabled)
	if !ok {
		h.respondError(w, http.StatusNotFound, "unknown feature")
		return
	}
	h.logger.Info("feature toggled", slog.String("feature", name), slog.Bool("enabled", f.Enabled))

	h.respondJSON(w, http.StatusOK, newFeatureView(f))
}

func newFeatureView(f features.Flag) featureView {
	return featureView{Name: f.Name, Enabled: f.Enabled, Description: f.Description}
}

// decode reads a size-limited JSON body into dest, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var vErr *validation.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.respondError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, database.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "engagement not found")
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
