package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"card-engagement-api/internal/database"
	"card-engagement-api/internal/features"
	"card-engagement-api/internal/models"
	"card-engagement-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func setupTestHandler(t *testing.T) (*Handler, func()) {
	dbPath := filepath.Join(t.TempDir(), "handler.db")
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	svc := service.NewService(db)
	h := NewHandlerWithOptions(svc, NewHandlerOptions{
		Features: features.NewDefaultManager(false, false),
	})

	cleanup := func() {
		db.Close()
	}

	return h, cleanup
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeRecord(t *testing.T, rr *httptest.ResponseRecorder) models.EngagementRecord {
	t.Helper()

	var rec models.EngagementRecord
	if err := json.NewDecoder(rr.Body).Decode(&rec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return rec
}

func TestHealthCheck(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, setupRouter(h), "GET", "/health", nil)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", rr.Body.String())
	}
}

func TestCreateEngagement_Success(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	r := setupRouter(h)
	id := uuid.New().String()

	rr := doJSON(t, r, "POST", "/engagements", models.CreateEngagementRequest{
		ID:        id,
		CardID:    "card-1",
		Score:     55,
		ActionLog: []models.ActionKind{models.ActionWalletAdded, models.ActionPhoneClick, models.ActionNFCScan, models.ActionTimeOnCard},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	rec := decodeRecord(t, rr)
	if rec.ID != id {
		t.Errorf("Expected id %s, got %s", id, rec.ID)
	}
	if rec.Temperature != models.TemperatureHot {
		t.Errorf("Expected hot, got %s", rec.Temperature)
	}
}

func TestCreateEngagement_EmptyBody(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/engagements", nil)
	rr := httptest.NewRecorder()
	setupRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestCreateEngagement_InvalidJSON(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/engagements", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	setupRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestCreateEngagement_UnknownAction(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, setupRouter(h), "POST", "/engagements", models.CreateEngagementRequest{
		CardID:    "card-1",
		Score:     5,
		ActionLog: []models.ActionKind{"fax_click"},
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestUpdateEngagement_Flow(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/engagements", models.CreateEngagementRequest{
		CardID:    "card-1",
		Score:     5,
		ActionLog: []models.ActionKind{models.ActionNFCScan},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rr.Code)
	}
	created := decodeRecord(t, rr)

	rr = doJSON(t, r, "PATCH", "/engagements/"+created.ID, models.UpdateEngagementRequest{
		Score:           30,
		ActionLogOffset: 1,
		ActionLog:       []models.ActionKind{models.ActionPhoneClick, models.ActionTimeOnCard},
		ContactFields:   models.ContactFields{Name: "Ada"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	updated := decodeRecord(t, rr)
	if updated.Score != 30 || updated.Temperature != models.TemperatureWarm {
		t.Errorf("Expected warm 30, got %s %d", updated.Temperature, updated.Score)
	}
	if len(updated.ActionLog) != 3 {
		t.Errorf("Expected 3 log entries, got %v", updated.ActionLog)
	}

	rr = doJSON(t, r, "GET", "/engagements/"+created.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if got := decodeRecord(t, rr); got.Name != "Ada" {
		t.Errorf("Expected name Ada, got %q", got.Name)
	}
}

func TestUpdateEngagement_NotFound(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, setupRouter(h), "PATCH", "/engagements/"+uuid.New().String(), models.UpdateEngagementRequest{Score: 5})

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestGetEngagement_InvalidID(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, setupRouter(h), "GET", "/engagements/not-a-uuid", nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestListCardEngagements(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	r := setupRouter(h)
	for _, score := range []int{10, 60, 35} {
		rr := doJSON(t, r, "POST", "/engagements", models.CreateEngagementRequest{CardID: "card-1", Score: score})
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", rr.Code)
		}
	}

	rr := doJSON(t, r, "GET", "/cards/card-1/engagements", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var resp models.ListEngagementsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Engagements) != 3 || resp.Engagements[0].Score != 60 {
		t.Errorf("Expected 3 records led by score 60, got %+v", resp.Engagements)
	}

	rr = doJSON(t, r, "GET", "/cards/card-1/engagements?temperature=hot", nil)
	resp = models.ListEngagementsResponse{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Engagements) != 1 || resp.Engagements[0].Temperature != models.TemperatureHot {
		t.Errorf("Expected one hot record, got %+v", resp.Engagements)
	}
}

func TestListCardEngagements_BadQuery(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	r := setupRouter(h)
	for _, path := range []string{
		"/cards/card-1/engagements?temperature=lukewarm",
		"/cards/card-1/engagements?limit=abc",
		"/cards/card-1/engagements?limit=1000",
	} {
		rr := doJSON(t, r, "GET", path, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, rr.Code)
		}
	}
}

func TestFeatures_ToggleAndList(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	r := setupRouter(h)

	rr := doJSON(t, r, "PUT", "/features/cache_enabled", map[string]bool{"enabled": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "GET", "/features", nil)
	var flags []featureView
	if err := json.NewDecoder(rr.Body).Decode(&flags); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(flags) != 2 || flags[0].Name != features.FeatureCacheEnabled || !flags[0].Enabled {
		t.Errorf("Unexpected flags: %+v", flags)
	}

	rr = doJSON(t, r, "PUT", "/features/nope", map[string]bool{"enabled": true})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	rr = doJSON(t, r, "PUT", "/features/cache_enabled", map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}
