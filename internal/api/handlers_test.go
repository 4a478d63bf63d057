// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/database"
	"github.com/tomtom215/propertypulse/internal/ingest"
	"github.com/tomtom215/propertypulse/internal/models"
)

type stubTracker struct {
	lastTrack     *models.TrackRequest
	lastHeartbeat *models.HeartbeatRequest
	trackErr      error
	heartbeatErr  error
	activeCount   int
}

func (s *stubTracker) Track(_ context.Context, req *models.TrackRequest) (*models.TrackResult, error) {
	s.lastTrack = req
	if s.trackErr != nil {
		return nil, s.trackErr
	}
	return &models.TrackResult{Success: true, TrackedCount: len(req.Events)}, nil
}

func (s *stubTracker) Heartbeat(_ context.Context, req *models.HeartbeatRequest) (*models.HeartbeatResult, error) {
	s.lastHeartbeat = req
	if s.heartbeatErr != nil {
		return nil, s.heartbeatErr
	}
	return &models.HeartbeatResult{Success: true, ActiveVisitors: s.activeCount}, nil
}

type stubEngagement struct {
	scores map[string]*models.EngagementScore
	agents map[string][]*models.EngagementScore
}

func (s *stubEngagement) GetScore(_ context.Context, userID string) (*models.EngagementScore, error) {
	score, ok := s.scores[userID]
	if !ok {
		return nil, fmt.Errorf("engagement score for %s: %w", userID, database.ErrNotFound)
	}
	return score, nil
}

func (s *stubEngagement) GetAgentClientScores(_ context.Context, agentID, _, _ string) ([]*models.EngagementScore, error) {
	return s.agents[agentID], nil
}

type stubStore struct {
	presence     []*models.PresenceRecord
	summary      *models.StatsSummary
	trends       []models.TrendPoint
	journey      []*models.Event
	topItems     []models.TopItem
	pingErr      error
	lastLevel    string
	lastType     string
	lastLimit    int
	lastGran     string
	lastPlatform string
	lastFilters  *models.ActivityFilters
}

func (s *stubStore) GetActiveCount(context.Context, time.Duration) (int, error) {
	return len(s.presence), nil
}

func (s *stubStore) GetActivePresence(context.Context, time.Duration) ([]*models.PresenceRecord, error) {
	return s.presence, nil
}

func (s *stubStore) GetStatsSummary(_ context.Context, _, _ time.Time, platform string) (*models.StatsSummary, error) {
	s.lastPlatform = platform
	if s.summary == nil {
		s.summary = &models.StatsSummary{}
	}
	return s.summary, nil
}

func (s *stubStore) GetTrendPoints(_ context.Context, _, _ time.Time, granularity string) ([]models.TrendPoint, error) {
	s.lastGran = granularity
	return s.trends, nil
}

func (s *stubStore) GetActivityStream(_ context.Context, f *models.ActivityFilters, _ *models.Pagination) ([]*models.Event, error) {
	s.lastFilters = f
	return s.journey, nil
}

func (s *stubStore) GetSessionJourney(context.Context, string) ([]*models.Event, error) {
	return s.journey, nil
}

func (s *stubStore) GetTopContent(_ context.Context, _, _ time.Time, contentType string, limit int) ([]models.TopItem, error) {
	s.lastType = contentType
	s.lastLimit = limit
	return s.topItems, nil
}

func (s *stubStore) GetTrafficSources(_ context.Context, _, _ time.Time, limit int) ([]models.TopItem, error) {
	s.lastLimit = limit
	return s.topItems, nil
}

func (s *stubStore) GetGeographic(_ context.Context, _, _ time.Time, level string, limit int) ([]models.TopItem, error) {
	s.lastLevel = level
	s.lastLimit = limit
	return s.topItems, nil
}

func (s *stubStore) Ping(context.Context) error {
	return s.pingErr
}

type stubCatalog struct {
	labels    map[string]string
	annotated int
}

func (s *stubCatalog) Annotate(_ context.Context, items []models.TopItem) {
	s.annotated++
	for i := range items {
		items[i].Label = s.labels[items[i].Key]
	}
}

func testRouter(tracker *stubTracker, eng *stubEngagement, store *stubStore) http.Handler {
	return testRouterWithCatalog(tracker, eng, store, &stubCatalog{})
}

func testRouterWithCatalog(tracker *stubTracker, eng *stubEngagement, store *stubStore, catalog *stubCatalog) http.Handler {
	cfg := &config.Config{}
	cfg.Server.GlobalRateLimit = 10000
	cfg.API.DefaultPageSize = 50
	cfg.API.MaxPageSize = 500
	cfg.Aggregation.PresenceStaleThreshold = 2 * time.Minute

	return NewRouter(cfg, NewHandler(cfg, tracker, eng, store, catalog)).Setup()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, *models.APIResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:54022"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not a valid envelope: %v (body: %s)", err, rec.Body.String())
	}
	return rec, &envelope
}

func TestTrack_HappyPath(t *testing.T) {
	tracker := &stubTracker{}
	h := testRouter(tracker, &stubEngagement{}, &stubStore{})

	body := `{"session_id":"sess-1","events":[{"event_type":"page_view"},{"event_type":"search"}]}`
	rec, envelope := doJSON(t, h, http.MethodPost, "/api/v1/track", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if envelope.Status != "success" {
		t.Errorf("expected success envelope, got %s", envelope.Status)
	}
	if tracker.lastTrack.RemoteIP != "203.0.113.7" {
		t.Errorf("expected transport-supplied IP, got %q", tracker.lastTrack.RemoteIP)
	}
	if len(tracker.lastTrack.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(tracker.lastTrack.Events))
	}
}

func TestTrack_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid JSON body",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "malformed batch",
			serviceErr: fmt.Errorf("%w: missing session id", ingest.ErrMalformed),
			body:       `{"events":[]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "rate limited",
			serviceErr: ingest.ErrRateLimited,
			body:       `{"session_id":"s","events":[{"event_type":"page_view"}]}`,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   ErrCodeRateLimited,
		},
		{
			name:       "internal failure",
			serviceErr: fmt.Errorf("disk on fire"),
			body:       `{"session_id":"s","events":[{"event_type":"page_view"}]}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &stubTracker{trackErr: tt.serviceErr}
			h := testRouter(tracker, &stubEngagement{}, &stubStore{})

			rec, envelope := doJSON(t, h, http.MethodPost, "/api/v1/track", tt.body)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if envelope.Error == nil || envelope.Error.Code != tt.wantCode {
				t.Errorf("expected error code %s, got %+v", tt.wantCode, envelope.Error)
			}
		})
	}
}

func TestHeartbeat(t *testing.T) {
	tracker := &stubTracker{activeCount: 7}
	h := testRouter(tracker, &stubEngagement{}, &stubStore{})

	rec, envelope := doJSON(t, h, http.MethodPost, "/api/v1/heartbeat",
		`{"session_id":"sess-1","page_path":"/listings/99","session_end":false}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := json.Marshal(envelope.Data)
	var result models.HeartbeatResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected data shape: %v", err)
	}
	if result.ActiveVisitors != 7 {
		t.Errorf("expected 7 active visitors, got %d", result.ActiveVisitors)
	}
	if tracker.lastHeartbeat.SessionID != "sess-1" {
		t.Errorf("heartbeat session not passed through: %+v", tracker.lastHeartbeat)
	}
}

func TestRealtime_AggregatesActivePages(t *testing.T) {
	listings := "/listings/12"
	home := "/"
	store := &stubStore{
		presence: []*models.PresenceRecord{
			{SessionID: "a", PagePath: &listings},
			{SessionID: "b", PagePath: &listings},
			{SessionID: "c", PagePath: &home},
			{SessionID: "d"},
		},
	}
	h := testRouter(&stubTracker{}, &stubEngagement{}, store)

	rec, envelope := doJSON(t, h, http.MethodGet, "/api/v1/dashboard/realtime", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data, _ := json.Marshal(envelope.Data)
	var snapshot models.RealtimeSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("unexpected data shape: %v", err)
	}
	if snapshot.ActiveVisitors != 4 {
		t.Errorf("expected 4 active visitors, got %d", snapshot.ActiveVisitors)
	}
	if len(snapshot.ActivePages) != 2 {
		t.Fatalf("expected 2 active pages, got %d", len(snapshot.ActivePages))
	}
	if snapshot.ActivePages[0].Key != "/listings/12" || snapshot.ActivePages[0].Count != 2 {
		t.Errorf("expected /listings/12 x2 first, got %+v", snapshot.ActivePages[0])
	}
}

func TestStats_RangeValidation(t *testing.T) {
	store := &stubStore{}
	h := testRouter(&stubTracker{}, &stubEngagement{}, store)

	rec, envelope := doJSON(t, h, http.MethodGet, "/api/v1/dashboard/stats?range=6h", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad range, got %d", rec.Code)
	}
	if envelope.Error.Code != ErrCodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", envelope.Error.Code)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/dashboard/stats?range=30d", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for valid range, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/dashboard/stats?platform=smart_fridge", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad platform, got %d", rec.Code)
	}
}

func TestStats_PlatformFilter(t *testing.T) {
	store := &stubStore{}
	h := testRouter(&stubTracker{}, &stubEngagement{}, store)

	// Every platform value sessions are actually stored under must pass
	// validation and reach the store unchanged.
	for _, platform := range []models.Platform{
		models.PlatformWebDesktop,
		models.PlatformWebMobile,
		models.PlatformWebTablet,
		models.PlatformNativeApp,
	} {
		rec, _ := doJSON(t, h, http.MethodGet,
			"/api/v1/dashboard/stats?platform="+string(platform), "")
		if rec.Code != http.StatusOK {
			t.Errorf("platform %s: expected 200, got %d: %s", platform, rec.Code, rec.Body.String())
		}
		if store.lastPlatform != string(platform) {
			t.Errorf("platform %s: store received %q", platform, store.lastPlatform)
		}
	}

	// Omitted platform means no filter.
	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/dashboard/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without platform, got %d", rec.Code)
	}
	if store.lastPlatform != "" {
		t.Errorf("expected empty platform without filter, got %q", store.lastPlatform)
	}

	// Values no session is ever stored under are rejected rather than
	// silently matching zero rows.
	for _, bad := range []string{"web", "mobile_app", "desktop"} {
		rec, envelope := doJSON(t, h, http.MethodGet, "/api/v1/dashboard/stats?platform="+bad, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("platform %s: expected 400, got %d", bad, rec.Code)
		} else if envelope.Error.Code != ErrCodeValidation {
			t.Errorf("platform %s: expected VALIDATION_ERROR, got %s", bad, envelope.Error.Code)
		}
	}
}

func TestTrends_GranularityDefaults(t *testing.T) {
	store := &stubStore{}
	h := testRouter(&stubTracker{}, &stubEngagement{}, store)

	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/dashboard/trends?range=24h", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.lastGran != "hour" {
		t.Errorf("expected hourly granularity for 24h, got %s", store.lastGran)
	}

	doJSON(t, h, http.MethodGet, "/api/v1/dashboard/trends?range=90d", "")
	if store.lastGran != "day" {
		t.Errorf("expected daily granularity for 90d, got %s", store.lastGran)
	}

	doJSON(t, h, http.MethodGet, "/api/v1/dashboard/trends?range=24h&granularity=day", "")
	if store.lastGran != "day" {
		t.Errorf("expected explicit granularity to win, got %s", store.lastGran)
	}
}

func TestActivity_PassesFilters(t *testing.T) {
	store := &stubStore{}
	h := testRouter(&stubTracker{}, &stubEngagement{}, store)

	rec, _ := doJSON(t, h, http.MethodGet,
		"/api/v1/dashboard/activity?event_type=search&property_id=prop-9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.lastFilters.EventType != "search" || store.lastFilters.PropertyID != "prop-9" {
		t.Errorf("filters not passed through: %+v", store.lastFilters)
	}
}

func TestTopContent_Defaults(t *testing.T) {
	store := &stubStore{topItems: []models.TopItem{{Key: "prop-7", Count: 3}}}
	catalog := &stubCatalog{labels: map[string]string{"prop-7": "7 Elm Ave"}}
	h := testRouterWithCatalog(&stubTracker{}, &stubEngagement{}, store, catalog)

	rec, envelope := doJSON(t, h, http.MethodGet, "/api/v1/dashboard/top-content", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.lastType != "properties" {
		t.Errorf("expected default type properties, got %s", store.lastType)
	}
	if store.lastLimit != 10 {
		t.Errorf("expected default limit 10, got %d", store.lastLimit)
	}
	if catalog.annotated != 1 {
		t.Errorf("expected property items annotated once, got %d", catalog.annotated)
	}
	data, _ := json.Marshal(envelope.Data)
	var items []models.TopItem
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unexpected data shape: %v", err)
	}
	if len(items) != 1 || items[0].Label != "7 Elm Ave" {
		t.Errorf("expected labeled items, got %v", items)
	}

	doJSON(t, h, http.MethodGet, "/api/v1/dashboard/top-content?type=pages&limit=25", "")
	if store.lastType != "pages" || store.lastLimit != 25 {
		t.Errorf("expected pages/25, got %s/%d", store.lastType, store.lastLimit)
	}
	if catalog.annotated != 1 {
		t.Errorf("page items must not be annotated, got %d calls", catalog.annotated)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/dashboard/top-content?limit=5000", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized limit, got %d", rec.Code)
	}
}

func TestGeographic_LevelDefault(t *testing.T) {
	store := &stubStore{}
	h := testRouter(&stubTracker{}, &stubEngagement{}, store)

	doJSON(t, h, http.MethodGet, "/api/v1/dashboard/geographic", "")
	if store.lastLevel != "country" {
		t.Errorf("expected default level country, got %s", store.lastLevel)
	}

	doJSON(t, h, http.MethodGet, "/api/v1/dashboard/geographic?level=city", "")
	if store.lastLevel != "city" {
		t.Errorf("expected level city, got %s", store.lastLevel)
	}
}

func TestEngagementScore_Routes(t *testing.T) {
	eng := &stubEngagement{
		scores: map[string]*models.EngagementScore{
			"user-1": {UserID: "user-1", FinalScore: 72.5, Trend: "rising"},
		},
		agents: map[string][]*models.EngagementScore{
			"agent-1": {
				{UserID: "user-1", FinalScore: 72.5},
				{UserID: "user-2", FinalScore: 12.0},
			},
		},
	}
	h := testRouter(&stubTracker{}, eng, &stubStore{})

	rec, envelope := doJSON(t, h, http.MethodGet, "/api/v1/engagement/user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := json.Marshal(envelope.Data)
	var score models.EngagementScore
	if err := json.Unmarshal(data, &score); err != nil {
		t.Fatalf("unexpected data shape: %v", err)
	}
	if score.FinalScore != 72.5 {
		t.Errorf("expected final score 72.5, got %v", score.FinalScore)
	}

	rec, envelope = doJSON(t, h, http.MethodGet, "/api/v1/engagement/nobody", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unscored user, got %d", rec.Code)
	}
	if envelope.Error.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", envelope.Error.Code)
	}

	rec, envelope = doJSON(t, h, http.MethodGet, "/api/v1/engagement/agents/agent-1/clients", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ = json.Marshal(envelope.Data)
	var scores []models.EngagementScore
	if err := json.Unmarshal(data, &scores); err != nil {
		t.Fatalf("unexpected data shape: %v", err)
	}
	if len(scores) != 2 {
		t.Errorf("expected 2 client scores, got %d", len(scores))
	}
}

func TestHealth(t *testing.T) {
	store := &stubStore{}
	h := testRouter(&stubTracker{}, &stubEngagement{}, store)

	rec, _ := doJSON(t, h, http.MethodGet, "/health/live", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected live 200, got %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected ready 200, got %d", rec.Code)
	}

	store.pingErr = fmt.Errorf("database locked")
	rec, envelope := doJSON(t, h, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected ready 503, got %d", rec.Code)
	}
	if envelope.Error.Code != ErrCodeUnavailable {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %s", envelope.Error.Code)
	}
}

func TestSecurityHeadersOnAPIRoutes(t *testing.T) {
	h := testRouter(&stubTracker{}, &stubEngagement{}, &stubStore{})

	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/dashboard/realtime", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff header on API routes, got %q", got)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header on all routes")
	}
}
