// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { closeQuietly(db) })
	return db
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func timeAt(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func TestUpsertSession_CreateAndMerge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)

	// First upsert creates the row.
	err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID:     "sess-1",
		Platform:      models.PlatformWebDesktop,
		DeviceType:    "desktop",
		Country:       strPtr("US"),
		PageViewDelta: 1,
		SeenAt:        base,
	})
	if err != nil {
		t.Fatalf("initial upsert: %v", err)
	}

	s, err := db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.PageViews != 1 {
		t.Errorf("page views = %d, want 1", s.PageViews)
	}
	if !s.IsBounce {
		t.Error("single page view session should be a bounce")
	}
	if s.UserID != nil {
		t.Errorf("user id = %v, want nil", *s.UserID)
	}

	// Second upsert merges deltas and fills gaps.
	err = db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID:         "sess-1",
		Platform:          models.PlatformWebDesktop,
		DeviceType:        "desktop",
		UserID:            strPtr("user-42"),
		City:              strPtr("Austin"),
		PageViewDelta:     1,
		PropertyViewDelta: 1,
		SearchDelta:       2,
		SeenAt:            base.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("merge upsert: %v", err)
	}

	s, err = db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get merged session: %v", err)
	}
	if s.PageViews != 2 || s.PropertyViews != 1 || s.Searches != 2 {
		t.Errorf("counters = %d/%d/%d, want 2/1/2", s.PageViews, s.PropertyViews, s.Searches)
	}
	if s.IsBounce {
		t.Error("bounce flag should clear once page views exceed 1")
	}
	if s.UserID == nil || *s.UserID != "user-42" {
		t.Error("user id should fill from nil")
	}
	if s.Country == nil || *s.Country != "US" {
		t.Error("country should survive the merge")
	}
	if s.City == nil || *s.City != "Austin" {
		t.Error("city should fill from the second upsert")
	}
	if !s.LastSeen.After(s.FirstSeen) {
		t.Errorf("last_seen %v should advance past first_seen %v", s.LastSeen, s.FirstSeen)
	}
}

func TestUpsertSession_UserIDNeverOverwritten(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	up := &models.SessionUpsert{
		SessionID:  "sess-uid",
		Platform:   models.PlatformWebMobile,
		DeviceType: "mobile",
		UserID:     strPtr("original"),
		SeenAt:     time.Now().UTC(),
	}
	if err := db.UpsertSession(ctx, up); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	up.UserID = strPtr("impostor")
	if err := db.UpsertSession(ctx, up); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	s, err := db.GetSession(ctx, "sess-uid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.UserID == nil || *s.UserID != "original" {
		t.Errorf("user id = %v, want original", s.UserID)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertSession_EmptyID(t *testing.T) {
	db := setupTestDB(t)

	if err := db.UpsertSession(context.Background(), &models.SessionUpsert{}); err == nil {
		t.Error("empty session id should be rejected")
	}
}

func TestInsertEvents_JourneyOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	events := []*models.Event{
		{
			SessionID:  "sess-j",
			EventType:  models.EventTypePropertyView,
			Platform:   models.PlatformWebDesktop,
			PropertyID: strPtr("prop-9"),
			OccurredAt: base.Add(2 * time.Minute),
		},
		{
			SessionID:  "sess-j",
			EventType:  models.EventTypePageView,
			Platform:   models.PlatformWebDesktop,
			PagePath:   strPtr("/home"),
			OccurredAt: base,
			Payload:    map[string]interface{}{"ref": "email"},
		},
		{
			SessionID:   "sess-j",
			EventType:   models.EventTypeSearch,
			Platform:    models.PlatformWebDesktop,
			SearchQuery: strPtr("3 bed austin"),
			OccurredAt:  base.Add(time.Minute),
		},
	}
	if err := db.InsertEvents(ctx, events); err != nil {
		t.Fatalf("insert events: %v", err)
	}

	journey, err := db.GetSessionJourney(ctx, "sess-j")
	if err != nil {
		t.Fatalf("get journey: %v", err)
	}
	if len(journey) != 3 {
		t.Fatalf("journey length = %d, want 3", len(journey))
	}

	// Ordered by the client clock, not insertion order.
	wantTypes := []string{models.EventTypePageView, models.EventTypeSearch, models.EventTypePropertyView}
	for i, want := range wantTypes {
		if journey[i].EventType != want {
			t.Errorf("journey[%d] = %s, want %s", i, journey[i].EventType, want)
		}
	}
	if journey[0].Payload["ref"] != "email" {
		t.Errorf("payload round-trip: got %v", journey[0].Payload)
	}
	if journey[0].ID == "" {
		t.Error("event id should be assigned on insert")
	}
}

func TestGetActivityStream_FiltersAndPagination(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	var batch []*models.Event
	for i := 0; i < 5; i++ {
		batch = append(batch, &models.Event{
			SessionID:  "sess-a",
			EventType:  models.EventTypePageView,
			Platform:   models.PlatformWebDesktop,
			OccurredAt: now,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
		})
	}
	batch = append(batch, &models.Event{
		SessionID:  "sess-b",
		EventType:  models.EventTypeSearch,
		Platform:   models.PlatformWebMobile,
		OccurredAt: now,
		CreatedAt:  now.Add(10 * time.Second),
	})
	if err := db.InsertEvents(ctx, batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	page := &models.Pagination{Page: 1, PageSize: 3}

	got, err := db.GetActivityStream(ctx, &models.ActivityFilters{EventType: models.EventTypePageView}, page)
	if err != nil {
		t.Fatalf("filtered stream: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("page size = %d, want 3", len(got))
	}
	for _, ev := range got {
		if ev.EventType != models.EventTypePageView {
			t.Errorf("filter leaked event type %s", ev.EventType)
		}
	}

	// Newest first.
	all, err := db.GetActivityStream(ctx, nil, &models.Pagination{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("unfiltered stream: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("stream length = %d, want 6", len(all))
	}
	if all[0].EventType != models.EventTypeSearch {
		t.Errorf("first item = %s, want the newest (search)", all[0].EventType)
	}

	// Second page picks up where the first left off.
	page2, err := db.GetActivityStream(ctx, nil, &models.Pagination{Page: 2, PageSize: 4})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 {
		t.Errorf("page 2 length = %d, want 2", len(page2))
	}
}

func TestPresence_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()

	fresh := &models.PresenceRecord{SessionID: "p-fresh", LastHeartbeat: now, PagePath: strPtr("/listings")}
	stale := &models.PresenceRecord{SessionID: "p-stale", LastHeartbeat: now.Add(-5 * time.Minute)}

	for _, p := range []*models.PresenceRecord{fresh, stale} {
		if err := db.UpdatePresence(ctx, p); err != nil {
			t.Fatalf("update presence: %v", err)
		}
	}

	// Only the heartbeat inside the window counts.
	count, err := db.GetActiveCount(ctx, 120*time.Second)
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if count != 1 {
		t.Errorf("active count = %d, want 1", count)
	}

	// Heartbeat replaces the row wholesale.
	if err := db.UpdatePresence(ctx, &models.PresenceRecord{
		SessionID:     "p-fresh",
		LastHeartbeat: now.Add(time.Second),
		PropertyID:    strPtr("prop-1"),
	}); err != nil {
		t.Fatalf("replace presence: %v", err)
	}
	active, err := db.GetActivePresence(ctx, 120*time.Second)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active rows = %d, want 1", len(active))
	}
	if active[0].PagePath != nil {
		t.Error("replaced row should drop the old page path")
	}

	swept, err := db.SweepStalePresence(ctx, 120*time.Second)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	if err := db.RemovePresence(ctx, "p-fresh"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	count, err = db.GetActiveCount(ctx, 120*time.Second)
	if err != nil {
		t.Fatalf("count after remove: %v", err)
	}
	if count != 0 {
		t.Errorf("count after remove = %d, want 0", count)
	}

	// Removing an absent row is not an error.
	if err := db.RemovePresence(ctx, "p-gone"); err != nil {
		t.Errorf("remove absent: %v", err)
	}
}

func TestHourlyAggregate_RoundTripAndExists(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	bucket := timeAt("2026-08-30T14:00:00Z")

	exists, err := db.HourlyAggregateExists(ctx, bucket)
	if err != nil {
		t.Fatalf("exists check: %v", err)
	}
	if exists {
		t.Error("bucket should not exist yet")
	}

	agg := &models.HourlyAggregate{
		BucketStart:    bucket,
		UniqueSessions: 12,
		NewSessions:    8,
		PageViews:      40,
		AvgSessionSecs: 95.5,
		PlatformCounts: map[string]int{"web-desktop": 30, "web-mobile": 10},
		TopPages:       []models.TopItem{{Key: "/home", Count: 15}, {Key: "/listings", Count: 9}},
		TopProperties:  []models.TopItem{{Key: "prop-1", Count: 7}},
	}
	if err := db.InsertHourlyAggregate(ctx, agg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	exists, err = db.HourlyAggregateExists(ctx, bucket)
	if err != nil {
		t.Fatalf("exists after insert: %v", err)
	}
	if !exists {
		t.Error("bucket should exist after insert")
	}

	// A duplicate insert violates the primary key rather than overwriting.
	if err := db.InsertHourlyAggregate(ctx, agg); err == nil {
		t.Error("duplicate bucket insert should fail")
	}

	rows, err := db.GetHourlyAggregates(ctx, bucket, bucket.Add(time.Hour))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	got := rows[0]
	if got.UniqueSessions != 12 || got.PageViews != 40 {
		t.Errorf("scalars = %d/%d, want 12/40", got.UniqueSessions, got.PageViews)
	}
	if got.PlatformCounts["web-desktop"] != 30 {
		t.Errorf("platform counts = %v", got.PlatformCounts)
	}
	if len(got.TopPages) != 2 || got.TopPages[0].Key != "/home" {
		t.Errorf("top pages = %v", got.TopPages)
	}
	if got.DeviceCounts == nil || got.TopSearches == nil {
		t.Error("empty breakdowns should decode as empty containers, not nil")
	}
}

func TestDailyAggregate_ChangePct(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	day := timeAt("2026-08-30T00:00:00Z")

	agg := &models.DailyAggregate{
		BucketDate:         day,
		UniqueSessions:     100,
		PageViews:          500,
		SessionsChangePct:  f64Ptr(25.0),
		PageViewsChangePct: f64Ptr(100.0),
	}
	if err := db.InsertDailyAggregate(ctx, agg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.GetDailyAggregate(ctx, day)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionsChangePct == nil || *got.SessionsChangePct != 25.0 {
		t.Errorf("sessions change pct = %v, want 25", got.SessionsChangePct)
	}

	// A row without a prior baseline stores null change.
	day2 := timeAt("2026-08-31T00:00:00Z")
	if err := db.InsertDailyAggregate(ctx, &models.DailyAggregate{BucketDate: day2}); err != nil {
		t.Fatalf("insert nil pct: %v", err)
	}
	got, err = db.GetDailyAggregate(ctx, day2)
	if err != nil {
		t.Fatalf("get nil pct: %v", err)
	}
	if got.SessionsChangePct != nil {
		t.Errorf("change pct = %v, want nil", *got.SessionsChangePct)
	}

	if _, err := db.GetDailyAggregate(ctx, timeAt("2020-01-01T00:00:00Z")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing day err = %v, want ErrNotFound", err)
	}
}

func TestWindowRollup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	from, to := now, now.Add(time.Hour)
	in := now.Add(10 * time.Minute)

	// Two sessions inside the window, one bounce, one bot (excluded).
	sessions := []*models.SessionUpsert{
		{SessionID: "w-1", Platform: models.PlatformWebDesktop, DeviceType: "desktop",
			Country: strPtr("US"), City: strPtr("Austin"), Referrer: strPtr("google.com"),
			PageViewDelta: 3, SeenAt: in},
		{SessionID: "w-2", Platform: models.PlatformWebMobile, DeviceType: "mobile",
			Country: strPtr("US"), City: strPtr("Dallas"),
			PageViewDelta: 1, SeenAt: in},
	}
	for _, up := range sessions {
		if err := db.UpsertSession(ctx, up); err != nil {
			t.Fatalf("upsert %s: %v", up.SessionID, err)
		}
	}

	events := []*models.Event{
		{SessionID: "w-1", EventType: models.EventTypePageView, Platform: models.PlatformWebDesktop,
			PagePath: strPtr("/home"), ScrollDepth: f64Ptr(80), OccurredAt: in, CreatedAt: in},
		{SessionID: "w-1", EventType: models.EventTypePageView, Platform: models.PlatformWebDesktop,
			PagePath: strPtr("/home"), ScrollDepth: f64Ptr(40), OccurredAt: in, CreatedAt: in},
		{SessionID: "w-1", EventType: models.EventTypePropertyView, Platform: models.PlatformWebDesktop,
			PropertyID: strPtr("prop-1"), OccurredAt: in, CreatedAt: in},
		{SessionID: "w-2", EventType: models.EventTypeSearch, Platform: models.PlatformWebMobile,
			SearchQuery: strPtr("condo"), OccurredAt: in, CreatedAt: in},
	}
	if err := db.InsertEvents(ctx, events); err != nil {
		t.Fatalf("insert events: %v", err)
	}

	scalars, err := db.GetWindowScalars(ctx, from, to)
	if err != nil {
		t.Fatalf("scalars: %v", err)
	}
	if scalars.UniqueSessions != 2 {
		t.Errorf("unique sessions = %d, want 2", scalars.UniqueSessions)
	}
	if scalars.NewSessions != 2 || scalars.ReturningSessions != 0 {
		t.Errorf("new/returning = %d/%d, want 2/0", scalars.NewSessions, scalars.ReturningSessions)
	}
	if scalars.PageViews != 2 || scalars.PropertyViews != 1 || scalars.Searches != 1 {
		t.Errorf("event counts = %d/%d/%d, want 2/1/1",
			scalars.PageViews, scalars.PropertyViews, scalars.Searches)
	}
	if scalars.BounceCount != 1 {
		t.Errorf("bounce count = %d, want 1", scalars.BounceCount)
	}
	if scalars.AvgScrollDepth != 60 {
		t.Errorf("avg scroll depth = %v, want 60", scalars.AvgScrollDepth)
	}

	platforms, devices, countries, referrers, err := db.GetWindowBreakdowns(ctx, from, to)
	if err != nil {
		t.Fatalf("breakdowns: %v", err)
	}
	if platforms["web-desktop"] != 3 || platforms["web-mobile"] != 1 {
		t.Errorf("platforms = %v", platforms)
	}
	if devices["desktop"] != 1 || devices["mobile"] != 1 {
		t.Errorf("devices = %v", devices)
	}
	if countries["US"] != 2 {
		t.Errorf("countries = %v", countries)
	}
	if referrers["google.com"] != 1 {
		t.Errorf("referrers = %v", referrers)
	}

	cities, pages, properties, searches, err := db.GetWindowTopN(ctx, from, to, models.HourlyTopN)
	if err != nil {
		t.Fatalf("top-n: %v", err)
	}
	if len(cities) != 2 {
		t.Errorf("cities = %v", cities)
	}
	if len(pages) != 1 || pages[0].Key != "/home" || pages[0].Count != 2 {
		t.Errorf("pages = %v", pages)
	}
	if len(properties) != 1 || properties[0].Key != "prop-1" {
		t.Errorf("properties = %v", properties)
	}
	if len(searches) != 1 || searches[0].Key != "condo" {
		t.Errorf("searches = %v", searches)
	}
}

func TestEngagementScores(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)

	score := &models.EngagementScore{
		UserID:         "user-1",
		TimeScore:      20,
		ViewScore:      15,
		SearchScore:    10,
		IntentScore:    12,
		FrequencyScore: 8,
		BaseScore:      65,
		FinalScore:     61.75,
		Trend:          models.TrendStable,
		ComputedAt:     now,
	}
	if err := db.UpsertEngagementScore(ctx, score); err != nil {
		t.Fatalf("upsert score: %v", err)
	}

	got, err := db.GetEngagementScore(ctx, "user-1")
	if err != nil {
		t.Fatalf("get score: %v", err)
	}
	if got.FinalScore != 61.75 || got.Trend != models.TrendStable {
		t.Errorf("score = %+v", got)
	}

	// Replacement is wholesale.
	score.FinalScore = 70
	score.Trend = models.TrendRising
	if err := db.UpsertEngagementScore(ctx, score); err != nil {
		t.Fatalf("replace score: %v", err)
	}
	got, err = db.GetEngagementScore(ctx, "user-1")
	if err != nil {
		t.Fatalf("get replaced: %v", err)
	}
	if got.FinalScore != 70 || got.Trend != models.TrendRising {
		t.Errorf("replaced score = %+v", got)
	}

	if _, err := db.GetEngagementScore(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing score err = %v, want ErrNotFound", err)
	}
}

func TestGetAgentClientScores(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()

	clients := []*models.Client{
		{UserID: "c-high", AgentID: "agent-1", Active: true},
		{UserID: "c-low", AgentID: "agent-1", Active: true},
		{UserID: "c-inactive", AgentID: "agent-1", Active: false},
		{UserID: "c-other", AgentID: "agent-2", Active: true},
	}
	for _, c := range clients {
		if err := db.UpsertClient(ctx, c); err != nil {
			t.Fatalf("upsert client %s: %v", c.UserID, err)
		}
	}
	for user, final := range map[string]float64{
		"c-high": 90, "c-low": 20, "c-inactive": 50, "c-other": 75,
	} {
		if err := db.UpsertEngagementScore(ctx, &models.EngagementScore{
			UserID: user, FinalScore: final, Trend: models.TrendStable, ComputedAt: now,
		}); err != nil {
			t.Fatalf("upsert score %s: %v", user, err)
		}
	}

	scores, err := db.GetAgentClientScores(ctx, "agent-1", "final_score", "desc")
	if err != nil {
		t.Fatalf("get agent scores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("scores = %d, want 2 (inactive and other-agent excluded)", len(scores))
	}
	if scores[0].UserID != "c-high" || scores[1].UserID != "c-low" {
		t.Errorf("order = %s, %s; want c-high, c-low", scores[0].UserID, scores[1].UserID)
	}

	// Unknown sort columns fall back to final_score rather than erroring.
	asc, err := db.GetAgentClientScores(ctx, "agent-1", "bogus_column", "asc")
	if err != nil {
		t.Fatalf("bogus sort column: %v", err)
	}
	if len(asc) != 2 || asc[0].UserID != "c-low" {
		t.Errorf("asc order = %v, want c-low first", asc)
	}
}

func TestIsActiveClient(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertClient(ctx, &models.Client{UserID: "u-a", AgentID: "ag", Active: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertClient(ctx, &models.Client{UserID: "u-b", AgentID: "ag", Active: false}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cases := []struct {
		user string
		want bool
	}{
		{"u-a", true},
		{"u-b", false},
		{"u-missing", false},
	}
	for _, tc := range cases {
		got, err := db.IsActiveClient(ctx, tc.user)
		if err != nil {
			t.Fatalf("IsActiveClient(%s): %v", tc.user, err)
		}
		if got != tc.want {
			t.Errorf("IsActiveClient(%s) = %v, want %v", tc.user, got, tc.want)
		}
	}
}

func TestGetActivitySummary(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	sessStart := now.Add(-30 * time.Minute)

	if err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID: "as-1", Platform: models.PlatformWebDesktop, DeviceType: "desktop",
		UserID: strPtr("buyer-1"), PageViewDelta: 1, SeenAt: sessStart,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID: "as-1", Platform: models.PlatformWebDesktop, DeviceType: "desktop",
		PageViewDelta: 1, SeenAt: now,
	}); err != nil {
		t.Fatalf("extend session: %v", err)
	}

	events := []*models.Event{
		{SessionID: "as-1", EventType: models.EventTypePropertyView, Platform: models.PlatformWebDesktop,
			PropertyID: strPtr("prop-1"), OccurredAt: sessStart, CreatedAt: sessStart},
		{SessionID: "as-1", EventType: models.EventTypePhotoView, Platform: models.PlatformWebDesktop,
			PropertyID: strPtr("prop-1"), OccurredAt: sessStart.Add(2 * time.Minute), CreatedAt: sessStart},
		{SessionID: "as-1", EventType: models.EventTypePropertyView, Platform: models.PlatformWebDesktop,
			PropertyID: strPtr("prop-2"), OccurredAt: sessStart.Add(3 * time.Minute), CreatedAt: sessStart},
		{SessionID: "as-1", EventType: models.EventTypeFavorite, Platform: models.PlatformWebDesktop,
			PropertyID: strPtr("prop-2"), OccurredAt: sessStart.Add(4 * time.Minute), CreatedAt: sessStart},
		{SessionID: "as-1", EventType: models.EventTypeCalculatorUse, Platform: models.PlatformWebDesktop,
			OccurredAt: sessStart.Add(5 * time.Minute), CreatedAt: sessStart},
	}
	if err := db.InsertEvents(ctx, events); err != nil {
		t.Fatalf("insert events: %v", err)
	}

	sum, err := db.GetActivitySummary(ctx, "buyer-1", 30*24*time.Hour, 7)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.UniqueProperties != 2 {
		t.Errorf("unique properties = %d, want 2", sum.UniqueProperties)
	}
	if sum.PhotoViews != 1 || sum.Favorites != 1 {
		t.Errorf("photo/favorites = %d/%d, want 1/1", sum.PhotoViews, sum.Favorites)
	}
	if !sum.CalculatorUse {
		t.Error("calculator use should be flagged")
	}
	if sum.SchoolInfoViews || sum.ShowingRequests {
		t.Error("absent activity should not be flagged")
	}
	if sum.RecentSessions7d != 1 {
		t.Errorf("recent sessions = %d, want 1", sum.RecentSessions7d)
	}
	if sum.SessionMinutes < 29 || sum.SessionMinutes > 31 {
		t.Errorf("session minutes = %v, want ~30", sum.SessionMinutes)
	}
	// prop-1 dwell runs to the photo view 2 minutes later; prop-2 dwell
	// runs to the favorite 1 minute later.
	if sum.DetailMinutes < 2.9 || sum.DetailMinutes > 3.1 {
		t.Errorf("detail minutes = %v, want ~3", sum.DetailMinutes)
	}
	if sum.LastActivity == nil || sum.DaysSinceActivity != 0 {
		t.Errorf("last activity = %v, days = %d", sum.LastActivity, sum.DaysSinceActivity)
	}

	// No sessions for the user yields an empty summary, not an error.
	empty, err := db.GetActivitySummary(ctx, "stranger", 30*24*time.Hour, 7)
	if err != nil {
		t.Fatalf("empty summary: %v", err)
	}
	if empty.LastActivity != nil || empty.SessionMinutes != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestGeolocationCache(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	geo := &models.Geolocation{
		Country: strPtr("GB"),
		City:    strPtr("London"),
		Source:  models.GeoSourceMMDB,
	}
	if err := db.UpsertGeolocation(ctx, "hash-1", geo); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetGeolocation(ctx, "hash-1", time.Hour)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Country == nil || *got.Country != "GB" {
		t.Fatalf("got = %+v", got)
	}
	if got.Source != models.GeoSourceCache {
		t.Errorf("source = %s, want cache", got.Source)
	}

	// Expired entries read as a miss.
	expired, err := db.GetGeolocation(ctx, "hash-1", 0)
	if err != nil {
		t.Fatalf("expired get: %v", err)
	}
	if expired != nil {
		t.Errorf("expired entry should read as nil, got %+v", expired)
	}

	miss, err := db.GetGeolocation(ctx, "hash-none", time.Hour)
	if err != nil {
		t.Fatalf("miss get: %v", err)
	}
	if miss != nil {
		t.Errorf("missing hash should be nil, got %+v", miss)
	}
}

func TestListings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	price := int64(450000)
	if err := db.UpsertListing(ctx, "prop-1", "12 Oak St", &price); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertListing(ctx, "prop-1", "12 Oak Street", &price); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	labels, err := db.GetListingLabels(ctx, []string{"prop-1", "prop-unknown"})
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if labels["prop-1"] != "12 Oak Street" {
		t.Errorf("label = %q, want refreshed address", labels["prop-1"])
	}
	if _, ok := labels["prop-unknown"]; ok {
		t.Error("unknown key should be absent")
	}

	empty, err := db.GetListingLabels(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty keys: %v, %v", empty, err)
	}
}

func TestRetentionDeletes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	var batch []*models.Event
	for i := 0; i < 5; i++ {
		batch = append(batch, &models.Event{
			SessionID: "old-sess", EventType: models.EventTypePageView,
			Platform: models.PlatformWebDesktop, OccurredAt: old, CreatedAt: old,
		})
	}
	batch = append(batch, &models.Event{
		SessionID: "new-sess", EventType: models.EventTypePageView,
		Platform: models.PlatformWebDesktop, OccurredAt: now, CreatedAt: now,
	})
	if err := db.InsertEvents(ctx, batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cutoff := now.AddDate(0, 0, -30)

	// Batch limit caps one pass; a follow-up drains the rest.
	deleted, err := db.DeleteEventsBefore(ctx, cutoff, 3)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if deleted != 3 {
		t.Errorf("first pass deleted = %d, want 3", deleted)
	}
	deleted, err = db.DeleteEventsBefore(ctx, cutoff, 3)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if deleted != 2 {
		t.Errorf("second pass deleted = %d, want 2", deleted)
	}

	remaining, err := db.GetActivityStream(ctx, nil, &models.Pagination{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(remaining) != 1 || remaining[0].SessionID != "new-sess" {
		t.Errorf("remaining = %v", remaining)
	}

	// Session retention keys off last_seen.
	if err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID: "old-sess", Platform: models.PlatformWebDesktop,
		DeviceType: "desktop", SeenAt: old,
	}); err != nil {
		t.Fatalf("old session: %v", err)
	}
	if err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID: "new-sess", Platform: models.PlatformWebDesktop,
		DeviceType: "desktop", SeenAt: now,
	}); err != nil {
		t.Fatalf("new session: %v", err)
	}

	deletedSessions, err := db.DeleteSessionsBefore(ctx, cutoff, 100)
	if err != nil {
		t.Fatalf("delete sessions: %v", err)
	}
	if deletedSessions != 1 {
		t.Errorf("deleted sessions = %d, want 1", deletedSessions)
	}
	if _, err := db.GetSession(ctx, "new-sess"); err != nil {
		t.Errorf("new session should survive: %v", err)
	}
}

func TestStatsSummary(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	in := now.Add(5 * time.Minute)
	from, to := now, now.Add(time.Hour)

	if err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID: "st-1", Platform: models.PlatformWebDesktop, DeviceType: "desktop",
		PageViewDelta: 2, SeenAt: in,
	}); err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := db.InsertEvents(ctx, []*models.Event{
		{SessionID: "st-1", EventType: models.EventTypePageView, Platform: models.PlatformWebDesktop,
			OccurredAt: in, CreatedAt: in},
		{SessionID: "st-1", EventType: models.EventTypePageView, Platform: models.PlatformWebDesktop,
			OccurredAt: in, CreatedAt: in},
	}); err != nil {
		t.Fatalf("events: %v", err)
	}

	s, err := db.GetStatsSummary(ctx, from, to, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.UniqueSessions != 1 || s.PageViews != 2 {
		t.Errorf("stats = %+v", s)
	}
	if s.PlatformCounts["web-desktop"] != 2 {
		t.Errorf("platform counts = %v", s.PlatformCounts)
	}

	// Platform filter that matches nothing.
	s, err = db.GetStatsSummary(ctx, from, to, string(models.PlatformNativeApp))
	if err != nil {
		t.Fatalf("filtered stats: %v", err)
	}
	if s.UniqueSessions != 0 || s.PageViews != 0 {
		t.Errorf("filtered stats = %+v", s)
	}
}

func TestTrendPoints(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	h1 := timeAt("2026-08-30T10:00:00Z")
	h2 := timeAt("2026-08-30T11:00:00Z")

	if err := db.InsertEvents(ctx, []*models.Event{
		{SessionID: "t-1", EventType: models.EventTypePageView, Platform: models.PlatformWebDesktop,
			OccurredAt: h1, CreatedAt: h1.Add(time.Minute)},
		{SessionID: "t-1", EventType: models.EventTypeSearch, Platform: models.PlatformWebDesktop,
			OccurredAt: h1, CreatedAt: h1.Add(2 * time.Minute)},
		{SessionID: "t-2", EventType: models.EventTypePageView, Platform: models.PlatformWebDesktop,
			OccurredAt: h2, CreatedAt: h2.Add(time.Minute)},
	}); err != nil {
		t.Fatalf("events: %v", err)
	}

	points, err := db.GetTrendPoints(ctx, h1, h2.Add(time.Hour), "hour")
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if !points[0].Bucket.Equal(h1) || points[0].PageViews != 1 || points[0].Searches != 1 {
		t.Errorf("point 0 = %+v", points[0])
	}
	if points[1].Sessions != 1 {
		t.Errorf("point 1 = %+v", points[1])
	}

	daily, err := db.GetTrendPoints(ctx, h1, h2.Add(time.Hour), "day")
	if err != nil {
		t.Fatalf("daily trends: %v", err)
	}
	if len(daily) != 1 || daily[0].PageViews != 2 {
		t.Errorf("daily = %+v", daily)
	}
}

func TestTopContentAndSources(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	in := now.Add(time.Minute)
	from, to := now, now.Add(time.Hour)

	if err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID: "tc-1", Platform: models.PlatformWebDesktop, DeviceType: "desktop",
		Country: strPtr("US"), Region: strPtr("TX"), City: strPtr("Austin"), SeenAt: in,
	}); err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := db.UpsertSession(ctx, &models.SessionUpsert{
		SessionID: "tc-2", Platform: models.PlatformWebDesktop, DeviceType: "desktop",
		Referrer: strPtr("zillow.com"), SeenAt: in,
	}); err != nil {
		t.Fatalf("session: %v", err)
	}
	price := int64(300000)
	if err := db.UpsertListing(ctx, "prop-7", "7 Elm Ave", &price); err != nil {
		t.Fatalf("listing: %v", err)
	}
	if err := db.InsertEvents(ctx, []*models.Event{
		{SessionID: "tc-1", EventType: models.EventTypePropertyView, Platform: models.PlatformWebDesktop,
			PropertyID: strPtr("prop-7"), OccurredAt: in, CreatedAt: in},
		{SessionID: "tc-1", EventType: models.EventTypePropertyView, Platform: models.PlatformWebDesktop,
			PropertyID: strPtr("prop-8"), OccurredAt: in, CreatedAt: in},
	}); err != nil {
		t.Fatalf("events: %v", err)
	}

	props, err := db.GetTopContent(ctx, from, to, "properties", 10)
	if err != nil {
		t.Fatalf("top properties: %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("props = %v", props)
	}
	keys := map[string]bool{}
	for _, p := range props {
		keys[p.Key] = true
		if p.Label != "" {
			t.Errorf("top content returns raw keys, got label %q", p.Label)
		}
	}
	if !keys["prop-7"] || !keys["prop-8"] {
		t.Errorf("props = %v", props)
	}

	labels, err := db.GetListingLabels(ctx, []string{"prop-7", "prop-8"})
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if labels["prop-7"] != "7 Elm Ave" {
		t.Errorf("labels = %v", labels)
	}
	if _, ok := labels["prop-8"]; ok {
		t.Errorf("unexpected label for unknown listing: %v", labels)
	}

	sources, err := db.GetTrafficSources(ctx, from, to, 10)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	byKey := map[string]int{}
	for _, s := range sources {
		byKey[s.Key] = s.Count
	}
	if byKey["zillow.com"] != 1 || byKey["(direct)"] != 1 {
		t.Errorf("sources = %v", sources)
	}

	geo, err := db.GetGeographic(ctx, from, to, "city", 10)
	if err != nil {
		t.Fatalf("geographic: %v", err)
	}
	if len(geo) != 1 || geo[0].Key != "Austin" {
		t.Errorf("geo = %v", geo)
	}
}
