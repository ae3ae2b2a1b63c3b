package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hearthboard/awards/internal/app/batch"
	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/health"
	"github.com/hearthboard/awards/internal/infra/catalog"
	"github.com/hearthboard/awards/internal/infra/sqlite"
)

var testNow = time.Date(2025, 3, 5, 18, 30, 0, 0, time.UTC)

type testEnv struct {
	srv *Server
	mgr *batch.Manager
	db  *sqlite.DB
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.UpsertActor(context.Background(), sqlite.ActorStats{ID: "kid-1", Balance: 120}); err != nil {
		t.Fatalf("UpsertActor: %v", err)
	}

	cat := catalog.Default()
	mgr := batch.NewManager(batch.DefaultConfig(), batch.Deps{
		Source:      db,
		Catalog:     cat,
		Store:       db,
		Multipliers: db,
		Notifier:    db,
		Clock:       func() time.Time { return testNow },
	})
	t.Cleanup(mgr.Stop)

	return &testEnv{srv: NewServer(mgr, db, cat, nil), mgr: mgr, db: db}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Health & Metrics
// ═══════════════════════════════════════════════════════════════════════════

func TestHealth_NoChecker(t *testing.T) {
	env := newTestServer(t)
	w := do(t, env.srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHealth_WithChecker(t *testing.T) {
	env := newTestServer(t)
	checker := health.NewChecker(env.db, t.TempDir(), catalog.Default(), env.mgr.Pending, 100)
	checker.CheckNow(context.Background())
	env.srv.SetHealth(checker)

	w := do(t, env.srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	decode(t, w, &resp)
	if resp.Status != "ok" || len(resp.Checks) != 4 {
		t.Errorf("health = %+v", resp)
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestServer(t)
	checker := health.NewChecker(env.db, t.TempDir(), catalog.Default(), func() int { return 10 }, 1)
	checker.CheckNow(context.Background())
	env.srv.SetHealth(checker)

	w := do(t, env.srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestMetrics_Disabled(t *testing.T) {
	env := newTestServer(t)
	w := do(t, env.srv.Handler(), "GET", "/metrics", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when metrics are off", w.Code)
	}
}

func TestMetrics_Enabled(t *testing.T) {
	env := newTestServer(t)
	env.srv.EnableMetrics()
	w := do(t, env.srv.Handler(), "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "awards_dirty_actors") {
		t.Error("metrics output should include awards_dirty_actors")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Intake
// ═══════════════════════════════════════════════════════════════════════════

func TestEvents_Accepted(t *testing.T) {
	env := newTestServer(t)
	w := do(t, env.srv.Handler(), "POST", "/api/events", `{"actor_id":"kid-1","kind":"balance_changed"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if env.mgr.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", env.mgr.Pending())
	}
}

func TestEvents_Rejected(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.Handler()

	cases := map[string]string{
		"bad json":     `{"actor_id":`,
		"unknown kind": `{"actor_id":"kid-1","kind":"weather_changed"}`,
		"no actor":     `{"kind":"balance_changed"}`,
	}
	for name, body := range cases {
		w := do(t, h, "POST", "/api/events", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
	if env.mgr.Pending() != 0 {
		t.Errorf("rejected events should not mark actors, Pending() = %d", env.mgr.Pending())
	}
}

func TestEvents_ManagerStopped(t *testing.T) {
	env := newTestServer(t)
	env.mgr.Stop()
	w := do(t, env.srv.Handler(), "POST", "/api/events", `{"actor_id":"kid-1","kind":"task_approved"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestEvents_RateLimited(t *testing.T) {
	env := newTestServer(t)
	env.srv.SetRateLimiter(NewRateLimiter(0.001, 2))
	h := env.srv.Handler()

	body := `{"actor_id":"kid-1","kind":"balance_changed"}`
	for i := 0; i < 2; i++ {
		if w := do(t, h, "POST", "/api/events", body); w.Code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d, want 202", i, w.Code)
		}
	}
	w := do(t, h, "POST", "/api/events", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}

	// Reads are not limited.
	if w := do(t, h, "GET", "/api/awards", ""); w.Code != http.StatusOK {
		t.Errorf("GET /api/awards status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.limiterFor("10.0.0.1")

	now = now.Add(visitorTTL + time.Second)
	rl.cleanup()
	if len(rl.visitors) != 0 {
		t.Errorf("visitors = %d, want 0 after TTL", len(rl.visitors))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Evaluation
// ═══════════════════════════════════════════════════════════════════════════

func TestPreview_NoSideEffects(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.Handler()

	w := do(t, h, "GET", "/api/actors/kid-1/preview", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp previewResponse
	decode(t, w, &resp)

	var century *domain.Verdict
	for i := range resp.Verdicts {
		if resp.Verdicts[i].AwardID == "century" {
			century = &resp.Verdicts[i]
		}
	}
	if century == nil || !century.Earned || !century.Notify {
		t.Fatalf("century verdict = %+v, want earned and notify", century)
	}

	records, _ := env.db.ListProgress(context.Background(), "kid-1")
	if len(records) != 0 {
		t.Errorf("preview persisted %d records, want 0", len(records))
	}
}

func TestPreview_UnknownActor(t *testing.T) {
	env := newTestServer(t)
	w := do(t, env.srv.Handler(), "GET", "/api/actors/ghost/preview", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestFlush_AppliesAndNotifies(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.Handler()

	do(t, h, "POST", "/api/events", `{"actor_id":"kid-1","kind":"balance_changed"}`)
	w := do(t, h, "POST", "/api/flush", "")
	if w.Code != http.StatusOK {
		t.Fatalf("flush status = %d: %s", w.Code, w.Body.String())
	}
	var res batch.FlushResult
	decode(t, w, &res)
	if res.Actors != 1 || res.Applied != 1 || res.Trigger != "manual" {
		t.Errorf("flush result = %+v", res)
	}

	w = do(t, h, "GET", "/api/actors/kid-1/progress", "")
	var progress struct {
		Progress []domain.ProgressRecord `json:"progress"`
	}
	decode(t, w, &progress)
	found := false
	for _, rec := range progress.Progress {
		if rec.AwardID == "century" {
			found = rec.Earned && rec.EarnCount == 1
		}
	}
	if !found {
		t.Errorf("century should be stored as earned, got %+v", progress.Progress)
	}

	w = do(t, h, "GET", "/api/actors/kid-1/notifications?pending=true", "")
	var notes struct {
		Notifications []domain.AwardNotification `json:"notifications"`
	}
	decode(t, w, &notes)
	var centuryNote *domain.AwardNotification
	for i := range notes.Notifications {
		if notes.Notifications[i].AwardID == "century" {
			centuryNote = &notes.Notifications[i]
		}
	}
	if centuryNote == nil || centuryNote.AwardName != "Century" {
		t.Fatalf("century notification = %+v", centuryNote)
	}

	w = do(t, h, "POST", "/api/notifications/"+centuryNote.ID+"/shown", "")
	if w.Code != http.StatusOK {
		t.Fatalf("shown status = %d", w.Code)
	}
	pending, _ := env.db.ListNotifications(context.Background(), "kid-1", true)
	for _, n := range pending {
		if n.ID == centuryNote.ID {
			t.Error("notification should no longer be pending")
		}
	}
}

func TestProgress_EmptyList(t *testing.T) {
	env := newTestServer(t)
	w := do(t, env.srv.Handler(), "GET", "/api/actors/kid-1/progress", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"progress":[]`) {
		t.Errorf("body = %s, want empty progress array", w.Body.String())
	}
}

func TestAwards_ListsCatalog(t *testing.T) {
	env := newTestServer(t)
	w := do(t, env.srv.Handler(), "GET", "/api/awards", "")
	var resp struct {
		Awards []domain.AwardDefinition `json:"awards"`
		Count  int                      `json:"count"`
	}
	decode(t, w, &resp)
	if resp.Count != catalog.Default().Len() || len(resp.Awards) != resp.Count {
		t.Errorf("count = %d, awards = %d, want %d", resp.Count, len(resp.Awards), catalog.Default().Len())
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestServer(t)
	w := do(t, env.srv.Handler(), "OPTIONS", "/api/events", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
