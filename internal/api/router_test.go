package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/budgetsync/internal/connectivity"
	"github.com/dvloznov/budgetsync/internal/dataaccess"
	"github.com/dvloznov/budgetsync/internal/jobs/inmemory"
	"github.com/dvloznov/budgetsync/internal/localstore"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/dvloznov/budgetsync/internal/report"
	"github.com/rs/zerolog"
)

const (
	testUser  = "user-1"
	testToken = "secret"
)

type testServer struct {
	handler http.Handler
	remote  *remote.MemoryStore
	jobs    *inmemory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rs := remote.NewMemoryStore()
	session, err := dataaccess.NewSession(
		dataaccess.Options{UserID: testUser, Mode: dataaccess.ModeCacheThrough},
		dataaccess.Deps{
			Local:   localstore.NewMemoryStore(),
			Remote:  rs,
			Monitor: connectivity.NewMonitor(true, nil, zerolog.Nop()),
			Logger:  zerolog.Nop(),
		},
	)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, 1, jobStore)
	t.Cleanup(func() { _ = queue.Close() })

	svc := report.NewService(nil, report.NewMemoryHistory(), 0, zerolog.Nop())
	h := NewRouter(Deps{
		UserID:    testUser,
		Ledger:    session,
		Sync:      session.Manager(),
		Reports:   svc,
		Publisher: queue,
		Jobs:      jobStore,
		Token:     testToken,
		Now:       func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) },
		Logger:    zerolog.Nop(),
	})
	return &testServer{handler: h, remote: rs, jobs: jobStore}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "health is open", path: "/health", want: http.StatusOK},
		{name: "missing token", path: "/api/transactions", want: http.StatusUnauthorized},
		{name: "wrong token", path: "/api/transactions", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", path: "/api/transactions", header: "Bearer " + testToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestTransactionsRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"amount": "12.50", "type": "expense", "category": "Food",
		"date": "2025-06-10T09:00:00Z", "title": "market",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]any](t, rec)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created transaction has no id: %v", created)
	}
	if len(s.remote.Ops()) != 1 {
		t.Errorf("remote ops = %d, want 1", len(s.remote.Ops()))
	}

	rec = s.do(t, http.MethodGet, "/api/transactions?start_date=2025-06-01&end_date=2025-06-10", nil)
	if list := decodeBody[[]map[string]any](t, rec); len(list) != 1 {
		t.Fatalf("list = %v, want one transaction", list)
	}
	rec = s.do(t, http.MethodGet, "/api/transactions?start_date=2025-06-11", nil)
	if list := decodeBody[[]map[string]any](t, rec); len(list) != 0 {
		t.Fatalf("filtered list = %v, want empty", list)
	}
	if rec := s.do(t, http.MethodGet, "/api/transactions?start_date=June", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rec.Code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "update", method: http.MethodPut, path: "/api/transactions/" + id,
			body: map[string]any{"amount": 20, "type": "expense", "category": "Food", "date": "2025-06-10T09:00:00Z"}, want: http.StatusOK},
		{name: "update missing", method: http.MethodPut, path: "/api/transactions/nope",
			body: map[string]any{"amount": 20, "type": "expense", "category": "Food", "date": "2025-06-10T09:00:00Z"}, want: http.StatusNotFound},
		{name: "invalid kind", method: http.MethodPost, path: "/api/transactions",
			body: map[string]any{"amount": 1, "type": "gift", "category": "Food", "date": "2025-06-10T09:00:00Z"}, want: http.StatusBadRequest},
		{name: "negative amount", method: http.MethodPost, path: "/api/transactions",
			body: map[string]any{"amount": -1, "type": "expense", "category": "Food", "date": "2025-06-10T09:00:00Z"}, want: http.StatusBadRequest},
		{name: "not json", method: http.MethodPost, path: "/api/transactions", body: "x", want: http.StatusBadRequest},
		{name: "delete", method: http.MethodDelete, path: "/api/transactions/" + id, want: http.StatusNoContent},
		{name: "wrong method", method: http.MethodPatch, path: "/api/transactions", want: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestBudgetGoalCategoryRoutes(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodPut, "/api/budgets/Food", map[string]any{"limit": 300}); rec.Code != http.StatusOK {
		t.Fatalf("put budget = %d %s", rec.Code, rec.Body.String())
	}
	if list := decodeBody[[]map[string]any](t, s.do(t, http.MethodGet, "/api/budgets", nil)); len(list) != 1 {
		t.Fatalf("budgets = %v", list)
	}
	if rec := s.do(t, http.MethodPut, "/api/budgets/Food", map[string]any{"limit": -1}); rec.Code != http.StatusOK {
		t.Fatalf("sentinel budget = %d", rec.Code)
	}
	if list := decodeBody[[]map[string]any](t, s.do(t, http.MethodGet, "/api/budgets", nil)); len(list) != 0 {
		t.Fatalf("budgets after sentinel = %v, want empty", list)
	}

	rec := s.do(t, http.MethodPost, "/api/goals", map[string]any{"name": "Bike", "targetAmount": 500})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create goal = %d %s", rec.Code, rec.Body.String())
	}
	goalID, _ := decodeBody[map[string]any](t, rec)["id"].(string)
	if rec := s.do(t, http.MethodPost, "/api/goals/"+goalID+"/contributions", map[string]any{"amount": 0}); rec.Code != http.StatusBadRequest {
		t.Errorf("zero contribution = %d, want 400", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/goals/"+goalID+"/contributions", map[string]any{"amount": 50})
	if got := decodeBody[map[string]any](t, rec)["currentAmount"]; got != "50" {
		t.Errorf("currentAmount = %v, want \"50\"", got)
	}

	if rec := s.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Pets"}); rec.Code != http.StatusCreated {
		t.Fatalf("create category = %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "pets"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate category = %d, want 409", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/categories/unknown", nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete unknown category = %d, want 404", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard = %d", rec.Code)
	}
	if d := decodeBody[map[string]any](t, rec); d["stats"] == nil {
		t.Errorf("dashboard missing stats: %v", d)
	}
}

func TestSyncRoutes(t *testing.T) {
	s := newTestServer(t)
	s.remote.FailNext(remote.ErrPermissionDenied)

	rec := s.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"amount": 5, "type": "expense", "category": "Food", "date": "2025-06-10T09:00:00Z",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("rejected write = %d, want 409: %s", rec.Code, rec.Body.String())
	}

	st := decodeBody[map[string]any](t, s.do(t, http.MethodGet, "/api/sync/status", nil))
	if st["pending"] != float64(1) || st["head"] == nil {
		t.Fatalf("status = %v, want one stuck action", st)
	}

	rec = s.do(t, http.MethodPost, "/api/sync/drop-head", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("drop-head = %d %s", rec.Code, rec.Body.String())
	}
	deadID, _ := decodeBody[map[string]any](t, rec)["deadId"].(string)

	dl := decodeBody[map[string]any](t, s.do(t, http.MethodGet, "/api/sync/dead-letters", nil))
	if dl["count"] != float64(1) {
		t.Fatalf("dead letters = %v", dl)
	}
	if rec := s.do(t, http.MethodPost, "/api/sync/drop-head", nil); rec.Code != http.StatusNotFound {
		t.Errorf("drop-head on empty queue = %d, want 404", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, "/api/sync/dead-letters/"+deadID+"/requeue", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("requeue = %d %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[map[string]any](t, s.do(t, http.MethodPost, "/api/sync/drain", nil))
	if _, failed := res["error"]; failed {
		t.Fatalf("drain after requeue failed: %v", res)
	}
	st = decodeBody[map[string]any](t, s.do(t, http.MethodGet, "/api/sync/status", nil))
	if st["pending"] != float64(0) {
		t.Errorf("pending after drain = %v", st["pending"])
	}
}

func TestReportRoutes(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodPost, "/api/reports", map[string]any{"consent": false}); rec.Code != http.StatusForbidden {
		t.Errorf("no consent = %d, want 403", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/reports", map[string]any{"consent": true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create report = %d %s", rec.Code, rec.Body.String())
	}
	jobID := decodeBody[map[string]string](t, rec)["job_id"]

	rec = s.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get job = %d", rec.Code)
	}
	if job := decodeBody[map[string]any](t, rec); job["user_id"] != testUser || job["status"] != "pending" {
		t.Errorf("job = %v", job)
	}
	if rec := s.do(t, http.MethodGet, "/api/jobs/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing job = %d, want 404", rec.Code)
	}

	list := decodeBody[[]any](t, s.do(t, http.MethodGet, "/api/reports", nil))
	if len(list) != 0 {
		t.Errorf("reports = %v, want empty", list)
	}
}
