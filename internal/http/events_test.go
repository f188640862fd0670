package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"gitea.jw6.us/james/almanac/internal/auth"
	"gitea.jw6.us/james/almanac/internal/recur"
	"gitea.jw6.us/james/almanac/internal/store"
)

type fakeEventRepo struct {
	events map[string]store.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]store.Event)}
}

func (f *fakeEventRepo) Create(ctx context.Context, event store.Event) (*store.Event, error) {
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	f.events[event.ID] = event
	return &event, nil
}

func (f *fakeEventRepo) Update(ctx context.Context, event store.Event) (*store.Event, error) {
	existing, ok := f.events[event.ID]
	if !ok || existing.UserID != event.UserID {
		return nil, store.ErrNotFound
	}
	event.CreatedAt = existing.CreatedAt
	event.UpdatedAt = time.Now()
	f.events[event.ID] = event
	return &event, nil
}

func (f *fakeEventRepo) GetByID(ctx context.Context, userID int64, id string) (*store.Event, error) {
	event, ok := f.events[id]
	if !ok || event.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &event, nil
}

func (f *fakeEventRepo) Delete(ctx context.Context, userID int64, id string) error {
	event, ok := f.events[id]
	if !ok || event.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.events, id)
	return nil
}

func (f *fakeEventRepo) ListForWindow(ctx context.Context, userID int64, from, to time.Time) ([]store.Event, error) {
	var out []store.Event
	for _, event := range f.events {
		if event.UserID != userID {
			continue
		}
		if event.StartAt.After(to) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

// testServer mounts the API behind a middleware that injects a fixed user,
// standing in for session auth.
func testServer(t *testing.T, repo *fakeEventRepo) *httptest.Server {
	t.Helper()

	cache := recur.NewCache(recur.DefaultCacheConfig)
	t.Cleanup(cache.Close)

	api := NewAPI(&store.Store{Events: repo}, cache, recur.DefaultOptions, slog.Default())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithUser(req.Context(), &store.User{ID: 1, PrimaryEmail: "user@example.com"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/event", api.List)
	r.Get("/api/event/{id}", api.Get)
	r.Post("/api/event", api.Create)
	r.Put("/api/event", api.Update)
	r.Delete("/api/event", api.Delete)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func seedEvent(repo *fakeEventRepo, id string, start time.Time, rule recur.Rule) {
	repo.events[id] = store.Event{
		ID:         id,
		UserID:     1,
		Title:      "Seeded",
		StartAt:    start,
		EndAt:      start.Add(time.Hour),
		Recurrence: rule,
	}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func TestListReturnsStoredEvents(t *testing.T) {
	repo := newFakeEventRepo()
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	seedEvent(repo, "evt-1", start, recur.None())
	srv := testServer(t, repo)

	url := fmt.Sprintf("%s/api/event?startDate=%s&endDate=%s", srv.URL,
		"2024-03-01T00:00:00Z", "2024-03-31T00:00:00Z")
	resp := doJSON(t, http.MethodGet, url, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	events := decodeData[[]eventView](t, resp)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID != "evt-1" || events[0].Frequency != recur.FreqNone {
		t.Errorf("unexpected event payload: %+v", events[0])
	}
}

func TestListExpandReturnsOccurrences(t *testing.T) {
	repo := newFakeEventRepo()
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC) // a Monday
	rule := recur.Normalize(recur.Rule{
		Frequency: recur.FreqWeekly,
		Days:      []recur.Weekday{recur.Monday},
	})
	seedEvent(repo, "evt-1", start, rule)
	srv := testServer(t, repo)

	url := fmt.Sprintf("%s/api/event?startDate=%s&endDate=%s&expand=true", srv.URL,
		"2024-03-01T00:00:00Z", "2024-03-31T23:59:59Z")
	resp := doJSON(t, http.MethodGet, url, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	occs := decodeData[[]recur.Occurrence](t, resp)
	if len(occs) != 4 {
		t.Fatalf("expected 4 Mondays in window, got %d", len(occs))
	}
	for i, occ := range occs {
		if occ.EventID != "evt-1" || occ.Sequence != i {
			t.Errorf("occurrence %d: %+v", i, occ)
		}
	}
}

func TestListRequiresWindow(t *testing.T) {
	srv := testServer(t, newFakeEventRepo())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/event", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateNormalizesRule(t *testing.T) {
	repo := newFakeEventRepo()
	srv := testServer(t, repo)

	form := map[string]any{
		"title":                "Standup",
		"start_date":           "2024-03-04T09:00:00Z",
		"end_date":             "2024-03-04T09:15:00Z",
		"recurrence_frequency": "weekly",
		"recurrence_days":      []int{3, 1, 1},
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/event", form)

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decodeData[eventView](t, resp)
	if created.ID == "" {
		t.Fatal("expected a generated id")
	}
	// Days must come back deduplicated and sorted, interval defaulted.
	if created.Interval != 1 {
		t.Errorf("interval = %d", created.Interval)
	}
	if len(created.Days) != 2 || created.Days[0] != 1 || created.Days[1] != 3 {
		t.Errorf("days = %v", created.Days)
	}

	stored, ok := repo.events[created.ID]
	if !ok {
		t.Fatal("event not persisted")
	}
	if !stored.Recurrence.IsRecurring() {
		t.Error("persisted rule lost recurrence")
	}
}

func TestCreateRejectsInvalidRule(t *testing.T) {
	srv := testServer(t, newFakeEventRepo())

	form := map[string]any{
		"title":                "Broken",
		"start_date":           "2024-03-04T09:00:00Z",
		"end_date":             "2024-03-04T08:00:00Z", // ends before it starts
		"recurrence_frequency": "weekly",               // no day set
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/event", form)

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var envelope struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := envelope.Fields["end_date"]; !ok {
		t.Errorf("missing end_date violation: %v", envelope.Fields)
	}
	if _, ok := envelope.Fields["recurrence_days"]; !ok {
		t.Errorf("missing recurrence_days violation: %v", envelope.Fields)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	srv := testServer(t, newFakeEventRepo())

	form := map[string]any{
		"title":                "",
		"start_date":           "2024-03-04T09:00:00Z",
		"end_date":             "2024-03-04T10:00:00Z",
		"recurrence_frequency": "none",
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/event", form)

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGetUnknownEvent(t *testing.T) {
	srv := testServer(t, newFakeEventRepo())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/event/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestUpdateUnknownEvent(t *testing.T) {
	srv := testServer(t, newFakeEventRepo())

	form := map[string]any{
		"id":                   "missing",
		"title":                "Whatever",
		"start_date":           "2024-03-04T09:00:00Z",
		"end_date":             "2024-03-04T10:00:00Z",
		"recurrence_frequency": "none",
	}
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/event", form)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDeleteEvent(t *testing.T) {
	repo := newFakeEventRepo()
	seedEvent(repo, "evt-1", time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC), recur.None())
	srv := testServer(t, repo)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/event", map[string]string{"id": "evt-1"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(repo.events) != 0 {
		t.Error("event not deleted")
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/event", map[string]string{"id": "evt-1"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}
