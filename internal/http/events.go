package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gitea.jw6.us/james/almanac/internal/auth"
	httperrors "gitea.jw6.us/james/almanac/internal/http/errors"
	"gitea.jw6.us/james/almanac/internal/ics"
	"gitea.jw6.us/james/almanac/internal/metrics"
	"gitea.jw6.us/james/almanac/internal/recur"
	"gitea.jw6.us/james/almanac/internal/store"
)

// API serves the JSON event endpoints consumed by the SPA.
type API struct {
	store  *store.Store
	cache  *recur.Cache
	opts   recur.Options
	logger *slog.Logger
}

func NewAPI(st *store.Store, cache *recur.Cache, opts recur.Options, logger *slog.Logger) *API {
	return &API{store: st, cache: cache, opts: opts, logger: logger}
}

// eventView is the wire shape of a stored event. The embedded Params inline
// the flat recurrence_* fields next to the event columns.
type eventView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsAllDay    bool      `json:"is_all_day"`
	Location    *string   `json:"location,omitempty"`
	Color       *string   `json:"color,omitempty"`
	UserID      int64     `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	recur.Params
}

func viewOf(e *store.Event) eventView {
	return eventView{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		StartDate:   e.StartAt,
		EndDate:     e.EndAt,
		IsAllDay:    e.AllDay,
		Location:    e.Location,
		Color:       e.Color,
		UserID:      e.UserID,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		Params:      recur.ParamsOf(e.Recurrence),
	}
}

// eventForm is the unvalidated input shape shared by create and update.
type eventForm struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsAllDay    bool      `json:"is_all_day"`
	Location    *string   `json:"location,omitempty"`
	Color       *string   `json:"color,omitempty"`
	recur.Params
}

// List handles GET /api/event. Without expand it returns the stored events
// whose series can reach the window; with expand=true it returns the merged,
// ordered occurrences instead.
func (a *API) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	from, err := parseTimeParam(r, "startDate")
	if err != nil {
		httperrors.BadRequest(w, r, err, "invalid startDate")
		return
	}
	to, err := parseTimeParam(r, "endDate")
	if err != nil {
		httperrors.BadRequest(w, r, err, "invalid endDate")
		return
	}

	events, err := a.store.Events.ListForWindow(ctx, user.ID, from, to)
	if err != nil {
		httperrors.Internal(w, r, err, "list events")
		return
	}

	if r.URL.Query().Get("expand") != "true" {
		views := make([]eventView, 0, len(events))
		for i := range events {
			views = append(views, viewOf(&events[i]))
		}
		httperrors.Data(w, http.StatusOK, views)
		return
	}

	engineEvents := make([]recur.Event, 0, len(events))
	for i := range events {
		engineEvents = append(engineEvents, events[i].EngineEvent())
	}

	started := time.Now()
	occs, err := a.cache.Query(ctx, engineEvents, recur.Window{From: from, To: to}, a.opts)
	if err != nil {
		var qerr *recur.QueryError
		switch {
		case errors.Is(err, recur.ErrExpansionBounded):
			metrics.ObserveExpansion("bounded", started)
			httperrors.Error(w, http.StatusUnprocessableEntity, "window produces too many occurrences")
		case errors.As(err, &qerr):
			metrics.ObserveExpansion("invalid", started)
			a.logger.Error("expansion failed for stored event", "event_id", qerr.EventID, "error", err)
			httperrors.Internal(w, r, err, "expand events")
		default:
			httperrors.Internal(w, r, err, "expand events")
		}
		return
	}
	metrics.ObserveExpansion("ok", started)

	httperrors.Data(w, http.StatusOK, occs)
}

// Get handles GET /api/event/{id}.
func (a *API) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	event, err := a.store.Events.GetByID(ctx, user.ID, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httperrors.NotFound(w)
		return
	}
	if err != nil {
		httperrors.Internal(w, r, err, "get event")
		return
	}
	httperrors.Data(w, http.StatusOK, viewOf(event))
}

// Create handles POST /api/event.
func (a *API) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	var form eventForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		httperrors.BadRequest(w, r, err, "invalid request body")
		return
	}

	event, fields := a.eventFromForm(user.ID, &form)
	if len(fields) > 0 {
		httperrors.Validation(w, fields)
		return
	}
	event.ID = uuid.NewString()

	created, err := a.store.Events.Create(ctx, *event)
	if err != nil {
		httperrors.Internal(w, r, err, "create event")
		return
	}

	a.logger.Info("event created", "event_id", created.ID, "user_id", user.ID)
	httperrors.Data(w, http.StatusCreated, viewOf(created))
}

// Update handles PUT /api/event.
func (a *API) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	var form eventForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		httperrors.BadRequest(w, r, err, "invalid request body")
		return
	}
	if form.ID == "" {
		httperrors.BadRequest(w, r, errors.New("missing id"), "id is required")
		return
	}

	event, fields := a.eventFromForm(user.ID, &form)
	if len(fields) > 0 {
		httperrors.Validation(w, fields)
		return
	}
	event.ID = form.ID

	updated, err := a.store.Events.Update(ctx, *event)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.NotFound(w)
		return
	}
	if err != nil {
		httperrors.Internal(w, r, err, "update event")
		return
	}

	a.logger.Info("event updated", "event_id", updated.ID, "user_id", user.ID)
	httperrors.Data(w, http.StatusOK, viewOf(updated))
}

// Delete handles DELETE /api/event with a {"id": ...} body.
func (a *API) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		httperrors.BadRequest(w, r, err, "id is required")
		return
	}

	err := a.store.Events.Delete(ctx, user.ID, body.ID)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.NotFound(w)
		return
	}
	if err != nil {
		httperrors.Internal(w, r, err, "delete event")
		return
	}

	a.logger.Info("event deleted", "event_id", body.ID, "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Feed handles GET /api/calendar.ics with a one year lookback and lookahead.
func (a *API) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	now := time.Now().UTC()
	events, err := a.store.Events.ListForWindow(ctx, user.ID, now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0))
	if err != nil {
		httperrors.Internal(w, r, err, "list events for feed")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="almanac.ics"`)
	if err := ics.Write(w, events); err != nil {
		a.logger.Error("write ics feed", "error", err, "user_id", user.ID)
	}
}

// eventFromForm runs the validate and normalize gate and builds the storable
// event. A non-empty field map means the input was rejected.
func (a *API) eventFromForm(userID int64, form *eventForm) (*store.Event, map[string]string) {
	rule := form.Params.Rule()

	engineEvent := recur.Event{
		Title: form.Title,
		Start: form.StartDate,
		End:   form.EndDate,
		Rule:  rule,
	}

	fields := recur.Validate(rule, engineEvent).Fields()
	if form.Title == "" {
		fields["title"] = "title is required"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	return &store.Event{
		UserID:      userID,
		Title:       form.Title,
		Description: form.Description,
		StartAt:     form.StartDate,
		EndAt:       form.EndDate,
		AllDay:      form.IsAllDay,
		Location:    form.Location,
		Color:       form.Color,
		Recurrence:  recur.Normalize(rule),
	}, nil
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}
