package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/storm-data-timeline/internal/bucket"
	"github.com/couchcryptid/storm-data-timeline/internal/session"
)

// Timeline is the session surface served over HTTP.
type Timeline interface {
	sharedobs.ReadinessChecker
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Play(ctx context.Context) (session.Snapshot, error)
	Pause(ctx context.Context) (session.Snapshot, error)
	Toggle(ctx context.Context) (session.Snapshot, error)
	CycleSpeed(ctx context.Context) (session.Snapshot, error)
	Scrub(ctx context.Context, week int) (session.Snapshot, error)
	Incidents(ctx context.Context, week int, category string) (session.WeekView, error)
	CurrentIncidents(ctx context.Context, category string) (session.WeekView, error)
	Summary(ctx context.Context, week int) (bucket.Summary, error)
	Trends(ctx context.Context) (session.Trends, error)
}

type scrubRequest struct {
	Week *int `json:"week"`
}

type summaryResponse struct {
	bucket.Summary
	Top []bucket.CategoryCount `json:"top"`
}

type trendsResponse struct {
	session.Trends
	Top []bucket.CategoryCount `json:"top"`
}

type apiHandler struct {
	tl     Timeline
	logger *slog.Logger
}

func (a *apiHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/playback", a.snapshotHandler(a.tl.Snapshot))
	mux.HandleFunc("POST /api/playback/play", a.snapshotHandler(a.tl.Play))
	mux.HandleFunc("POST /api/playback/pause", a.snapshotHandler(a.tl.Pause))
	mux.HandleFunc("POST /api/playback/toggle", a.snapshotHandler(a.tl.Toggle))
	mux.HandleFunc("POST /api/playback/speed", a.snapshotHandler(a.tl.CycleSpeed))
	mux.HandleFunc("PUT /api/playback/week", a.handleScrub)
	mux.HandleFunc("GET /api/weeks/current", a.handleCurrentWeek)
	mux.HandleFunc("GET /api/weeks/{week}", a.handleWeek)
	mux.HandleFunc("GET /api/weeks/{week}/summary", a.handleSummary)
	mux.HandleFunc("GET /api/trends", a.handleTrends)
}

func (a *apiHandler) snapshotHandler(fn func(context.Context) (session.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := fn(r.Context())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, snap)
	}
}

func (a *apiHandler) handleScrub(w http.ResponseWriter, r *http.Request) {
	var req scrubRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	if req.Week == nil {
		badRequest(w, "week is required")
		return
	}
	snap, err := a.tl.Scrub(r.Context(), *req.Week)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (a *apiHandler) handleCurrentWeek(w http.ResponseWriter, r *http.Request) {
	view, err := a.tl.CurrentIncidents(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, view)
}

func (a *apiHandler) handleWeek(w http.ResponseWriter, r *http.Request) {
	week, ok := weekParam(w, r)
	if !ok {
		return
	}
	view, err := a.tl.Incidents(r.Context(), week, r.URL.Query().Get("category"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, view)
}

func (a *apiHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	week, ok := weekParam(w, r)
	if !ok {
		return
	}
	top, ok := topParam(w, r)
	if !ok {
		return
	}
	sum, err := a.tl.Summary(r.Context(), week)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, summaryResponse{Summary: sum, Top: sum.Top(top)})
}

func (a *apiHandler) handleTrends(w http.ResponseWriter, r *http.Request) {
	top, ok := topParam(w, r)
	if !ok {
		return
	}
	tr, err := a.tl.Trends(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, trendsResponse{Trends: tr, Top: tr.Totals.Top(top)})
}

// topParam reads the optional top query parameter. Absent means every
// category.
func topParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("top")
	if raw == "" {
		return -1, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(w, "top must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func weekParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	week, err := strconv.Atoi(r.PathValue("week"))
	if err != nil {
		badRequest(w, "week must be an integer")
		return 0, false
	}
	return week, true
}

func badRequest(w http.ResponseWriter, msg string) {
	sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (a *apiHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	a.logger.Warn("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
