package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/pipeline"
	"fuel-price-watch/internal/sink"
	"fuel-price-watch/internal/storage"
	"fuel-price-watch/internal/variation"
)

const defaultVariationLimit = 20

// routes builds the admin router. /metrics is mounted only when withMetrics
// is set; otherwise it is served on a separate listener.
func (s *Server) routes(withMetrics bool) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	r.Get("/variations", s.handleVariations)
	r.Route("/stations/{id}", func(r chi.Router) {
		r.Get("/prices", s.handleStationPrices)
		r.Post("/refresh", s.handleRefresh)
	})
	r.Handle("/ws", s.hub)

	if withMetrics {
		r.Handle("/metrics", observability.Handler())
	}
	return r
}

// RunSummary is the JSON form of a pipeline result.
type RunSummary struct {
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Registry     *RegistryCounts   `json:"registry,omitempty"`
	Prices       *ImportCounts     `json:"prices,omitempty"`
	Live         *LiveCounts       `json:"live,omitempty"`
	SkippedFeeds []string          `json:"skipped_feeds,omitempty"`
	Variations   int               `json:"variations"`
	SinkErrors   map[string]string `json:"sink_errors,omitempty"`
}

// RegistryCounts is the JSON form of a registry import summary.
type RegistryCounts struct {
	Total     int `json:"total"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// ImportCounts is the JSON form of an import summary.
type ImportCounts struct {
	Total      int            `json:"total"`
	Inserted   int            `json:"inserted"`
	Updated    int            `json:"updated"`
	Unchanged  int            `json:"unchanged"`
	Stale      int            `json:"stale"`
	ColdStarts int            `json:"cold_starts"`
	NoChange   int            `json:"no_change"`
	Variations int            `json:"variations"`
	Skipped    map[string]int `json:"skipped,omitempty"`
}

// LiveCounts is the JSON form of a live check.
type LiveCounts struct {
	Requested int          `json:"requested"`
	Fetched   int          `json:"fetched"`
	NoData    int          `json:"no_data"`
	Failed    int          `json:"failed"`
	Import    ImportCounts `json:"import"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status      string      `json:"status"`
	Uptime      string      `json:"uptime"`
	Running     bool        `json:"running"`
	Runs        int         `json:"runs"`
	Failures    int         `json:"failures"`
	LastRunAt   *time.Time  `json:"last_run_at,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	LastRun     *RunSummary `json:"last_run,omitempty"`
	LiveBreaker string      `json:"live_breaker,omitempty"`
	WSClients   int         `json:"ws_clients"`
}

// StationResponse is the JSON response for /stations/{id}/prices.
type StationResponse struct {
	StationID    int64                 `json:"station_id"`
	Name         string                `json:"name"`
	Brand        string                `json:"brand"`
	Address      string                `json:"address"`
	Municipality string                `json:"municipality"`
	Province     string                `json:"province"`
	Prices       []PriceEntry          `json:"prices"`
	Variations   []sink.VariationFrame `json:"variations"`
}

// PriceEntry is one current price of a station.
type PriceEntry struct {
	FuelType       string    `json:"fuel_type"`
	Service        string    `json:"service"`
	Price          float64   `json:"price"`
	Day            string    `json:"day"`
	CommunicatedAt time.Time `json:"communicated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Runs:      s.runs,
		Failures:  s.failures,
		LastError: s.lastError,
	}
	if !s.lastRunAt.IsZero() {
		at := s.lastRunAt.UTC()
		resp.LastRunAt = &at
	}
	s.mu.Unlock()

	resp.Running = s.runner.Running()
	resp.LastRun = summarize(s.runner.LastResult())
	resp.WSClients = s.hub.ClientCount()
	if s.breaker != nil {
		resp.LiveBreaker = s.breaker()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleVariations lists variations in dispatch order. Without ?day it
// returns the last run's batch; with ?day=YYYY-MM-DD it reads the store.
func (s *Server) handleVariations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	onlyDown := q.Get("only_down") == "1" || q.Get("only_down") == "true"

	var vs []domain.PriceVariation
	if raw := q.Get("day"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		stored, err := s.stores.Variations.ListByDay(r.Context(), day)
		if err != nil {
			s.log.WithError(err).Error("list variations failed")
			writeError(w, http.StatusInternalServerError, "cannot list variations")
			return
		}
		for _, v := range stored {
			vs = append(vs, *v)
		}
	} else if last := s.runner.LastResult(); last != nil {
		vs = last.Variations
	}

	writeJSON(w, http.StatusOK, frames(variation.Order(vs, onlyDown)))
}

func (s *Server) handleStationPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := stationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	st, err := s.stores.Stations.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "station not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("get station failed")
		writeError(w, http.StatusInternalServerError, "cannot read station")
		return
	}

	limit := defaultVariationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	current, err := s.stores.Prices.ListCurrentByStation(ctx, id)
	if err != nil {
		s.log.WithError(err).Error("list current prices failed")
		writeError(w, http.StatusInternalServerError, "cannot read prices")
		return
	}
	recent, err := s.stores.Variations.ListByStation(ctx, id, limit)
	if err != nil {
		s.log.WithError(err).Error("list station variations failed")
		writeError(w, http.StatusInternalServerError, "cannot read variations")
		return
	}

	resp := StationResponse{
		StationID:    st.StationID,
		Name:         st.Name,
		Brand:        st.Brand,
		Address:      st.Address,
		Municipality: st.Municipality,
		Province:     st.Province,
		Prices:       make([]PriceEntry, 0, len(current)),
		Variations:   make([]sink.VariationFrame, 0, len(recent)),
	}
	for _, c := range current {
		resp.Prices = append(resp.Prices, PriceEntry{
			FuelType:       c.FuelType,
			Service:        domain.ServiceLabel(c.IsSelf),
			Price:          c.Price,
			Day:            c.Day.Format("2006-01-02"),
			CommunicatedAt: c.CommunicatedAt,
		})
	}
	for _, v := range recent {
		resp.Variations = append(resp.Variations, sink.NewVariationFrame(*v))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh live-checks one station and publishes what it finds.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := stationID(w, r)
	if !ok {
		return
	}

	exists, err := s.stores.Stations.Exists(r.Context(), id)
	if err != nil {
		s.log.WithError(err).Error("check station failed")
		writeError(w, http.StatusInternalServerError, "cannot read station")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "station not found")
		return
	}

	res, err := s.runner.Refresh(r.Context(), []int64{id})
	if errors.Is(err, pipeline.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "a batch is running, retry later")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("station_id", id).Error("refresh failed")
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Live       *LiveCounts           `json:"live,omitempty"`
		Variations []sink.VariationFrame `json:"variations"`
	}{
		Live:       liveCounts(res.Live),
		Variations: frames(res.Variations),
	})
}

func stationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid station id")
		return 0, false
	}
	return id, true
}

func summarize(res *pipeline.RunResult) *RunSummary {
	if res == nil {
		return nil
	}
	sum := &RunSummary{
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Live:         liveCounts(res.Live),
		SkippedFeeds: res.SkippedFeeds,
		Variations:   len(res.Variations),
	}
	if reg := res.Registry; reg != nil {
		sum.Registry = &RegistryCounts{
			Total:     reg.Total,
			Inserted:  reg.Inserted,
			Updated:   reg.Updated,
			Unchanged: reg.Unchanged,
			Skipped:   reg.Skipped(),
		}
	}
	if res.Prices != nil {
		c := importCounts(res.Prices)
		sum.Prices = &c
	}
	if len(res.SinkErrors) > 0 {
		sum.SinkErrors = res.SinkErrors
	}
	return sum
}

func importCounts(s *domain.ImportSummary) ImportCounts {
	c := ImportCounts{
		Total:      s.Total,
		Inserted:   s.Inserted,
		Updated:    s.Updated,
		Unchanged:  s.Unchanged,
		Stale:      s.Stale,
		ColdStarts: s.ColdStarts,
		NoChange:   s.NoChange,
		Variations: s.Variations,
	}
	for _, r := range domain.AllSkipReasons {
		if n := s.SkippedBy(r); n > 0 {
			if c.Skipped == nil {
				c.Skipped = make(map[string]int)
			}
			c.Skipped[string(r)] = n
		}
	}
	return c
}

func liveCounts(l *pipeline.LiveSummary) *LiveCounts {
	if l == nil {
		return nil
	}
	return &LiveCounts{
		Requested: l.Requested,
		Fetched:   l.Fetched,
		NoData:    l.NoData,
		Failed:    l.Failed,
		Import:    importCounts(&l.Summary),
	}
}

func frames(vs []domain.PriceVariation) []sink.VariationFrame {
	out := make([]sink.VariationFrame, 0, len(vs))
	for _, v := range vs {
		out = append(out, sink.NewVariationFrame(v))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
