package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nexgen-logistics/shipmerge/internal/dataset"
)

// ExportFileName is the attachment name of the CSV export.
const ExportFileName = "filtered_data.csv"

// SetupRoutes registers the data API routes.
func SetupRoutes(router chi.Router, h *Handlers) {
	router.Get("/healthz", h.Health)

	router.Route("/api", func(r chi.Router) {
		r.Get("/options", h.Options)       // Filter values
		r.Get("/kpis", h.KPIs)             // Headline figures for a filter
		r.Get("/warehouses", h.Warehouses) // Per-origin aggregates
		r.Get("/features", h.Features)     // Classifier extract
		r.Get("/export.csv", h.Export)     // Filtered rows as CSV
		r.Get("/events", h.Events)         // Reload notifications (SSE)
	})
}

// Handlers provides the data API handlers.
type Handlers struct {
	dataset  func() *dataset.Dataset
	notifier *Notifier
}

// NewHandlers creates handlers reading the dataset returned by current.
func NewHandlers(current func() *dataset.Dataset, notify *Notifier) *Handlers {
	return &Handlers{dataset: current, notifier: notify}
}

// parseFilter reads repeated origin, carrier and priority query params.
func parseFilter(r *http.Request) dataset.Filter {
	q := r.URL.Query()
	return dataset.Filter{
		Origins:    q["origin"],
		Carriers:   q["carrier"],
		Priorities: q["priority"],
	}
}

func (h *Handlers) view(r *http.Request) *dataset.View {
	return h.dataset().View().Apply(parseFilter(r))
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status   string    `json:"status"`
	Path     string    `json:"path"`
	Rows     int       `json:"rows"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Health reports the loaded dataset.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	ds := h.dataset()
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Path: ds.Path, Rows: ds.Len(), LoadedAt: ds.LoadedAt})
}

// Options returns the values offered for each filter.
func (h *Handlers) Options(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dataset().FilterOptions())
}

// KPIResponse is returned by /api/kpis.
type KPIResponse struct {
	Filter dataset.Filter `json:"filter"`
	KPIs   dataset.KPIs   `json:"kpis"`
}

// KPIs returns the headline figures for the filtered view.
func (h *Handlers) KPIs(w http.ResponseWriter, r *http.Request) {
	v := h.view(r)
	writeJSON(w, http.StatusOK, KPIResponse{Filter: v.Filter(), KPIs: dataset.ComputeKPIs(v)})
}

// Warehouses returns per-origin aggregates for the filtered view.
func (h *Handlers) Warehouses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dataset.WarehousePerformance(h.view(r)))
}

// Features returns the classifier extract for the filtered view.
func (h *Handlers) Features(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dataset.Features(h.view(r)))
}

// Export streams the filtered view as a CSV attachment.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFileName))
	if err := dataset.Export(h.view(r), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Events is a long-lived server-sent event stream that emits a reload
// event whenever the dataset is swapped.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			ds := h.dataset()
			if _, err := fmt.Fprintf(w, "event: reload\ndata: {\"rows\":%d}\n\n", ds.Len()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
