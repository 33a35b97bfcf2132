package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calder-iot/shadowbridge/internal/aggregator"
	"github.com/calder-iot/shadowbridge/internal/diag"
	"github.com/calder-iot/shadowbridge/internal/engine"
)

// defaultDiagnosticsLimit is the page size for the in-memory diagnostics
// ring when the caller does not set one.
const defaultDiagnosticsLimit = 50

// adapterResponse is the JSON shape for one adapter's operational state.
type adapterResponse struct {
	Name       string         `json:"name"`
	Healthy    bool           `json:"healthy"`
	LastPoll   *time.Time     `json:"last_poll,omitempty"`
	Properties map[string]any `json:"properties"`
	Engine     engineStats    `json:"engine"`
}

// engineStats is the JSON shape for engine counters.
type engineStats struct {
	RecordsIn         uint64 `json:"records_in"`
	CommandsOut       uint64 `json:"commands_out"`
	TranslationErrors uint64 `json:"translation_errors"`
	StreamErrors      uint64 `json:"stream_errors"`
	Requeues          uint64 `json:"requeues"`
	Dropped           uint64 `json:"dropped"`
	Polls             uint64 `json:"polls"`
	QueueDepth        int    `json:"queue_depth"`
}

func toAdapterResponse(snap aggregator.AdapterSnapshot) adapterResponse {
	resp := adapterResponse{
		Name:       snap.Name,
		Healthy:    snap.Healthy,
		Properties: snap.Properties.Interface(),
		Engine:     toEngineStats(snap.Engine),
	}
	if !snap.LastPoll.IsZero() {
		t := snap.LastPoll
		resp.LastPoll = &t
	}
	return resp
}

func toEngineStats(st engine.Stats) engineStats {
	return engineStats{
		RecordsIn:         st.RecordsIn,
		CommandsOut:       st.CommandsOut,
		TranslationErrors: st.TranslationErrors,
		StreamErrors:      st.StreamErrors,
		Requeues:          st.Requeues,
		Dropped:           st.Dropped,
		Polls:             st.Polls,
		QueueDepth:        st.QueueDepth,
	}
}

// handleShadow returns the merged property document across all adapters.
func (s *Server) handleShadow(w http.ResponseWriter, _ *http.Request) {
	doc := s.aggregator.Document()
	writeJSON(w, http.StatusOK, map[string]any{
		"properties": doc.Interface(),
		"count":      doc.Len(),
	})
}

// handleStats returns the aggregator's reconciliation counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.aggregator.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"updates_merged":   st.UpdatesMerged,
		"reports_sent":     st.ReportsSent,
		"report_failures":  st.ReportFailures,
		"deltas_received":  st.DeltasReceived,
		"commands_routed":  st.CommandsRouted,
		"unroutable":       st.Unroutable,
		"invalid_values":   st.InvalidValues,
		"cascade_outputs":  st.CascadeOutputs,
		"cascade_overruns": st.CascadeOverruns,
		"ws_clients":       s.Hub().ClientCount(),
	})
}

// handleListAdapters returns every registered adapter's state.
func (s *Server) handleListAdapters(w http.ResponseWriter, _ *http.Request) {
	names := s.aggregator.AdapterNames()
	adapters := make([]adapterResponse, 0, len(names))
	for _, name := range names {
		snap, ok := s.aggregator.AdapterState(name)
		if !ok {
			continue
		}
		adapters = append(adapters, toAdapterResponse(snap))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"adapters": adapters,
		"count":    len(adapters),
	})
}

// handleGetAdapter returns one adapter's state by name.
func (s *Server) handleGetAdapter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, ok := s.aggregator.AdapterState(name)
	if !ok {
		writeNotFound(w, "adapter not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, toAdapterResponse(snap))
}

// handleDiagnostics returns recent diagnostic events from the in-memory ring.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	limit := defaultDiagnosticsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events := []diag.Event{}
	if s.ring != nil {
		events = s.ring.Recent(limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleJournal queries the persisted diagnostics journal with optional
// kind and adapter filters and limit/offset pagination.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "diagnostics journal not enabled")
		return
	}

	filter := diag.Filter{
		Kind:    diag.Kind(r.URL.Query().Get("kind")),
		Adapter: r.URL.Query().Get("adapter"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = parsed
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = parsed
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeInternalError(w, "journal query failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
