package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/ticker"
)

// SystemStats reports host resources relevant to the state database
type SystemStats struct {
	DiskFreeBytes uint64  `json:"disk_free_bytes,omitempty"`
	DiskUsedPct   float64 `json:"disk_used_pct,omitempty"`
	MemUsedPct    float64 `json:"mem_used_pct,omitempty"`
}

func (s *Server) systemStats() SystemStats {
	var stats SystemStats
	if s.dataDir != "" {
		if usage, err := disk.Usage(s.dataDir); err == nil {
			stats.DiskFreeBytes = usage.Free
			stats.DiskUsedPct = usage.UsedPercent
		} else {
			s.log.Debug().Err(err).Msg("Failed to read disk usage")
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedPct = vm.UsedPercent
	} else {
		s.log.Debug().Err(err).Msg("Failed to read memory usage")
	}
	return stats
}

// FailureView is a failure record with its derived staleness
type FailureView struct {
	domain.FailureRecord
	Stale bool `json:"stale"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := len(s.snapshot)
	loadedAt := s.loadedAt
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":     "healthy",
		"service":    "consensus",
		"securities": count,
	}
	if !loadedAt.IsZero() {
		response["loaded_at"] = loadedAt.Format(time.RFC3339)
	}
	response["system"] = s.systemStats()

	s.writeJSON(w, http.StatusOK, response)
}

// handleListSecurities lists the cached snapshot. Optional filters:
// source=dataroma|substack, stale=true|false, fund=true|false.
func (s *Server) handleListSecurities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var source domain.Source
	switch strings.ToLower(q.Get("source")) {
	case "":
	case strings.ToLower(string(domain.SourceHoldings)):
		source = domain.SourceHoldings
	case strings.ToLower(string(domain.SourceMentions)):
		source = domain.SourceMentions
	default:
		s.writeError(w, http.StatusBadRequest, "unknown source "+q.Get("source"))
		return
	}

	stale, ok := parseBoolFilter(q.Get("stale"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "stale must be true or false")
		return
	}
	fund, ok := parseBoolFilter(q.Get("fund"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "fund must be true or false")
		return
	}

	s.mu.RLock()
	out := make([]domain.CanonicalSecurity, 0, len(s.snapshot))
	for i := range s.snapshot {
		sec := &s.snapshot[i]
		if source != "" && !sec.HasSource(source) {
			continue
		}
		if stale != nil && sec.IsStale != *stale {
			continue
		}
		if fund != nil && sec.IsFund != *fund {
			continue
		}
		out = append(out, *sec)
	}
	s.mu.RUnlock()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(out),
		"stocks": out,
	})
}

// handleGetSecurity returns one security by ticker, in any source spelling
func (s *Server) handleGetSecurity(w http.ResponseWriter, r *http.Request) {
	t := ticker.Normalize(chi.URLParam(r, "ticker"))

	s.mu.RLock()
	i, ok := s.index[t]
	var sec domain.CanonicalSecurity
	if ok {
		sec = s.snapshot[i]
	}
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, http.StatusNotFound, "security "+t+" not found")
		return
	}
	s.writeJSON(w, http.StatusOK, sec)
}

// handleListFailures lists the persisted failure records
func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListFailures(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list failures")
		s.writeError(w, http.StatusInternalServerError, "failed to list failures")
		return
	}

	views := make([]FailureView, 0, len(records))
	for _, rec := range records {
		views = append(views, FailureView{
			FailureRecord: rec,
			Stale:         s.threshold > 0 && rec.ConsecutiveCount >= s.threshold,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

// handleListRuns lists recent runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// parseBoolFilter returns nil for an absent filter
func parseBoolFilter(v string) (*bool, bool) {
	if v == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, false
	}
	return &b, true
}
