package httpapi

import (
	"net/http"
	"time"

	"github.com/ent0n29/civicvoice/internal/observability"
)

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, observability.LatencySnapshot{
			GeneratedAt: time.Now().UTC(),
			Stages:      []observability.StageStats{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}
