package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/civicvoice/internal/navigation"
	"github.com/ent0n29/civicvoice/internal/settings"
)

func (s *Server) handleListRoutes(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"initial_route": navigation.InitialRoute,
		"routes":        navigation.Routes(),
	})
}

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	respondJSON(w, http.StatusOK, map[string]any{
		"query":     q,
		"default":   s.cfg.VoiceLanguageCode,
		"languages": settings.SearchLanguages(q),
	})
}

func (s *Server) handleFontScale(w http.ResponseWriter, r *http.Request) {
	factor := settings.DefaultFontScale
	if raw := strings.TrimSpace(r.URL.Query().Get("factor")); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_factor", "factor must be a number")
			return
		}
		factor = f
	}
	respondJSON(w, http.StatusOK, settings.ScaleFont(factor))
}
