package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/civicvoice/internal/navigation"
	"github.com/ent0n29/civicvoice/internal/protocol"
	"github.com/ent0n29/civicvoice/internal/session"
	"github.com/ent0n29/civicvoice/internal/settings"
	"github.com/ent0n29/civicvoice/internal/voicecontrol"
)

type transcriptRequest struct {
	Text string `json:"text" validate:"required,max=512"`
}

type sessionResponse struct {
	Session *session.Session     `json:"session"`
	State   *protocol.VoiceState `json:"state,omitempty"`
}

type listenResponse struct {
	Result voicecontrol.ListenResult `json:"result"`
	State  protocol.VoiceState       `json:"state"`
}

type outcomeResponse struct {
	Transcript      string              `json:"transcript"`
	Matched         bool                `json:"matched"`
	Intent          string              `json:"intent,omitempty"`
	Destination     string              `json:"destination,omitempty"`
	Feedback        string              `json:"feedback"`
	NavigationError string              `json:"navigation_error,omitempty"`
	Stale           bool                `json:"stale,omitempty"`
	Ignored         bool                `json:"ignored,omitempty"`
	State           protocol.VoiceState `json:"state"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.LanguageCode = strings.ToLower(strings.TrimSpace(req.LanguageCode))
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", validationDetail(err))
		return
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	if req.LanguageCode == "" {
		req.LanguageCode = s.cfg.VoiceLanguageCode
	}
	if _, ok := settings.LookupLanguage(req.LanguageCode); !ok {
		respondError(w, http.StatusBadRequest, "unsupported_language", "language_code "+req.LanguageCode+" is not supported")
		return
	}

	sess := s.sessions.Create(req.UserID, req.LanguageCode)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	s.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"user_id":    sess.UserID,
		"language":   sess.LanguageCode,
	}).Info("session created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		LanguageCode:    sess.LanguageCode,
		InitialRoute:    navigation.InitialRoute,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	resp := sessionResponse{Session: sess}
	if sess.Status == session.StatusActive {
		if voice, err := s.sessions.Voice(id); err == nil {
			st := protocol.StateMessage(id, voice.State())
			resp.State = &st
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.withVoice(w, r, func(id string, voice *voicecontrol.Session) {
		voice.Activate()
		s.metrics.SessionEvents.WithLabelValues("activated").Inc()
		respondJSON(w, http.StatusOK, protocol.StateMessage(id, voice.State()))
	})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.withVoice(w, r, func(id string, voice *voicecontrol.Session) {
		voice.Deactivate()
		s.metrics.SessionEvents.WithLabelValues("deactivated").Inc()
		respondJSON(w, http.StatusOK, protocol.StateMessage(id, voice.State()))
	})
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	s.withVoice(w, r, func(id string, voice *voicecontrol.Session) {
		result := s.startListening(voice)
		respondJSON(w, http.StatusOK, listenResponse{
			Result: result,
			State:  protocol.StateMessage(id, voice.State()),
		})
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", validationDetail(err))
		return
	}
	s.withVoice(w, r, func(id string, voice *voicecontrol.Session) {
		out := voice.DeliverTranscript(req.Text)
		resp := outcomeResponse{
			Transcript:  out.Transcript,
			Matched:     out.Matched,
			Intent:      string(out.Intent),
			Destination: out.Destination,
			Feedback:    out.Feedback,
			Stale:       out.Stale,
			Ignored:     out.Ignored,
			State:       protocol.StateMessage(id, voice.State()),
		}
		if out.NavigationErr != nil {
			resp.NavigationError = out.NavigationErr.Error()
		}
		respondJSON(w, http.StatusOK, resp)
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondSessionError(w, err)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.commands.RecentCommands(r.Context(), id, limit)
	if err != nil {
		s.log.WithField("session_id", id).WithError(err).Error("list commands failed")
		respondError(w, http.StatusInternalServerError, "journal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"commands":   records,
	})
}

func (s *Server) withVoice(w http.ResponseWriter, r *http.Request, fn func(id string, voice *voicecontrol.Session)) {
	id := chi.URLParam(r, "id")
	voice, err := s.sessions.Voice(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	fn(id, voice)
}

func (s *Server) startListening(voice *voicecontrol.Session) voicecontrol.ListenResult {
	result := voice.StartListening()
	s.metrics.ListenRequests.WithLabelValues(string(result)).Inc()
	return result
}
