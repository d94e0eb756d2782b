package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/civicvoice/internal/protocol"
	"github.com/ent0n29/civicvoice/internal/voicecontrol"
)

const (
	wsReadLimit    = 64 << 10
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsHubBuffer    = 64
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	voice, err := s.sessions.Voice(sessionID)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.log.WithField("session_id", sessionID)
	log.Info("websocket connected")
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	events, unsubscribe := s.hub.Subscribe(sessionID, wsHubBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Replies that only this connection should see, such as error events.
	direct := make(chan any, 16)
	direct <- protocol.StateMessage(sessionID, voice.State())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing the socket unblocks the read loop once writing stops.
		defer conn.Close()
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case m, ok := <-events:
				if !ok {
					// Session ended; the hub dropped all subscribers.
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
						time.Now().Add(time.Second))
					return
				}
				msg = m
			case m := <-direct:
				msg = m
			}
			if err := s.writeMessage(conn, msg); err != nil {
				s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
				log.WithError(err).Debug("websocket write failed")
				cancel()
				return
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		_ = s.sessions.Touch(sessionID)

		parsed, err := protocol.ParseClientMessage(data)
		if err == nil {
			err = checkSessionID(parsed, sessionID)
		}
		if err != nil {
			s.reply(direct, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := protocol.TypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		s.applyClientMessage(log, voice, parsed)
	}

	cancel()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	log.Info("websocket disconnected")
}

func (s *Server) applyClientMessage(log logrus.FieldLogger, voice *voicecontrol.Session, msg any) {
	switch m := msg.(type) {
	case protocol.ClientControl:
		switch m.Action {
		case protocol.ActionActivate:
			voice.Activate()
		case protocol.ActionDeactivate:
			voice.Deactivate()
		case protocol.ActionStartListening:
			if res := s.startListening(voice); res != voicecontrol.ListenStarted {
				log.WithField("result", string(res)).Debug("listen request ignored")
			}
		}
	case protocol.ClientTranscript:
		out := voice.DeliverTranscript(m.Text)
		if out.Ignored {
			log.Debug("client transcript ignored while idle")
			return
		}
		log.WithFields(logrus.Fields{
			"matched": out.Matched,
			"intent":  string(out.Intent),
		}).Debug("client transcript interpreted")
	}
}

func (s *Server) writeMessage(conn *websocket.Conn, msg any) error {
	start := time.Now()
	_ = conn.SetWriteDeadline(start.Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	t, ok := protocol.TypeOf(msg)
	if !ok {
		return nil
	}
	s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	if t == protocol.TypeVoiceState {
		s.metrics.ObserveStage("ws_state_push", time.Since(start))
	}
	return nil
}

// reply queues a message for this connection only, dropping it when the
// queue is saturated so the read loop never blocks.
func (s *Server) reply(direct chan<- any, msg any) {
	select {
	case direct <- msg:
	default:
		s.metrics.WSWriteErrors.WithLabelValues("drop_full").Inc()
	}
}

func checkSessionID(msg any, sessionID string) error {
	var got string
	switch m := msg.(type) {
	case protocol.ClientControl:
		got = m.SessionID
	case protocol.ClientTranscript:
		got = m.SessionID
	}
	if got != sessionID {
		return errSessionMismatch
	}
	return nil
}
