package app

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/civicvoice/internal/broadcast"
	"github.com/ent0n29/civicvoice/internal/config"
	"github.com/ent0n29/civicvoice/internal/journal"
	"github.com/ent0n29/civicvoice/internal/navigation"
	"github.com/ent0n29/civicvoice/internal/observability"
	"github.com/ent0n29/civicvoice/internal/protocol"
	"github.com/ent0n29/civicvoice/internal/session"
	"github.com/ent0n29/civicvoice/internal/voicecontrol"
)

const journalWriteTimeout = 2 * time.Second

type voiceSetup struct {
	cfg      config.Config
	hub      *broadcast.Hub
	sink     navigation.Sink
	commands journal.Store
	metrics  *observability.Metrics
	log      logrus.FieldLogger
	// scheduler is nil outside tests; sessions then use real timers.
	scheduler voicecontrol.Scheduler
}

// recognizer picks where transcripts come from. In client mode the timer is
// only a listen timeout, and an empty transcript resolves it as not
// understood.
func (v voiceSetup) recognizer() (voicecontrol.Recognizer, string) {
	if v.cfg.VoiceRecognizer == config.RecognizerClient {
		return voicecontrol.StaticRecognizer(""), "client transcripts"
	}
	return voicecontrol.StaticRecognizer(v.cfg.VoiceSimulatedTranscript), "simulated"
}

// factory builds the per-session voice state machine with its state pushed
// to websocket subscribers and its outcomes journaled and counted.
func (v voiceSetup) factory() session.VoiceFactory {
	rec, _ := v.recognizer()
	return func(s session.Session) *voicecontrol.Session {
		log := v.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"user_id":    s.UserID,
		})
		return voicecontrol.New(voicecontrol.Options{
			LanguageCode:       s.LanguageCode,
			UserName:           v.cfg.VoiceUserName,
			RecognitionDelay:   v.cfg.ListenTimeout(),
			FeedbackClearDelay: v.cfg.VoiceFeedbackClearDelay,
			NavigationTimeout:  v.cfg.VoiceNavigationTimeout,
			Recognizer:         rec,
			Scheduler:          v.scheduler,
			Navigator:          navigation.ForSession(s.ID, v.sink),
			Logger:             log,
			OnChange: func(st voicecontrol.State) {
				v.hub.Broadcast(s.ID, protocol.StateMessage(s.ID, st))
			},
			OnOutcome: func(out voicecontrol.Outcome) {
				v.recordOutcome(log, s, out)
			},
		})
	}
}

func (v voiceSetup) recordOutcome(log logrus.FieldLogger, s session.Session, out voicecontrol.Outcome) {
	intent := string(out.Intent)
	label := intent
	if label == "" {
		label = "none"
	}
	v.metrics.VoiceCommands.WithLabelValues(label, strconv.FormatBool(out.Matched)).Inc()
	v.metrics.ObserveRecognitionLatency(out.Elapsed)
	if !out.Matched {
		v.metrics.ObserveIndicator("not_understood")
	}
	if out.Matched && out.Destination != "" {
		result := "ok"
		if out.NavigationErr != nil {
			result = "error"
		}
		v.metrics.Navigations.WithLabelValues(out.Destination, result).Inc()
		v.metrics.ObserveStage("result_to_navigate", out.NavigationElapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	err := v.commands.SaveCommand(ctx, journal.CommandRecord{
		SessionID:    s.ID,
		UserID:       s.UserID,
		Transcript:   out.Transcript,
		Intent:       intent,
		Matched:      out.Matched,
		LanguageCode: s.LanguageCode,
	})
	if err != nil {
		log.WithError(err).Warn("journal write failed")
	}
}
