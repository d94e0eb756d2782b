package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/civicvoice/internal/broadcast"
	"github.com/ent0n29/civicvoice/internal/config"
	"github.com/ent0n29/civicvoice/internal/httpapi"
	"github.com/ent0n29/civicvoice/internal/journal"
	"github.com/ent0n29/civicvoice/internal/navigation"
	"github.com/ent0n29/civicvoice/internal/observability"
	"github.com/ent0n29/civicvoice/internal/session"
	"github.com/ent0n29/civicvoice/internal/voicecontrol"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Journal  journal.Store
	Hub      *broadcast.Hub
	Metrics  *observability.Metrics

	// Recognizer describes where transcripts come from, for startup logs.
	Recognizer string
	// Publishers lists the navigation sinks in use.
	Publishers []string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

type buildOptions struct {
	scheduler voicecontrol.Scheduler
}

// Option tweaks Build, mostly for tests.
type Option func(*buildOptions)

// WithScheduler makes every voice session use s instead of real timers.
func WithScheduler(s voicecontrol.Scheduler) Option {
	return func(o *buildOptions) { o.scheduler = s }
}

func Build(ctx context.Context, cfg config.Config, logger logrus.FieldLogger, opts ...Option) (*BuildResult, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	commands, err := journal.NewStore(ctx, cfg.DatabaseURL, cfg.JournalSessionCap)
	if err != nil {
		return nil, fmt.Errorf("journal store init failed: %w", err)
	}

	hub := broadcast.NewHub()
	sinks := navigation.Multi{navigation.HubSink{Hub: hub}}
	publishers := []string{"websocket"}
	var redisPub *navigation.RedisPublisher
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisPub, err = navigation.NewRedisPublisher(ctx, cfg.RedisURL, cfg.NavigationChannelPrefix)
		if err != nil {
			_ = commands.Close()
			return nil, fmt.Errorf("navigation publisher init failed: %w", err)
		}
		sinks = append(sinks, redisPub)
		publishers = append(publishers, "redis")
	}

	setup := voiceSetup{
		cfg:       cfg,
		hub:       hub,
		sink:      sinks,
		commands:  commands,
		metrics:   metrics,
		log:       logger,
		scheduler: bo.scheduler,
	}
	_, recognizerDetail := setup.recognizer()

	sessions := session.NewManager(cfg.SessionInactivityTimeout, setup.factory())
	sessions.SetEndedRetention(cfg.SessionRetention)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		logger.WithField("session_id", s.ID).Info("session expired")
	})
	sessions.SetEndHook(func(s *session.Session) {
		hub.Close(s.ID)
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, commands, hub, metrics, logger)

	cleanup := func() error {
		sessions.CloseAll()
		var errs []error
		if redisPub != nil {
			if err := redisPub.Close(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
		if err := commands.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Sessions:   sessions,
		Journal:    commands,
		Hub:        hub,
		Metrics:    metrics,
		Recognizer: recognizerDetail,
		Publishers: publishers,
		Cleanup:    cleanup,
	}, nil
}
