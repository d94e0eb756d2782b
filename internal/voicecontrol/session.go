package voicecontrol

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultRecognitionDelay   = 2 * time.Second
	DefaultFeedbackClearDelay = 5 * time.Second
	DefaultNavigationTimeout  = 3 * time.Second
)

// Navigator is the slice of the navigation service a voice session drives.
type Navigator interface {
	Replace(ctx context.Context, destination string) error
}

// ListenResult reports what StartListening did. Only ListenStarted changes state.
type ListenResult string

const (
	ListenStarted         ListenResult = "started"
	ListenIgnoredInactive ListenResult = "ignored_inactive"
	ListenIgnoredBusy     ListenResult = "ignored_listening"
	ListenIgnoredClosed   ListenResult = "ignored_closed"
)

// State is a point-in-time view of a session for rendering.
// Version increases on every observable change.
type State struct {
	Active          bool   `json:"active"`
	Listening       bool   `json:"listening"`
	FeedbackMessage string `json:"feedback_message"`
	LanguageCode    string `json:"language_code"`
	Version         uint64 `json:"version"`
}

// Outcome describes one interpreted recognition result. NavigationElapsed is
// how long the navigator took to accept the request. Stale is set when the
// result arrived for a cancelled or superseded recognition and was dropped.
// Ignored is set when DeliverTranscript found the session disarmed.
type Outcome struct {
	Transcript        string
	Matched           bool
	Intent            Intent
	Destination       string
	Feedback          string
	Elapsed           time.Duration
	NavigationErr     error
	NavigationElapsed time.Duration
	Stale             bool
	Ignored           bool
}

type Options struct {
	LanguageCode       string
	UserName           string
	RecognitionDelay   time.Duration
	FeedbackClearDelay time.Duration
	NavigationTimeout  time.Duration
	Recognizer         Recognizer
	Commands           []Command
	Scheduler          Scheduler
	Navigator          Navigator
	Logger             logrus.FieldLogger

	// OnChange receives a snapshot after every state change. It runs outside
	// the session lock and may call back into the session.
	OnChange func(State)
	// OnOutcome receives every interpreted recognition result.
	OnOutcome func(Outcome)
}

// Session is the voice-control state machine for one client. The zero value
// is not usable; construct with New.
type Session struct {
	mu sync.Mutex

	languageCode       string
	userName           string
	recognitionDelay   time.Duration
	feedbackClearDelay time.Duration
	navigationTimeout  time.Duration
	recognizer         Recognizer
	commands           []Command
	scheduler          Scheduler
	navigator          Navigator
	log                logrus.FieldLogger
	onChange           func(State)
	onOutcome          func(Outcome)

	active    bool
	listening bool
	feedback  string
	version   uint64
	closed    bool

	feedbackTimer    Timer
	feedbackGen      uint64
	recognitionTimer Timer
	recognitionGen   uint64
	listenStartedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Session {
	if strings.TrimSpace(opts.LanguageCode) == "" {
		opts.LanguageCode = DefaultLanguageCode
	}
	if strings.TrimSpace(opts.UserName) == "" {
		opts.UserName = DefaultUserName
	}
	if opts.RecognitionDelay <= 0 {
		opts.RecognitionDelay = DefaultRecognitionDelay
	}
	if opts.FeedbackClearDelay <= 0 {
		opts.FeedbackClearDelay = DefaultFeedbackClearDelay
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.Recognizer == nil {
		opts.Recognizer = StaticRecognizer(DefaultSimulatedTranscript)
	}
	if opts.Commands == nil {
		opts.Commands = DefaultCommands()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		languageCode:       opts.LanguageCode,
		userName:           opts.UserName,
		recognitionDelay:   opts.RecognitionDelay,
		feedbackClearDelay: opts.FeedbackClearDelay,
		navigationTimeout:  opts.NavigationTimeout,
		recognizer:         opts.Recognizer,
		commands:           opts.Commands,
		scheduler:          opts.Scheduler,
		navigator:          opts.Navigator,
		log:                opts.Logger.WithField("component", "voicecontrol"),
		onChange:           opts.OnChange,
		onOutcome:          opts.OnOutcome,
		ctx:                ctx,
		cancel:             cancel,
	}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Activate arms the session so listening requests are honored.
func (s *Session) Activate() {
	s.mu.Lock()
	if s.closed || s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	st := s.changedLocked()
	s.mu.Unlock()

	s.notify(st)
}

// Deactivate disarms the session, drops any in-flight recognition and clears
// the feedback line.
func (s *Session) Deactivate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.active || s.listening || s.feedback != ""
	s.active = false
	s.listening = false
	s.cancelRecognitionLocked()
	s.cancelFeedbackLocked()
	s.feedback = ""
	if !changed {
		s.mu.Unlock()
		return
	}
	st := s.changedLocked()
	s.mu.Unlock()

	s.notify(st)
}

// StartListening begins a recognition attempt. It is a no-op unless the
// session is active and not already listening.
func (s *Session) StartListening() ListenResult {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ListenIgnoredClosed
	case !s.active:
		s.mu.Unlock()
		return ListenIgnoredInactive
	case s.listening:
		s.mu.Unlock()
		return ListenIgnoredBusy
	}

	s.listening = true
	s.listenStartedAt = time.Now()
	s.setFeedbackLocked(ListeningMessage)
	s.scheduleRecognitionLocked()
	st := s.changedLocked()
	s.mu.Unlock()

	s.notify(st)
	return ListenStarted
}

// OnRecognitionResult interprets a transcript delivered by a recognizer. Any
// pending simulated delivery is cancelled.
func (s *Session) OnRecognitionResult(transcript string) Outcome {
	return s.interpret(transcript, 0, deliverDirect)
}

// Dispose cancels all timers. Callbacks that were already in flight become
// no-ops and every later call is ignored.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.active = false
	s.listening = false
	s.cancelRecognitionLocked()
	s.cancelFeedbackLocked()
	s.feedback = ""
	s.version++
	s.mu.Unlock()

	s.cancel()
}

// Closed reports whether Dispose was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// DeliverTranscript interprets a transcript pushed by an external recognizer.
// It is ignored unless the session is active or listening.
func (s *Session) DeliverTranscript(transcript string) Outcome {
	return s.interpret(transcript, 0, deliverArmed)
}

type delivery int

const (
	deliverDirect delivery = iota
	deliverArmed
	deliverTimer
)

func (s *Session) interpret(transcript string, gen uint64, via delivery) Outcome {
	if via == deliverTimer {
		s.mu.Lock()
		stale := s.staleRecognitionLocked(gen)
		s.mu.Unlock()
		if stale {
			return Outcome{Stale: true}
		}
		// The recognizer runs unlocked so it may read the session.
		transcript = s.recognizer.Recognize()
	}

	s.mu.Lock()
	if s.closed || (via == deliverTimer && s.staleRecognitionLocked(gen)) {
		s.mu.Unlock()
		return Outcome{Transcript: transcript, Stale: true}
	}
	if via == deliverArmed && !s.active && !s.listening {
		s.mu.Unlock()
		return Outcome{Transcript: transcript, Ignored: true}
	}

	s.cancelRecognitionLocked()
	s.listening = false
	out := Outcome{Transcript: transcript}
	if !s.listenStartedAt.IsZero() {
		out.Elapsed = time.Since(s.listenStartedAt)
		s.listenStartedAt = time.Time{}
	}

	cmd, ok := Match(s.commands, transcript)
	if ok {
		out.Matched = true
		out.Intent = cmd.Intent
		out.Destination = cmd.Destination
		out.Feedback = cmd.acknowledgement(s.userName)
		s.active = false
	} else {
		out.Feedback = NotUnderstoodMessage
	}
	s.setFeedbackLocked(out.Feedback)
	st := s.changedLocked()
	nav := s.navigator
	lang := s.languageCode
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"language": lang,
		"text":     out.Feedback,
	}).Info("tts speaking")

	if out.Matched && out.Destination != "" && nav != nil {
		ctx, cancel := context.WithTimeout(s.ctx, s.navigationTimeout)
		navStart := time.Now()
		out.NavigationErr = nav.Replace(ctx, out.Destination)
		out.NavigationElapsed = time.Since(navStart)
		cancel()
		if out.NavigationErr != nil {
			s.log.WithFields(logrus.Fields{
				"destination": out.Destination,
				"error":       out.NavigationErr.Error(),
			}).Warn("navigation request failed")
		}
	}

	s.notify(st)
	if s.onOutcome != nil {
		s.onOutcome(out)
	}
	return out
}

func (s *Session) staleRecognitionLocked(gen uint64) bool {
	return s.closed || gen != s.recognitionGen || !s.listening
}

// setFeedback sets the feedback line and restarts the clear timer.
func (s *Session) setFeedback(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.setFeedbackLocked(text)
	st := s.changedLocked()
	s.mu.Unlock()

	s.notify(st)
}

func (s *Session) setFeedbackLocked(text string) {
	s.cancelFeedbackLocked()
	s.feedback = text
	gen := s.feedbackGen
	s.feedbackTimer = s.scheduler.AfterFunc(s.feedbackClearDelay, func() {
		s.clearFeedback(gen)
	})
}

func (s *Session) clearFeedback(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.feedbackGen {
		s.mu.Unlock()
		return
	}
	s.feedbackTimer = nil
	if s.feedback == "" {
		s.mu.Unlock()
		return
	}
	s.feedback = ""
	st := s.changedLocked()
	s.mu.Unlock()

	s.notify(st)
}

func (s *Session) cancelFeedbackLocked() {
	if s.feedbackTimer != nil {
		s.feedbackTimer.Stop()
		s.feedbackTimer = nil
	}
	s.feedbackGen++
}

func (s *Session) scheduleRecognitionLocked() {
	s.cancelRecognitionLocked()
	gen := s.recognitionGen
	s.recognitionTimer = s.scheduler.AfterFunc(s.recognitionDelay, func() {
		s.interpret("", gen, deliverTimer)
	})
}

func (s *Session) cancelRecognitionLocked() {
	if s.recognitionTimer != nil {
		s.recognitionTimer.Stop()
		s.recognitionTimer = nil
	}
	s.recognitionGen++
}

func (s *Session) changedLocked() State {
	s.version++
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	return State{
		Active:          s.active,
		Listening:       s.listening,
		FeedbackMessage: s.feedback,
		LanguageCode:    s.languageCode,
		Version:         s.version,
	}
}

func (s *Session) notify(st State) {
	if s.onChange != nil {
		s.onChange(st)
	}
}
