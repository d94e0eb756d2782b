package voicecontrol

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recordingNavigator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNavigator) Replace(_ context.Context, destination string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, destination)
	return n.err
}

func (n *recordingNavigator) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// leakyScheduler keeps every callback and ignores Stop, so tests can replay a
// timer that lost the race against cancellation.
type leakyScheduler struct {
	callbacks []func()
}

type leakyTimer struct{}

func (leakyTimer) Stop() bool { return true }

func (l *leakyScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	l.callbacks = append(l.callbacks, f)
	return leakyTimer{}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestSession(t *testing.T, opts Options) (*Session, *ManualScheduler, *recordingNavigator) {
	t.Helper()
	sched := NewManualScheduler()
	nav := &recordingNavigator{}
	if opts.Scheduler == nil {
		opts.Scheduler = sched
	}
	if opts.Navigator == nil {
		opts.Navigator = nav
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s := New(opts)
	t.Cleanup(s.Dispose)
	return s, sched, nav
}

func TestStartListeningWhileInactiveIsNoop(t *testing.T) {
	s, sched, _ := newTestSession(t, Options{})

	if got := s.StartListening(); got != ListenIgnoredInactive {
		t.Fatalf("StartListening() = %q, want %q", got, ListenIgnoredInactive)
	}
	st := s.State()
	if st.Listening || st.Active || st.FeedbackMessage != "" {
		t.Fatalf("state changed on ignored start: %+v", st)
	}
	if sched.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", sched.Pending())
	}
}

func TestStartListeningWhileListeningSchedulesOnce(t *testing.T) {
	s, sched, _ := newTestSession(t, Options{})
	s.Activate()

	if got := s.StartListening(); got != ListenStarted {
		t.Fatalf("StartListening() = %q, want %q", got, ListenStarted)
	}
	pending := sched.Pending()
	before := s.State()
	for i := 0; i < 5; i++ {
		if got := s.StartListening(); got != ListenIgnoredBusy {
			t.Fatalf("StartListening() #%d = %q, want %q", i, got, ListenIgnoredBusy)
		}
	}
	if sched.Pending() != pending {
		t.Fatalf("Pending() = %d, want %d", sched.Pending(), pending)
	}
	if after := s.State(); after != before {
		t.Fatalf("state changed on redundant start: before %+v after %+v", before, after)
	}

	// One recognition plus one feedback clear.
	if pending != 2 {
		t.Fatalf("Pending() = %d, want 2", pending)
	}
}

func TestHomeCommandNavigatesAndDeactivates(t *testing.T) {
	for _, transcript := range []string{"NAVIGATE TO HOME", "pulang ke rumah", "Smart help me navigate to home page"} {
		t.Run(transcript, func(t *testing.T) {
			s, _, nav := newTestSession(t, Options{})
			s.Activate()

			out := s.OnRecognitionResult(transcript)
			if !out.Matched || out.Intent != IntentNavigateHome {
				t.Fatalf("outcome = %+v, want navigate_home match", out)
			}
			st := s.State()
			if st.Active {
				t.Fatalf("Active = true, want false after home command")
			}
			if st.Listening {
				t.Fatalf("Listening = true, want false")
			}
			calls := nav.Calls()
			if len(calls) != 1 || calls[0] != HomeDestination {
				t.Fatalf("navigation calls = %v, want [%s]", calls, HomeDestination)
			}
		})
	}
}

func TestUnrecognizedTranscriptKeepsActivation(t *testing.T) {
	for _, active := range []bool{true, false} {
		s, _, nav := newTestSession(t, Options{})
		if active {
			s.Activate()
		}

		out := s.OnRecognitionResult("play music")
		if out.Matched {
			t.Fatalf("Matched = true, want false")
		}
		st := s.State()
		if st.Active != active {
			t.Fatalf("Active = %v, want %v", st.Active, active)
		}
		if st.Listening {
			t.Fatalf("Listening = true, want false")
		}
		if st.FeedbackMessage != NotUnderstoodMessage {
			t.Fatalf("FeedbackMessage = %q, want %q", st.FeedbackMessage, NotUnderstoodMessage)
		}
		if len(nav.Calls()) != 0 {
			t.Fatalf("navigation calls = %v, want none", nav.Calls())
		}
	}
}

func TestFeedbackClearUsesLatestMessage(t *testing.T) {
	s, sched, _ := newTestSession(t, Options{})

	var (
		mu     sync.Mutex
		clears int
	)
	s.onChange = func(st State) {
		if st.FeedbackMessage == "" {
			mu.Lock()
			clears++
			mu.Unlock()
		}
	}

	s.setFeedback("first")
	sched.Advance(3 * time.Second)
	s.setFeedback("second")
	if sched.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 feedback clear", sched.Pending())
	}

	// The first message's deadline passes without clearing the second.
	sched.Advance(2500 * time.Millisecond)
	if got := s.State().FeedbackMessage; got != "second" {
		t.Fatalf("FeedbackMessage = %q, want %q", got, "second")
	}

	sched.Advance(2500 * time.Millisecond)
	if got := s.State().FeedbackMessage; got != "" {
		t.Fatalf("FeedbackMessage = %q, want empty", got)
	}
	sched.Advance(10 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	if clears != 1 {
		t.Fatalf("clears = %d, want 1", clears)
	}
}

func TestDeactivateCancelsPendingRecognition(t *testing.T) {
	s, sched, nav := newTestSession(t, Options{})
	s.Activate()
	s.StartListening()

	s.Deactivate()
	st := s.State()
	if st.Active || st.Listening || st.FeedbackMessage != "" {
		t.Fatalf("state after Deactivate = %+v", st)
	}
	if sched.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", sched.Pending())
	}

	sched.Advance(time.Minute)
	if after := s.State(); after != st {
		t.Fatalf("state changed after deactivation: %+v -> %+v", st, after)
	}
	if len(nav.Calls()) != 0 {
		t.Fatalf("navigation calls = %v, want none", nav.Calls())
	}
}

func TestStaleRecognitionCallbackIsInert(t *testing.T) {
	leaky := &leakyScheduler{}
	var outcomes []Outcome
	s, _, nav := newTestSession(t, Options{
		Scheduler: leaky,
		OnOutcome: func(o Outcome) { outcomes = append(outcomes, o) },
	})
	s.Activate()
	s.StartListening()
	s.Deactivate()
	st := s.State()

	// Fire everything, including the superseded recognition and feedback timers.
	for _, cb := range leaky.callbacks {
		cb()
	}
	if after := s.State(); after != st {
		t.Fatalf("stale callback changed state: %+v -> %+v", st, after)
	}
	if len(nav.Calls()) != 0 || len(outcomes) != 0 {
		t.Fatalf("stale callback produced calls=%v outcomes=%v", nav.Calls(), outcomes)
	}

	// Restarting arms a fresh recognition; the old one stays dead.
	s.Activate()
	s.StartListening()
	leaky.callbacks[1]()
	if !s.State().Listening {
		t.Fatalf("stale callback ended the new recognition")
	}
}

func TestRestartSupersedesPreviousRecognition(t *testing.T) {
	leaky := &leakyScheduler{}
	s, _, nav := newTestSession(t, Options{
		Scheduler:  leaky,
		Recognizer: StaticRecognizer("play music"),
	})
	s.Activate()
	s.StartListening()
	first := leaky.callbacks[1] // recognition is scheduled after the feedback clear
	s.OnRecognitionResult("hello")
	s.StartListening()

	first()
	if !s.State().Listening {
		t.Fatalf("superseded recognition delivered a result")
	}
	if len(nav.Calls()) != 0 {
		t.Fatalf("navigation calls = %v, want none", nav.Calls())
	}
}

func TestDisposeMakesEverythingInert(t *testing.T) {
	s, sched, nav := newTestSession(t, Options{})
	s.Activate()
	s.StartListening()
	s.Dispose()

	if !s.Closed() {
		t.Fatalf("Closed() = false after Dispose")
	}
	if got := s.StartListening(); got != ListenIgnoredClosed {
		t.Fatalf("StartListening() = %q, want %q", got, ListenIgnoredClosed)
	}
	s.Activate()
	if s.State().Active {
		t.Fatalf("Activate() took effect after Dispose")
	}
	out := s.OnRecognitionResult("navigate to home")
	if !out.Stale {
		t.Fatalf("OnRecognitionResult() after Dispose = %+v, want stale", out)
	}
	sched.Advance(time.Minute)
	if len(nav.Calls()) != 0 {
		t.Fatalf("navigation calls = %v, want none", nav.Calls())
	}
}

func TestActivateDeactivateIdempotent(t *testing.T) {
	var changes int
	s, _, _ := newTestSession(t, Options{OnChange: func(State) { changes++ }})

	s.Activate()
	s.Activate()
	if changes != 1 {
		t.Fatalf("changes after double Activate = %d, want 1", changes)
	}
	s.Deactivate()
	s.Deactivate()
	if changes != 2 {
		t.Fatalf("changes after double Deactivate = %d, want 2", changes)
	}
}

func TestNavigationFailureDoesNotBreakSession(t *testing.T) {
	nav := &recordingNavigator{err: errors.New("router offline")}
	s, _, _ := newTestSession(t, Options{Navigator: nav})
	s.Activate()

	out := s.OnRecognitionResult("navigate to home")
	if out.NavigationErr == nil {
		t.Fatalf("NavigationErr = nil, want error")
	}
	st := s.State()
	if st.Active || st.Listening {
		t.Fatalf("state = %+v, want inactive and idle", st)
	}
	if st.FeedbackMessage != "Ok noted Jun, Now i will redirect to Home Page." {
		t.Fatalf("FeedbackMessage = %q", st.FeedbackMessage)
	}
}

func TestFullListenCycle(t *testing.T) {
	var outcomes []Outcome
	s, sched, nav := newTestSession(t, Options{
		UserName:   "Ayu",
		Recognizer: StaticRecognizer("navigate to home"),
		OnOutcome:  func(o Outcome) { outcomes = append(outcomes, o) },
	})

	initial := s.State()
	s.StartListening()
	if after := s.State(); after != initial {
		t.Fatalf("inactive start changed state: %+v -> %+v", initial, after)
	}

	s.Activate()
	s.StartListening()
	st := s.State()
	if !st.Listening || st.FeedbackMessage != ListeningMessage {
		t.Fatalf("state after start = %+v", st)
	}

	sched.Advance(DefaultRecognitionDelay - time.Millisecond)
	if !s.State().Listening {
		t.Fatalf("recognition delivered before its delay")
	}
	sched.Advance(time.Millisecond)

	st = s.State()
	if st.Listening || st.Active {
		t.Fatalf("state after result = %+v, want idle and inactive", st)
	}
	want := "Ok noted Ayu, Now i will redirect to Home Page."
	if st.FeedbackMessage != want {
		t.Fatalf("FeedbackMessage = %q, want %q", st.FeedbackMessage, want)
	}
	if calls := nav.Calls(); len(calls) != 1 || calls[0] != HomeDestination {
		t.Fatalf("navigation calls = %v, want one %s", calls, HomeDestination)
	}
	if len(outcomes) != 1 || outcomes[0].Transcript != "navigate to home" {
		t.Fatalf("outcomes = %+v", outcomes)
	}

	sched.Advance(DefaultFeedbackClearDelay)
	if got := s.State().FeedbackMessage; got != "" {
		t.Fatalf("FeedbackMessage = %q, want cleared", got)
	}
}

func TestUnmatchedCycleStaysArmed(t *testing.T) {
	s, sched, _ := newTestSession(t, Options{
		Recognizer: NewScriptedRecognizer("what is the weather", "pulang ke rumah"),
	})
	s.Activate()

	s.StartListening()
	sched.Advance(DefaultRecognitionDelay)
	st := s.State()
	if !st.Active || st.Listening || st.FeedbackMessage != NotUnderstoodMessage {
		t.Fatalf("state after miss = %+v", st)
	}

	if got := s.StartListening(); got != ListenStarted {
		t.Fatalf("second StartListening() = %q, want %q", got, ListenStarted)
	}
	sched.Advance(DefaultRecognitionDelay)
	if s.State().Active {
		t.Fatalf("Active = true after matched retry")
	}
}

func TestLanguageCodeCarriedInState(t *testing.T) {
	s, _, _ := newTestSession(t, Options{LanguageCode: "ko"})
	if got := s.State().LanguageCode; got != "ko" {
		t.Fatalf("LanguageCode = %q, want %q", got, "ko")
	}
}

func TestRecognizerMayReadSession(t *testing.T) {
	var s *Session
	var seen State
	s, sched, nav := newTestSession(t, Options{
		Recognizer: RecognizerFunc(func() string {
			seen = s.State()
			return "navigate to home"
		}),
	})
	s.Activate()
	s.StartListening()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Advance(DefaultRecognitionDelay)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("recognition did not complete; recognizer blocked on the session")
	}

	if !seen.Listening {
		t.Fatalf("recognizer saw %+v, want listening", seen)
	}
	if calls := nav.Calls(); len(calls) != 1 || calls[0] != HomeDestination {
		t.Fatalf("navigation calls = %v, want [%s]", calls, HomeDestination)
	}
}

func TestDeactivateDuringRecognizeDropsResult(t *testing.T) {
	var s *Session
	var outcomes []Outcome
	s, sched, nav := newTestSession(t, Options{
		Recognizer: RecognizerFunc(func() string {
			s.Deactivate()
			return "navigate to home"
		}),
		OnOutcome: func(o Outcome) { outcomes = append(outcomes, o) },
	})
	s.Activate()
	s.StartListening()
	sched.Advance(DefaultRecognitionDelay)

	if len(nav.Calls()) != 0 {
		t.Fatalf("navigation calls = %v, want none", nav.Calls())
	}
	if len(outcomes) != 0 {
		t.Fatalf("outcomes = %+v, want none", outcomes)
	}
	if st := s.State(); st.Active || st.Listening || st.FeedbackMessage != "" {
		t.Fatalf("state = %+v, want disarmed and quiet", st)
	}
}

func TestDeliverTranscriptRequiresArmedSession(t *testing.T) {
	s, _, nav := newTestSession(t, Options{})

	out := s.DeliverTranscript("navigate to home")
	if !out.Ignored || out.Matched {
		t.Fatalf("DeliverTranscript() on idle session = %+v, want ignored", out)
	}
	if len(nav.Calls()) != 0 {
		t.Fatalf("navigation calls = %v, want none", nav.Calls())
	}
	if st := s.State(); st.FeedbackMessage != "" {
		t.Fatalf("FeedbackMessage = %q, want empty", st.FeedbackMessage)
	}

	s.Activate()
	out = s.DeliverTranscript("navigate to home")
	if out.Ignored || !out.Matched {
		t.Fatalf("DeliverTranscript() on active session = %+v, want match", out)
	}
	if calls := nav.Calls(); len(calls) != 1 {
		t.Fatalf("navigation calls = %v, want one", calls)
	}
}
