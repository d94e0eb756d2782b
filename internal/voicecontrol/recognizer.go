package voicecontrol

import "sync"

// Recognizer produces the transcript delivered when a recognition attempt
// completes. It stands in for a speech-to-text backend and is called without
// the session lock held.
type Recognizer interface {
	Recognize() string
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func() string

func (f RecognizerFunc) Recognize() string { return f() }

// StaticRecognizer always hears the same text.
type StaticRecognizer string

func (r StaticRecognizer) Recognize() string { return string(r) }

// ScriptedRecognizer replays transcripts in order and then repeats the last one.
type ScriptedRecognizer struct {
	mu    sync.Mutex
	lines []string
	next  int
}

func NewScriptedRecognizer(lines ...string) *ScriptedRecognizer {
	return &ScriptedRecognizer{lines: lines}
}

func (r *ScriptedRecognizer) Recognize() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	if r.next >= len(r.lines) {
		return r.lines[len(r.lines)-1]
	}
	line := r.lines[r.next]
	r.next++
	return line
}
