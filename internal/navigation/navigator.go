package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/civicvoice/internal/broadcast"
	"github.com/ent0n29/civicvoice/internal/protocol"
)

var ErrUnknownDestination = errors.New("unknown navigation destination")

// Navigator moves a client's router to another screen.
type Navigator interface {
	Replace(ctx context.Context, destination string) error
	Push(ctx context.Context, destination string, params map[string]string) error
}

// Event is a validated navigation request bound to one session.
type Event struct {
	SessionID   string
	Action      string
	Destination string
	Params      map[string]string
	At          time.Time
}

// Message converts the event to its wire form.
func (e Event) Message() protocol.Navigation {
	return protocol.Navigation{
		Type:        protocol.TypeNavigation,
		SessionID:   e.SessionID,
		Action:      e.Action,
		Destination: e.Destination,
		Params:      e.Params,
	}
}

// Sink delivers navigation events somewhere a client router can see them.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

type sessionNavigator struct {
	sessionID string
	sink      Sink
}

// ForSession returns a Navigator that validates destinations and publishes
// events for sessionID to sink.
func ForSession(sessionID string, sink Sink) Navigator {
	return &sessionNavigator{sessionID: sessionID, sink: sink}
}

func (n *sessionNavigator) Replace(ctx context.Context, destination string) error {
	return n.publish(ctx, protocol.NavigationReplace, destination, nil)
}

func (n *sessionNavigator) Push(ctx context.Context, destination string, params map[string]string) error {
	return n.publish(ctx, protocol.NavigationPush, destination, params)
}

func (n *sessionNavigator) publish(ctx context.Context, action, destination string, params map[string]string) error {
	destination = strings.TrimSpace(destination)
	if !Known(destination) {
		return fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
	}
	if n.sink == nil {
		return nil
	}
	var copied map[string]string
	if len(params) > 0 {
		copied = make(map[string]string, len(params))
		for k, v := range params {
			copied[k] = v
		}
	}
	return n.sink.Publish(ctx, Event{
		SessionID:   n.sessionID,
		Action:      action,
		Destination: destination,
		Params:      copied,
		At:          time.Now().UTC(),
	})
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// HubSink pushes events to websocket subscribers of the session.
type HubSink struct {
	Hub *broadcast.Hub
}

func (s HubSink) Publish(_ context.Context, ev Event) error {
	if s.Hub == nil {
		return nil
	}
	s.Hub.Broadcast(ev.SessionID, ev.Message())
	return nil
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
