package navigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ent0n29/civicvoice/internal/broadcast"
	"github.com/ent0n29/civicvoice/internal/protocol"
)

func TestReplaceKnownDestination(t *testing.T) {
	rec := NewRecorder()
	nav := ForSession("s1", rec)

	if err := nav.Replace(context.Background(), "HomeScreen"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.SessionID != "s1" || ev.Action != protocol.NavigationReplace || ev.Destination != "HomeScreen" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestPushCopiesParams(t *testing.T) {
	rec := NewRecorder()
	nav := ForSession("s1", rec)
	params := map[string]string{"event_id": "42"}

	if err := nav.Push(context.Background(), "EventDetailScreen", params); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	params["event_id"] = "mutated"
	if got := rec.Events()[0].Params["event_id"]; got != "42" {
		t.Fatalf("Params[event_id] = %q, want %q", got, "42")
	}
}

func TestUnknownDestinationRejected(t *testing.T) {
	rec := NewRecorder()
	nav := ForSession("s1", rec)

	err := nav.Replace(context.Background(), "NowhereScreen")
	if !errors.Is(err, ErrUnknownDestination) {
		t.Fatalf("Replace() error = %v, want ErrUnknownDestination", err)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("unknown destination was published")
	}
}

func TestHubSinkDeliversWireMessage(t *testing.T) {
	hub := broadcast.NewHub()
	ch, cancel := hub.Subscribe("s1", 2)
	defer cancel()

	nav := ForSession("s1", HubSink{Hub: hub})
	if err := nav.Replace(context.Background(), "HomeScreen"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	msg, ok := (<-ch).(protocol.Navigation)
	if !ok {
		t.Fatalf("hub message type mismatch")
	}
	if msg.Type != protocol.TypeNavigation || msg.Destination != "HomeScreen" {
		t.Fatalf("unexpected navigation message: %+v", msg)
	}
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, Event) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	rec := NewRecorder()
	nav := ForSession("s1", Multi{failingSink{err: boom}, nil, rec})

	err := nav.Replace(context.Background(), "HomeScreen")
	if !errors.Is(err, boom) {
		t.Fatalf("Replace() error = %v, want boom", err)
	}
	if len(rec.Events()) != 1 {
		t.Fatalf("healthy sink missed the event")
	}
}

func TestRoutesTabsFirst(t *testing.T) {
	all := Routes()
	if len(all) < 2 || !all[0].Tab || !all[1].Tab {
		t.Fatalf("tabs not listed first: %+v", all[:2])
	}
	if all[2].Tab {
		t.Fatalf("expected exactly two tabs, got third %+v", all[2])
	}
	if !Known(InitialRoute) {
		t.Fatalf("initial route %q is not registered", InitialRoute)
	}
}

func TestRedisChannelName(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	p := NewRedisPublisherWithClient(client, "")
	if got := p.Channel("abc"); got != DefaultChannelPrefix+":abc" {
		t.Fatalf("Channel() = %q", got)
	}
}

func TestRedisPublishFailsWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	p := NewRedisPublisherWithClient(client, "test")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := p.Publish(ctx, Event{SessionID: "abc", Action: "replace", Destination: "HomeScreen"})
	if err == nil {
		t.Fatalf("Publish() to unreachable redis should fail")
	}
}
