package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *memorySink) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func TestBusFansOutToEverySink(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	bus := NewBus(quietLogger(), a, b)
	ctx := context.Background()

	channelID, err := bus.CreateTransitChannel(ctx, []int64{1, 2}, "Kessler Run", "Vega Station")
	if err != nil {
		t.Fatalf("create transit channel: %v", err)
	}
	if !strings.HasPrefix(channelID, "transit-") {
		t.Fatalf("channel id=%q", channelID)
	}
	if err := bus.Send(ctx, channelID, Payload{Kind: "arrival", Title: "Arrived"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, sink := range []*memorySink{a, b} {
		if len(sink.events) != 2 {
			t.Fatalf("events=%d want 2", len(sink.events))
		}
		if sink.events[0].Type != EventChannelCreate || sink.events[1].Type != EventSend {
			t.Fatalf("types=%s,%s", sink.events[0].Type, sink.events[1].Type)
		}
		if sink.events[1].Payload == nil || sink.events[1].Payload.Kind != "arrival" {
			t.Fatalf("payload=%+v", sink.events[1].Payload)
		}
		if sink.events[0].ID == "" || sink.events[0].ID == sink.events[1].ID {
			t.Fatalf("event ids not unique: %q %q", sink.events[0].ID, sink.events[1].ID)
		}
	}
}

func TestBusToleratesPartialSinkFailure(t *testing.T) {
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("down") })
	ok := &memorySink{}

	bus := NewBus(quietLogger(), failing, ok)
	if err := bus.NotifyUser(context.Background(), 7, Payload{Kind: "job_ready"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	onlyFailing := NewBus(quietLogger(), failing)
	if err := onlyFailing.NotifyUser(context.Background(), 7, Payload{Kind: "job_ready"}); err == nil {
		t.Fatal("expected error when every sink fails")
	}
}

func TestLocationChannelIsStable(t *testing.T) {
	bus := NewBus(quietLogger())
	id1, _ := bus.LocationChannel(context.Background(), 10, 4, nil)
	id2, _ := bus.LocationChannel(context.Background(), 10, 4, nil)
	if id1 != id2 || id1 != "location-10-4" {
		t.Fatalf("ids=%q,%q", id1, id2)
	}
}

func TestHubStreamsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(quietLogger(), func(*http.Request) bool { return true })
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration is asynchronous; publish until the client sees a frame.
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	received := make(chan Event, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var e Event
		if json.Unmarshal(data, &e) == nil {
			received <- e
		}
	}()

	for time.Now().Before(deadline) {
		if err := hub.Publish(ctx, Event{Type: EventDirect, UserID: 42}); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case e := <-received:
			if e.Type != EventDirect || e.UserID != 42 {
				t.Fatalf("event=%+v", e)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("client never received an event")
}
