package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonasfh/picobell/internal/doorbell"
)

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{topic: topic, retained: retained, payload: payload})
	return nil
}

func TestSink_PublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, Config{Prefix: "home/bell/"})

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sink.Publish(doorbell.Event{Kind: doorbell.EventRing, Mode: "LISTENING", DeviceID: "abc", Time: at})
	sink.Publish(doorbell.Event{Kind: doorbell.EventMode, Mode: "OPENING", DeviceID: "abc", Time: at, Detail: "button"})
	sink.Close()

	if len(pub.messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(pub.messages))
	}

	first := pub.messages[0]
	if first.topic != "home/bell/abc/events" || first.retained {
		t.Errorf("first message = %s retained=%v", first.topic, first.retained)
	}
	var got doorbell.Event
	if err := json.Unmarshal(first.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Kind != doorbell.EventRing || got.DeviceID != "abc" || !got.Time.Equal(at) {
		t.Errorf("decoded = %+v", got)
	}

	mode := pub.messages[2]
	if mode.topic != "home/bell/abc/mode" || !mode.retained || string(mode.payload) != "OPENING" {
		t.Errorf("mode message = %s retained=%v payload=%q", mode.topic, mode.retained, mode.payload)
	}

	sent, dropped, failed := sink.Stats()
	if sent != 2 || dropped != 0 || failed != 0 {
		t.Errorf("Stats() = %d, %d, %d", sent, dropped, failed)
	}
}

func TestSink_DefaultPrefix(t *testing.T) {
	sink := NewSink(&fakePublisher{}, Config{})
	defer sink.Close()

	if got := sink.EventsTopic("dev"); got != "picobell/dev/events" {
		t.Errorf("EventsTopic() = %q", got)
	}
	if got := sink.ModeTopic("dev"); got != "picobell/dev/mode" {
		t.Errorf("ModeTopic() = %q", got)
	}
}

func TestSink_PublishFailureIsCounted(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	sink := NewSink(pub, Config{})

	sink.Publish(doorbell.Event{Kind: doorbell.EventRing, DeviceID: "abc"})
	sink.Close()

	sent, _, failed := sink.Stats()
	if sent != 0 || failed != 1 {
		t.Errorf("sent = %d, failed = %d", sent, failed)
	}
}

func TestSink_PublishAfterCloseIsIgnored(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, Config{})
	sink.Close()
	sink.Close()

	sink.Publish(doorbell.Event{Kind: doorbell.EventRing, DeviceID: "abc"})
	if len(pub.messages) != 0 {
		t.Errorf("messages = %d, want 0", len(pub.messages))
	}
}

func TestConnect_RequiresBroker(t *testing.T) {
	if _, err := Connect(Config{}); err == nil {
		t.Error("Connect() without broker should fail")
	}
}
