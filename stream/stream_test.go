package stream

import (
	"testing"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("viewer")

	msg, err := record.NewMessage("s1", record.RoleUser, "hello")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	b.Publish(msg)

	select {
	case evt := <-ch:
		if evt.Type != record.TypeMessage || evt.SessionID != "s1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Record.ID() != msg.RecordID {
			t.Fatalf("event record = %s, want %s", evt.Record.ID(), msg.RecordID)
		}
	default:
		t.Fatalf("subscriber received nothing")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("viewer")
	b.Unsubscribe("viewer")

	if _, open := <-ch; open {
		t.Fatalf("channel should be closed after Unsubscribe")
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	b.Subscribe("stalled")

	msg, err := record.NewMessage("s1", record.RoleUser, "flood")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	// Exceed the per-subscriber buffer without anyone draining it.
	for i := 0; i < 200; i++ {
		b.Publish(msg)
	}
}

func TestNilBrokerPublish(t *testing.T) {
	var b *Broker
	msg, err := record.NewMessage("s1", record.RoleUser, "nowhere")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	b.Publish(msg)
}
