package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StateChangedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(StateChangedEvent{SessionID: "s1", From: "starting", To: "running"})

	select {
	case got := <-received:
		if got.To != "running" || got.SessionID != "s1" {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_TypesAreIsolated(t *testing.T) {
	bus := New()
	toggles := make(chan EffectToggledEvent, 1)

	unsub := bus.Subscribe(func(e EffectToggledEvent) {
		toggles <- e
	})
	defer unsub()

	bus.Publish(StreamDegradedEvent{Descriptor: "ws://nowhere"})
	bus.Publish(EffectToggledEvent{Effect: "Invert", Enabled: true})

	select {
	case got := <-toggles:
		if got.Effect != "Invert" || !got.Enabled {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for toggle event")
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}
