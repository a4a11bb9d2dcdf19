package events

import "time"

// Event type identifiers for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeEffectToggled
	TypeStreamDegraded
)

// Event is implemented by everything published on the bus.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every pipeline state transition.
type StateChangedEvent struct {
	SessionID string
	From      string
	To        string
	Timestamp time.Time
}

func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// EffectToggledEvent is published when the user flips an effect.
type EffectToggledEvent struct {
	SessionID string
	Effect    string
	Enabled   bool
	Timestamp time.Time
}

func (e EffectToggledEvent) Type() uint32 { return TypeEffectToggled }

// StreamDegradedEvent is published when the session continues without a stream sink.
type StreamDegradedEvent struct {
	SessionID  string
	Descriptor string
	Error      string
	Timestamp  time.Time
}

func (e StreamDegradedEvent) Type() uint32 { return TypeStreamDegraded }
