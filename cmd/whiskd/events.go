package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events
// ============================================================================
// Events are the only input to the reducer. Input sources (host websocket,
// IPC socket, keyboard devices) translate raw input into these payload types;
// the daemon loop stamps them with a TimedEvent and adds Ticks and effect
// observations.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// PointerMoved reports the latest pointer position in host pixels.
type PointerMoved struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (PointerMoved) eventMarker() {}

// BodyObserved reports the dragged body's position and angular velocity
// from the host physics step.
type BodyObserved struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	AngularVelocity float64 `json:"angular_velocity"`
}

func (BodyObserved) eventMarker() {}

// DragStarted is the press-on-object edge.
type DragStarted struct{}

func (DragStarted) eventMarker() {}

// DragEnded is the release edge.
type DragEnded struct{}

func (DragEnded) eventMarker() {}

// MarkNoticed records that the participant reported noticing a change.
type MarkNoticed struct{}

func (MarkNoticed) eventMarker() {}

// DumpAnalytics requests the full analytics report on the diagnostic channel.
type DumpAnalytics struct{}

func (DumpAnalytics) eventMarker() {}

// TimedEvent wraps an input payload with the time the daemon received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is the delta in seconds since the previous tick.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// RequestStateSnapshot asks the reducer for a snapshot delivered on Reply.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// PhysicsApplied is emitted after the host sink accepted a physics write.
type PhysicsApplied struct {
	Output PhysicsOutput
	At     time.Time
}

func (PhysicsApplied) eventMarker() {}

// EffectFailed is emitted when executing a Command fails.
type EffectFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (EffectFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete input Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "pointer_moved":
		var e PointerMoved
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal PointerMoved: %w", err)
		}
		return e, nil

	case "body_observed":
		var e BodyObserved
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal BodyObserved: %w", err)
		}
		return e, nil

	case "drag_started":
		return DragStarted{}, nil
	case "drag_ended":
		return DragEnded{}, nil
	case "mark_noticed":
		return MarkNoticed{}, nil
	case "dump_analytics":
		return DumpAnalytics{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an input Event into a JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case PointerMoved:
		env.Type = "pointer_moved"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PointerMoved: %w", err)
		}
		env.Data = data

	case BodyObserved:
		env.Type = "body_observed"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal BodyObserved: %w", err)
		}
		env.Data = data

	case DragStarted:
		env.Type = "drag_started"
	case DragEnded:
		env.Type = "drag_ended"
	case MarkNoticed:
		env.Type = "mark_noticed"
	case DumpAnalytics:
		env.Type = "dump_analytics"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
