package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// inputEventSize is the wire size of one inputEvent on 64-bit kernels.
var inputEventSize = binary.Size(inputEvent{})

func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	if len(buf) < inputEventSize {
		return ev, fmt.Errorf("short input event: %d bytes", len(buf))
	}
	err := binary.Read(bytes.NewReader(buf[:inputEventSize]), binary.LittleEndian, &ev)
	return ev, err
}

// translateKey maps operator keyboard presses to daemon events.
// Releases and autorepeat are ignored so holding a key marks once.
func translateKey(ev inputEvent) (Event, bool) {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return nil, false
	}
	switch ev.Code {
	case KEY_C:
		return MarkNoticed{}, true
	case KEY_D:
		return DumpAnalytics{}, true
	default:
		return nil, false
	}
}
