// Package evdev reads key events from Linux input devices.
//
// Screen-off gesture and mode switches arrive as key events whose identity
// is carried by the MSC_SCAN event the driver emits right before the
// EV_KEY event. Decoder pairs the two and reports the scan code.
package evdev

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Event types and codes used by the decoder.
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvMsc = 0x04

	SynReport = 0x00
	MscScan   = 0x04
)

// EV_KEY values.
const (
	KeyRelease = 0
	KeyPress   = 1
	KeyRepeat  = 2
)

// inputEvent is struct input_event. unix.Timeval has the width of the
// kernel's struct timeval on the build architecture, so binary.Size gives
// 24 bytes on 64-bit and 16 on 32-bit targets.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// EventSize is the size of one input_event on this architecture.
var EventSize = binary.Size(inputEvent{})

// RawEvent is a decoded input_event.
type RawEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// DecodeEvent decodes one native-endian input_event.
func DecodeEvent(buf []byte) (RawEvent, error) {
	if len(buf) < EventSize {
		return RawEvent{}, fmt.Errorf("short input event: %d bytes", len(buf))
	}
	var ev inputEvent
	if err := binary.Read(bytes.NewReader(buf[:EventSize]), binary.NativeEndian, &ev); err != nil {
		return RawEvent{}, fmt.Errorf("decode input event: %w", err)
	}
	sec, nsec := ev.Time.Unix()
	return RawEvent{
		Time:  time.Unix(sec, nsec),
		Type:  ev.Type,
		Code:  ev.Code,
		Value: ev.Value,
	}, nil
}

// EncodeEvent is the inverse of DecodeEvent.
func EncodeEvent(ev RawEvent) []byte {
	raw := inputEvent{
		Time:  unix.NsecToTimeval(ev.Time.UnixNano()),
		Type:  ev.Type,
		Code:  ev.Code,
		Value: ev.Value,
	}
	var buf bytes.Buffer
	buf.Grow(EventSize)
	_ = binary.Write(&buf, binary.NativeEndian, &raw)
	return buf.Bytes()
}

// Key is one key transition with its scan code resolved.
type Key struct {
	// ScanCode is the MSC_SCAN value preceding the key event, or the key
	// code when the driver sent none.
	ScanCode int
	KeyCode  uint16
	Pressed  bool
	Time     time.Time
	Device   string
}

// Decoder pairs MSC_SCAN events with the EV_KEY event that follows them in
// the same report.
type Decoder struct {
	device   string
	scan     int32
	haveScan bool
}

// NewDecoder returns a decoder tagging keys with device.
func NewDecoder(device string) *Decoder {
	return &Decoder{device: device}
}

// Feed consumes one raw event and returns a key when one completes.
// Autorepeat is dropped.
func (d *Decoder) Feed(ev RawEvent) (Key, bool) {
	switch ev.Type {
	case EvMsc:
		if ev.Code == MscScan {
			d.scan = ev.Value
			d.haveScan = true
		}
	case EvSyn:
		if ev.Code == SynReport {
			d.haveScan = false
		}
	case EvKey:
		if ev.Value == KeyRepeat {
			return Key{}, false
		}
		code := int(ev.Code)
		if d.haveScan {
			code = int(d.scan)
			d.haveScan = false
		}
		return Key{
			ScanCode: code,
			KeyCode:  ev.Code,
			Pressed:  ev.Value == KeyPress,
			Time:     ev.Time,
			Device:   d.device,
		}, true
	}
	return Key{}, false
}
