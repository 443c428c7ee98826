// Package scancode defines the raw hardware identifiers handled by gestured.
//
// Scan codes are split into two disjoint ranges:
//   - Mode codes: six fixed values (600-605) requesting a system
//     interruption filter or ringer mode change.
//   - Gesture codes: device-specific values below the mode range, each
//     mapped to a configurable action by the gesture catalog.
package scancode

import (
	"fmt"
	"strconv"
)

// Code is a raw scan code reported by the input device.
type Code int

// Mode codes.
const (
	TotalSilence Code = 600
	AlarmsOnly   Code = 601
	PriorityOnly Code = 602
	None         Code = 603
	Vibrate      Code = 604
	Ring         Code = 605
)

// ModeCodes lists every mode code in ascending order.
var ModeCodes = []Code{TotalSilence, AlarmsOnly, PriorityOnly, None, Vibrate, Ring}

// IsMode reports whether c is one of the six mode codes.
func IsMode(c Code) bool {
	return c >= TotalSilence && c <= Ring
}

// IsGesture reports whether c falls in the gesture range.
// Being in range does not mean the device defines a gesture for it.
func IsGesture(c Code) bool {
	return c < TotalSilence
}

// String returns a readable name for mode codes and the number otherwise.
func (c Code) String() string {
	switch c {
	case TotalSilence:
		return "total-silence"
	case AlarmsOnly:
		return "alarms-only"
	case PriorityOnly:
		return "priority-only"
	case None:
		return "none"
	case Vibrate:
		return "vibrate"
	case Ring:
		return "ring"
	default:
		return strconv.Itoa(int(c))
	}
}

// Parse parses a decimal scan code.
func Parse(s string) (Code, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse scan code %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("parse scan code %q: negative", s)
	}
	return Code(n), nil
}
