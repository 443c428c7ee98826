// Package dispatch decides what a confirmed scan code does.
package dispatch

import (
	"fmt"

	"gestured/internal/action"
	"gestured/internal/scancode"
)

// Filter is a do-not-disturb interruption filter.
type Filter int

const (
	FilterAll      Filter = iota + 1 // interruptions off; everything gets through
	FilterPriority                   // priority only
	FilterAlarms                     // alarms only
	FilterNone                       // total silence
)

func (f Filter) String() string {
	switch f {
	case FilterAll:
		return "all"
	case FilterPriority:
		return "priority"
	case FilterAlarms:
		return "alarms"
	case FilterNone:
		return "none"
	default:
		return fmt.Sprintf("filter(%d)", int(f))
	}
}

// RingerMode is the audio ringer mode.
type RingerMode int

const (
	RingerNormal RingerMode = iota + 1
	RingerVibrate
	RingerSilent
)

func (m RingerMode) String() string {
	switch m {
	case RingerNormal:
		return "normal"
	case RingerVibrate:
		return "vibrate"
	case RingerSilent:
		return "silent"
	default:
		return fmt.Sprintf("ringer(%d)", int(m))
	}
}

// Kind classifies a Decision.
type Kind int

const (
	Ignore Kind = iota
	ModeChange
	InvokeAction
)

func (k Kind) String() string {
	switch k {
	case Ignore:
		return "ignore"
	case ModeChange:
		return "mode-change"
	case InvokeAction:
		return "invoke-action"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Decision is the outcome for one confirmed event.
//
// For ModeChange, Filter and Ringer are applied in that order; a zero value
// means "leave unchanged". For InvokeAction, Action is the reference to run.
type Decision struct {
	Kind   Kind
	Filter Filter
	Ringer RingerMode
	Action action.Ref
}

// Resolver resolves a gesture code to its effective action.
type Resolver interface {
	Resolve(code scancode.Code) action.Ref
}

var modeTable = map[scancode.Code]Decision{
	scancode.TotalSilence: {Kind: ModeChange, Filter: FilterNone},
	scancode.AlarmsOnly:   {Kind: ModeChange, Filter: FilterAlarms},
	scancode.PriorityOnly: {Kind: ModeChange, Filter: FilterPriority, Ringer: RingerNormal},
	scancode.None:         {Kind: ModeChange, Filter: FilterAll, Ringer: RingerNormal},
	scancode.Vibrate:      {Kind: ModeChange, Ringer: RingerVibrate},
	scancode.Ring:         {Kind: ModeChange, Ringer: RingerNormal},
}

// Decide maps code to a Decision. It has no side effects; resolver is only
// consulted for gesture codes.
func Decide(code scancode.Code, resolver Resolver) Decision {
	if d, ok := modeTable[code]; ok {
		return d
	}

	ref := resolver.Resolve(code)
	if ref.IsNull() {
		return Decision{Kind: Ignore}
	}
	return Decision{Kind: InvokeAction, Action: ref}
}
