package dispatch

import (
	"testing"

	"gestured/internal/action"
	"gestured/internal/scancode"
)

type mapResolver struct {
	refs  map[scancode.Code]action.Ref
	calls int
}

func (m *mapResolver) Resolve(code scancode.Code) action.Ref {
	m.calls++
	return m.refs[code]
}

func TestDecideModeCodes(t *testing.T) {
	tests := []struct {
		code   scancode.Code
		filter Filter
		ringer RingerMode
	}{
		{scancode.TotalSilence, FilterNone, 0},
		{scancode.AlarmsOnly, FilterAlarms, 0},
		{scancode.PriorityOnly, FilterPriority, RingerNormal},
		{scancode.None, FilterAll, RingerNormal},
		{scancode.Vibrate, 0, RingerVibrate},
		{scancode.Ring, 0, RingerNormal},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			r := &mapResolver{}
			d := Decide(tt.code, r)
			want := Decision{Kind: ModeChange, Filter: tt.filter, Ringer: tt.ringer}
			if d != want {
				t.Errorf("got %+v, expected %+v", d, want)
			}
			if r.calls != 0 {
				t.Error("mode codes never consult the resolver")
			}
		})
	}
}

func TestDecideGestureCodes(t *testing.T) {
	r := &mapResolver{refs: map[scancode.Code]action.Ref{
		50:  action.Null,
		250: "camera",
	}}

	tests := map[scancode.Code]Decision{
		250: {Kind: InvokeAction, Action: "camera"},
		50:  {Kind: Ignore},
		51:  {Kind: Ignore},
	}
	for code, want := range tests {
		if got := Decide(code, r); got != want {
			t.Errorf("Decide(%d) = %+v, expected %+v", code, got, want)
		}
	}
}

func TestStrings(t *testing.T) {
	for got, want := range map[string]string{
		FilterAlarms.String():  "alarms",
		RingerVibrate.String(): "vibrate",
		InvokeAction.String():  "invoke-action",
	} {
		if got != want {
			t.Errorf("got %q, expected %q", got, want)
		}
	}
}
