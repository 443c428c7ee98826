// Package action defines the opaque action references routed by gestured.
package action

import "strings"

// Ref identifies an abstract, user-facing action. gestured never interprets
// it; the action engine that receives it does.
type Ref string

// Null is the "do nothing" sentinel. A gesture resolved to Null is ignored
// without haptic feedback.
const Null Ref = "**null**"

// NullName is the symbolic spelling of Null accepted from preference
// stores and action catalogs.
const NullName Ref = "ACTION_NULL"

// IsNull reports whether r means "no action".
func (r Ref) IsNull() bool {
	return r == "" || r == Null || r == NullName
}

// Valid reports whether r is usable as a stored override. Blank values and
// values containing control characters are rejected.
func (r Ref) Valid() bool {
	s := string(r)
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
