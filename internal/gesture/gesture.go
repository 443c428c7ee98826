// Package gesture holds the device's screen-off gesture catalog.
//
// The catalog maps each gesture scan code to its default action. It is
// built once at startup from a definition resource and is read-only after
// that; nothing in gestured reloads it.
package gesture

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gestured/internal/action"
	"gestured/internal/scancode"
)

// ErrInvalidDefinition is returned for definitions that cannot enter the catalog.
var ErrInvalidDefinition = errors.New("invalid gesture definition")

// Definition describes one gesture.
type Definition struct {
	ScanCode      scancode.Code     `json:"scan_code" yaml:"scan_code"`
	Name          string            `json:"name,omitempty" yaml:"name,omitempty"`
	DefaultAction action.Ref        `json:"default_action" yaml:"default_action"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks that d can be part of a catalog.
func (d Definition) Validate() error {
	if !scancode.IsGesture(d.ScanCode) || d.ScanCode < 0 {
		return fmt.Errorf("%w: scan code %d outside gesture range", ErrInvalidDefinition, d.ScanCode)
	}
	if d.DefaultAction == "" {
		return fmt.Errorf("%w: scan code %d has no default action", ErrInvalidDefinition, d.ScanCode)
	}
	return nil
}

// Catalog is an immutable scan code to gesture mapping.
type Catalog struct {
	device  string
	entries map[scancode.Code]Definition
}

// Empty returns a catalog with no gestures. Mode codes keep working with it.
func Empty() *Catalog {
	return &Catalog{entries: map[scancode.Code]Definition{}}
}

// New builds a catalog from defs. Invalid and duplicate definitions are
// skipped and logged; the first definition for a scan code wins.
func New(device string, defs []Definition, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Catalog{
		device:  device,
		entries: make(map[scancode.Code]Definition, len(defs)),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			logger.Warn("skipping gesture", "scan_code", int(d.ScanCode), "error", err)
			continue
		}
		if _, dup := c.entries[d.ScanCode]; dup {
			logger.Warn("skipping duplicate gesture", "scan_code", int(d.ScanCode))
			continue
		}
		meta := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		d.Metadata = meta
		c.entries[d.ScanCode] = d
	}
	return c
}

// Device returns the device name declared by the resource, if any.
func (c *Catalog) Device() string {
	return c.device
}

// Contains reports whether code has a gesture definition.
func (c *Catalog) Contains(code scancode.Code) bool {
	_, ok := c.entries[code]
	return ok
}

// Lookup returns the definition for code.
func (c *Catalog) Lookup(code scancode.Code) (Definition, bool) {
	d, ok := c.entries[code]
	return d, ok
}

// Default returns the default action for code, or "" when unknown.
func (c *Catalog) Default(code scancode.Code) action.Ref {
	return c.entries[code].DefaultAction
}

// Codes returns all gesture codes in ascending order.
func (c *Catalog) Codes() []scancode.Code {
	codes := make([]scancode.Code, 0, len(c.entries))
	for code := range c.entries {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Len returns the number of gestures.
func (c *Catalog) Len() int {
	return len(c.entries)
}
