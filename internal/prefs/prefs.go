// Package prefs resolves per-gesture action overrides.
//
// Overrides live in a key-value store under a deterministic key per scan
// code. The resolver consults the store on every call and falls back to the
// gesture catalog default when the override is missing, blank, malformed
// or unreadable.
package prefs

import (
	"errors"
	"fmt"
	"log/slog"

	"gestured/internal/action"
	"gestured/internal/scancode"
)

// DefaultKeyPrefix is the key prefix used when none is configured.
const DefaultKeyPrefix = "screen_off_gesture"

// ErrNotFound is returned by stores that report missing keys as errors.
var ErrNotFound = errors.New("preference not found")

// Store is the read side of a preference store.
type Store interface {
	// GetString returns the value stored under key. ok is false when the
	// key is absent.
	GetString(key string) (value string, ok bool, err error)
}

// WritableStore is a Store that can also be edited.
type WritableStore interface {
	Store
	SetString(key, value string) error
	Delete(key string) error
}

// Defaults supplies catalog default actions.
type Defaults interface {
	Default(code scancode.Code) action.Ref
}

// Key returns the preference key for code under prefix.
func Key(prefix string, code scancode.Code) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return fmt.Sprintf("%s_%d", prefix, int(code))
}

// Resolver maps gesture scan codes to action references.
type Resolver struct {
	store    Store
	defaults Defaults
	prefix   string
	logger   *slog.Logger
}

// NewResolver creates a resolver. store may be nil, in which case only
// catalog defaults are used.
func NewResolver(store Store, defaults Defaults, prefix string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Resolver{
		store:    store,
		defaults: defaults,
		prefix:   prefix,
		logger:   logger,
	}
}

// Prefix returns the key prefix in use.
func (r *Resolver) Prefix() string {
	return r.prefix
}

// Resolve returns the override for code if one is set, otherwise the
// catalog default.
func (r *Resolver) Resolve(code scancode.Code) action.Ref {
	if ref, ok := r.Override(code); ok {
		return ref
	}
	return r.defaults.Default(code)
}

// Override returns the stored override for code. Unreadable and malformed
// values count as absent.
func (r *Resolver) Override(code scancode.Code) (action.Ref, bool) {
	if r.store == nil {
		return "", false
	}

	key := Key(r.prefix, code)
	v, ok, err := r.store.GetString(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("preference read failed", "key", key, "error", err)
		}
		return "", false
	}
	if !ok {
		return "", false
	}

	ref := action.Ref(v)
	if !ref.Valid() {
		if v != "" {
			r.logger.Warn("ignoring malformed preference", "key", key)
		}
		return "", false
	}
	return ref, true
}
