package gesture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Resource is the on-disk layout of a gesture definition file.
type Resource struct {
	Device   string       `json:"device,omitempty" yaml:"device,omitempty"`
	Gestures []Definition `json:"gestures" yaml:"gestures"`

	// Rejected holds one error per entry that failed validation and was
	// left out of Gestures.
	Rejected []error `json:"-" yaml:"-"`
}

// Load reads the gesture resource at path and builds a catalog.
//
// Load always returns a usable catalog. When the file is missing or
// malformed the catalog is empty and the error says why, so that callers
// can log it and continue with mode codes only. Individual invalid entries
// are skipped with a warning.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if path == "" {
		return Empty(), fmt.Errorf("load gestures: no resource path configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Empty(), fmt.Errorf("load gestures: %w", err)
	}

	res, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Empty(), fmt.Errorf("load gestures from %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, rerr := range res.Rejected {
		logger.Warn("skipping gesture", "path", path, "error", rerr)
	}

	return New(res.Device, res.Gestures, logger), nil
}

// Parse decodes and validates a gesture resource. ext selects the format
// (".json", ".yaml" or ".yml"); anything else is tried as YAML, which also
// accepts JSON. A malformed envelope is an error; entries that fail
// validation are reported in Resource.Rejected.
func Parse(data []byte, ext string) (*Resource, error) {
	normalized, err := toJSON(data, ext)
	if err != nil {
		return nil, err
	}

	schemas, err := resourceValidators()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	instance, err := decodeInstance(normalized)
	if err != nil {
		return nil, err
	}
	if err := schemas.document.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	var doc struct {
		Device   string            `json:"device"`
		Gestures []json.RawMessage `json:"gestures"`
	}
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("decode gestures: %w", err)
	}

	res := &Resource{Device: doc.Device}
	for i, raw := range doc.Gestures {
		d, err := parseEntry(schemas.entry, raw)
		if err != nil {
			res.Rejected = append(res.Rejected, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		res.Gestures = append(res.Gestures, d)
	}
	return res, nil
}

func parseEntry(schema *jsonschema.Schema, raw json.RawMessage) (Definition, error) {
	instance, err := decodeInstance(raw)
	if err != nil {
		return Definition{}, err
	}
	if err := schema.Validate(instance); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	var d Definition
	if err := json.Unmarshal(raw, &d); err != nil {
		return Definition{}, fmt.Errorf("decode gesture: %w", err)
	}
	return d, nil
}

func decodeInstance(data []byte) (any, error) {
	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return instance, nil
}

// toJSON converts a JSON or YAML document into JSON bytes so that a single
// schema validates both.
func toJSON(data []byte, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		if !json.Valid(data) {
			return nil, fmt.Errorf("decode JSON: malformed document")
		}
		return data, nil
	default:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
		if doc == nil {
			return nil, fmt.Errorf("decode YAML: empty document")
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("normalize YAML: %w", err)
		}
		return out, nil
	}
}
