package gesture

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	documentSchemaURL = "gestured://gestures.schema.json"
	entrySchemaURL    = "gestured://gesture.schema.json"
)

// documentSchema describes the envelope of a gesture definition resource
// after it has been normalized to JSON. Entries are checked one at a time
// against entrySchema so that a bad entry only loses itself.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["gestures"],
  "properties": {
    "device": {"type": "string"},
    "gestures": {"type": "array"}
  },
  "additionalProperties": false
}`

const entrySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["scan_code", "default_action"],
  "properties": {
    "scan_code": {"type": "integer", "minimum": 0},
    "name": {"type": "string"},
    "default_action": {"type": "string", "minLength": 1},
    "metadata": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "additionalProperties": false
}`

type validators struct {
	document *jsonschema.Schema
	entry    *jsonschema.Schema
}

var (
	compiled   validators
	schemaErr  error
	schemaOnce sync.Once
)

func resourceValidators() (validators, error) {
	schemaOnce.Do(func() {
		compiled.document, schemaErr = jsonschema.CompileString(documentSchemaURL, documentSchema)
		if schemaErr != nil {
			return
		}
		compiled.entry, schemaErr = jsonschema.CompileString(entrySchemaURL, entrySchema)
	})
	return compiled, schemaErr
}
