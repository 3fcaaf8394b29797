// Structural validation of backup documents.
//
// The expected top-level shape is derived from the [Snapshot] type itself by
// JSON Schema reflection, so the validator cannot drift from the struct.
// Validation is deliberately loose: missing fields are fine (the importer
// fills defaults), but a present field of the wrong kind, or a document that
// is not a JSON object at all, aborts the import before any store is touched.

package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// ErrInvalidSnapshot marks a document that is not a usable backup.
var ErrInvalidSnapshot = errors.New("invalid backup document")

// snapshotFieldTypes maps top-level snapshot fields to their JSON type,
// reflected once from the Snapshot struct.
var snapshotFieldTypes = sync.OnceValue(func() map[string]string {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.Reflect(&Snapshot{})
	types := make(map[string]string)
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		types[pair.Key] = pair.Value.Type
	}
	return types
})

// validate checks the document's top-level shape against the reflected
// snapshot schema.
func validate(raw []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	for name, want := range snapshotFieldTypes() {
		val, ok := doc[name]
		if !ok {
			continue
		}
		got := jsonKind(val)
		if got == "null" {
			continue
		}
		if got != want {
			return fmt.Errorf("%w: field %q is %s, want %s", ErrInvalidSnapshot, name, got, want)
		}
	}
	if val, ok := doc["version"]; ok && jsonKind(val) == "integer" {
		var version int
		if err := json.Unmarshal(val, &version); err == nil && version > FormatVersion {
			return fmt.Errorf("%w: format version %d is newer than supported version %d", ErrInvalidSnapshot, version, FormatVersion)
		}
	}
	return nil
}

// jsonKind reports the JSON Schema type name of a raw value.
func jsonKind(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "null"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		if bytes.ContainsAny(raw, ".eE") {
			return "number"
		}
		return "integer"
	}
}
