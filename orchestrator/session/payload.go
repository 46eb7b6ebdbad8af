package session

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Payload is an opaque, schema-less structured value carried through the
// orchestration core verbatim. It is validated only at the boundary
// (object-or-empty), never inside transition logic.
type Payload map[string]any

// payloadSchema accepts any JSON object and nothing else. Compiled once at
// package init; the schema source is a constant, so compilation cannot fail
// at runtime.
var payloadSchema = mustCompilePayloadSchema()

func mustCompilePayloadSchema() *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(`{"type":"object"}`), &doc); err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("payload.json", doc); err != nil {
		panic(err)
	}
	schema, err := c.Compile("payload.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// EmptyPayload returns a fresh empty payload. Absence of data is always
// represented as an empty object, never as nil or an error.
func EmptyPayload() Payload {
	return Payload{}
}

// ParsePayload decodes raw JSON into a Payload. Malformed input — invalid
// JSON or any value that is not an object — yields an empty payload and
// ok = false so callers can log the substitution; it never fails.
func ParsePayload(raw []byte) (Payload, bool) {
	if len(raw) == 0 {
		return EmptyPayload(), true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return EmptyPayload(), false
	}
	if err := payloadSchema.Validate(v); err != nil {
		return EmptyPayload(), false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return EmptyPayload(), false
	}
	return Payload(obj), true
}

// NormalizePayload coerces an arbitrary value into a Payload by round-tripping
// through the JSON codec. Values that do not encode to an object — including
// nil and unencodable values — yield an empty payload and ok = false.
func NormalizePayload(v any) (Payload, bool) {
	if v == nil {
		return EmptyPayload(), true
	}
	if p, ok := v.(Payload); ok {
		if p == nil {
			return EmptyPayload(), true
		}
		return p, true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return EmptyPayload(), false
	}
	return ParsePayload(data)
}
