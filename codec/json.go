package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Use it when blobs are also written by tools outside Go, or when the
// smallest dependency surface matters more than decode speed.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }
