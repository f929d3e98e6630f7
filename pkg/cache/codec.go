package cache

import (
	"encoding/json"
	"fmt"
)

// Codec converts values to and from the serialized text form stored in the
// external tiers. Tier 1 holds values as-is and never goes through a codec.
type Codec interface {
	// Encode serializes a value for storage in an external tier.
	Encode(value interface{}) (string, error)

	// Decode parses a serialized value read back from an external tier.
	Decode(data string) (interface{}, error)
}

// JSONCodec serializes values as JSON.
//
// Values that cannot be marshaled fall back to their fmt representation, so a
// write never fails on serialization alone. The caveat is that such values do
// not round-trip to their original type; callers storing non-JSON-safe values
// get a string back. Malformed data on read is passed through as the raw
// string rather than failing the lookup.
type JSONCodec struct{}

// Encode serializes value as JSON, falling back to a stringified form.
func (JSONCodec) Encode(value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value), nil
	}
	return string(data), nil
}

// Decode parses JSON, passing malformed data through as the raw string.
func (JSONCodec) Decode(data string) (interface{}, error) {
	var value interface{}
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return data, nil
	}
	return value, nil
}
