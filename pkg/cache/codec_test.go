package cache

import (
	"testing"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := JSONCodec{}

	tests := []struct {
		name  string
		value interface{}
	}{
		{"string", "hello"},
		{"number", 42.5},
		{"map", map[string]interface{}{"approved": true, "score": 0.93}},
		{"slice", []interface{}{"a", "b"}},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := codec.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			switch expected := tt.value.(type) {
			case map[string]interface{}:
				got, ok := decoded.(map[string]interface{})
				if !ok {
					t.Fatalf("Expected map, got %T", decoded)
				}
				for k, v := range expected {
					if got[k] != v {
						t.Errorf("Key %q: expected %v, got %v", k, v, got[k])
					}
				}
			case []interface{}:
				got, ok := decoded.([]interface{})
				if !ok {
					t.Fatalf("Expected slice, got %T", decoded)
				}
				if len(got) != len(expected) {
					t.Fatalf("Expected %d elements, got %d", len(expected), len(got))
				}
			default:
				if decoded != tt.value {
					t.Errorf("Expected %v, got %v", tt.value, decoded)
				}
			}
		})
	}
}

func TestJSONCodec_EncodeUnmarshalableFallsBack(t *testing.T) {
	codec := JSONCodec{}

	// Channels cannot be marshaled; the codec stringifies instead of failing.
	encoded, err := codec.Encode(make(chan int))
	if err != nil {
		t.Fatalf("Encode should not fail: %v", err)
	}
	if encoded == "" {
		t.Error("Expected non-empty fallback representation")
	}
}

func TestJSONCodec_DecodeMalformedPassesThrough(t *testing.T) {
	codec := JSONCodec{}

	raw := "not {valid json"
	decoded, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode should not fail: %v", err)
	}
	if decoded != raw {
		t.Errorf("Expected raw pass-through, got %v", decoded)
	}
}

func TestJSONCodec_NumbersDecodeAsFloat64(t *testing.T) {
	codec := JSONCodec{}

	encoded, _ := codec.Encode(7)
	decoded, _ := codec.Decode(encoded)
	if decoded != float64(7) {
		t.Errorf("Expected float64(7), got %T %v", decoded, decoded)
	}
}
