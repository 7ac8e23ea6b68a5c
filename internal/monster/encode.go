package monster

import (
	"encoding/json"
	"fmt"
)

// Encode returns the canonical wire form of r: indented JSON with keys in
// schema order and speed modes sorted. Encoding the same record twice yields
// identical bytes, which keeps prompts built from it deterministic.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("monster: encode: nil record")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("monster: encode: %w", err)
	}
	return data, nil
}

// Decode parses canonical JSON and validates it.
func Decode(data []byte) (*Record, error) {
	tree, err := decodeTree(data)
	if err != nil {
		return nil, invalid("response", WrongType, "decode: %v", err)
	}
	return Validate(tree)
}
