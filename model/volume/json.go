package volume

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// document mirrors the convnetjs Vol JSON layout.
type document struct {
	Width  int             `json:"sx"`
	Height int             `json:"sy"`
	Depth  int             `json:"depth"`
	Data   json.RawMessage `json:"w"`
}

// MarshalJSON encodes the volume as {"sx","sy","depth","w":[...]}.
func (v *Volume) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(v.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&document{Width: v.Width, Height: v.Height, Depth: v.Depth, Data: data})
}

// UnmarshalJSON decodes both the array form of "w" and the index-keyed object
// form produced by serialising a Float32Array.
func (v *Volume) UnmarshalJSON(data []byte) error {
	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return err
	}
	v.Width, v.Height, v.Depth = doc.Width, doc.Height, doc.Depth
	expect, err := Size(doc.Width, doc.Height, doc.Depth)
	if err != nil {
		return err
	}
	raw := bytes.TrimSpace(doc.Data)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		v.Data = make([]float32, expect)
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &v.Data); err != nil {
			return fmt.Errorf("failed to decode volume weights: %w", err)
		}
	case raw[0] == '{':
		indexed := map[string]float32{}
		if err := json.Unmarshal(raw, &indexed); err != nil {
			return fmt.Errorf("failed to decode volume weights: %w", err)
		}
		if expect < len(indexed) {
			return fmt.Errorf("%w: %d weights for %dx%dx%d", ErrInvalidShape, len(indexed), doc.Width, doc.Height, doc.Depth)
		}
		v.Data = make([]float32, expect)
		for key, value := range indexed {
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= expect {
				return fmt.Errorf("%w: weight index %q", ErrInvalidShape, key)
			}
			v.Data[i] = value
		}
	default:
		return fmt.Errorf("%w: unsupported weights encoding", ErrInvalidShape)
	}
	return v.Validate()
}
