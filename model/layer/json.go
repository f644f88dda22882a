package layer

import (
	"encoding/json"
	"fmt"

	"github.com/viant/convflux/model/volume"
)

// TypeConv is the convnetjs layer_type of a convolution layer.
const TypeConv = "conv"

type document struct {
	Type      string           `json:"layer_type"`
	Width     int              `json:"sx,omitempty"`
	Height    int              `json:"sy,omitempty"`
	Stride    int              `json:"stride"`
	Pad       int              `json:"pad"`
	InDepth   int              `json:"in_depth,omitempty"`
	OutWidth  int              `json:"out_sx"`
	OutHeight int              `json:"out_sy"`
	OutDepth  int              `json:"out_depth"`
	Filters   []*volume.Volume `json:"filters"`
	Biases    *volume.Volume   `json:"biases"`
}

// MarshalJSON encodes the layer in the convnetjs conv layout.
func (l *Layer) MarshalJSON() ([]byte, error) {
	doc := &document{
		Type:      TypeConv,
		Stride:    l.Stride,
		Pad:       l.Pad,
		InDepth:   l.InDepth,
		OutWidth:  l.OutWidth,
		OutHeight: l.OutHeight,
		OutDepth:  l.OutDepth,
		Filters:   l.Filters,
		Biases:    &volume.Volume{Width: 1, Height: 1, Depth: len(l.Biases), Data: l.Biases},
	}
	if len(l.Filters) > 0 && l.Filters[0] != nil {
		doc.Width, doc.Height = l.Filters[0].Width, l.Filters[0].Height
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a convnetjs conv layer.
func (l *Layer) UnmarshalJSON(data []byte) error {
	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return err
	}
	if doc.Type != "" && doc.Type != TypeConv {
		return fmt.Errorf("%w: unsupported layer type %q", ErrInvalidLayer, doc.Type)
	}
	if doc.Stride == 0 {
		doc.Stride = 1
	}
	*l = Layer{
		Filters:   doc.Filters,
		Stride:    doc.Stride,
		Pad:       doc.Pad,
		InDepth:   doc.InDepth,
		OutWidth:  doc.OutWidth,
		OutHeight: doc.OutHeight,
		OutDepth:  doc.OutDepth,
	}
	if doc.Biases != nil {
		l.Biases = doc.Biases.Data
	}
	return nil
}
