package layer

import (
	"errors"
	"fmt"

	"github.com/viant/convflux/model/volume"
)

// ErrInvalidLayer is returned when a layer definition is internally
// inconsistent.
var ErrInvalidLayer = errors.New("layer: invalid definition")

// Layer represents a convolution layer: one filter and one bias per output
// channel plus the spatial stride and zero padding. A layer must not be
// mutated once handed to a worker; use Clone.
type Layer struct {
	Filters   []*volume.Volume
	Biases    []float32
	Stride    int
	Pad       int
	InDepth   int
	OutWidth  int
	OutHeight int
	OutDepth  int
}

// New builds a layer for an input of inWidth x inHeight x inDepth and derives
// its output dimensions.
func New(inWidth, inHeight, inDepth int, filters []*volume.Volume, biases []float32, stride, pad int) (*Layer, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: no filters", ErrInvalidLayer)
	}
	if stride < 1 {
		return nil, fmt.Errorf("%w: stride %d", ErrInvalidLayer, stride)
	}
	f := filters[0]
	if f == nil {
		return nil, fmt.Errorf("%w: nil filter 0", ErrInvalidLayer)
	}
	ret := &Layer{
		Filters:   filters,
		Biases:    biases,
		Stride:    stride,
		Pad:       pad,
		InDepth:   inDepth,
		OutWidth:  OutputSize(inWidth, f.Width, stride, pad),
		OutHeight: OutputSize(inHeight, f.Height, stride, pad),
		OutDepth:  len(filters),
	}
	if ret.Biases == nil {
		ret.Biases = make([]float32, len(filters))
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// OutputSize returns floor((in + 2*pad - filter) / stride) + 1.
func OutputSize(in, filter, stride, pad int) int {
	span := in + 2*pad - filter
	if span < 0 {
		return 0
	}
	return span/stride + 1
}

// Validate checks that filters, biases and output dimensions agree.
func (l *Layer) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: nil layer", ErrInvalidLayer)
	}
	if l.Stride < 1 {
		return fmt.Errorf("%w: stride %d", ErrInvalidLayer, l.Stride)
	}
	if l.Pad < 0 {
		return fmt.Errorf("%w: pad %d", ErrInvalidLayer, l.Pad)
	}
	if l.OutWidth < 1 || l.OutHeight < 1 || l.OutDepth < 1 {
		return fmt.Errorf("%w: output %dx%dx%d", ErrInvalidLayer, l.OutWidth, l.OutHeight, l.OutDepth)
	}
	if len(l.Filters) != l.OutDepth {
		return fmt.Errorf("%w: %d filters for output depth %d", ErrInvalidLayer, len(l.Filters), l.OutDepth)
	}
	if len(l.Biases) != l.OutDepth {
		return fmt.Errorf("%w: %d biases for output depth %d", ErrInvalidLayer, len(l.Biases), l.OutDepth)
	}
	for i, f := range l.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%w: filter %d: %v", ErrInvalidLayer, i, err)
		}
		if l.InDepth > 0 && f.Depth != l.InDepth {
			return fmt.Errorf("%w: filter %d depth %d, expected %d", ErrInvalidLayer, i, f.Depth, l.InDepth)
		}
	}
	return nil
}

// OutputShape returns (width, height, depth) of the activations.
func (l *Layer) OutputShape() (int, int, int) {
	return l.OutWidth, l.OutHeight, l.OutDepth
}

// Clone returns a deep copy so that the copy can cross a worker boundary.
func (l *Layer) Clone() *Layer {
	if l == nil {
		return nil
	}
	ret := *l
	ret.Filters = make([]*volume.Volume, len(l.Filters))
	for i, f := range l.Filters {
		ret.Filters[i] = f.Clone()
	}
	ret.Biases = append([]float32(nil), l.Biases...)
	return &ret
}
