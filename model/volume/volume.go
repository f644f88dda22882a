package volume

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidShape is returned when a volume is constructed with a non-positive
// dimension or with data that does not match its dimensions.
var ErrInvalidShape = errors.New("volume: invalid shape")

// Volume is a dense width x height x depth tensor of float32 values. Element
// (x,y,d) is stored at ((Width*y)+x)*Depth+d.
type Volume struct {
	Width  int
	Height int
	Depth  int
	Data   []float32
}

// Size returns width*height*depth, or an error when a dimension is not
// positive or the product does not fit in an int.
func Size(width, height, depth int) (int, error) {
	if width < 1 || height < 1 || depth < 1 {
		return 0, fmt.Errorf("%w: %dx%dx%d", ErrInvalidShape, width, height, depth)
	}
	if width > math.MaxInt/height || width*height > math.MaxInt/depth {
		return 0, fmt.Errorf("%w: %dx%dx%d overflows", ErrInvalidShape, width, height, depth)
	}
	return width * height * depth, nil
}

// New creates a zeroed volume.
func New(width, height, depth int) (*Volume, error) {
	size, err := Size(width, height, depth)
	if err != nil {
		return nil, err
	}
	return &Volume{
		Width:  width,
		Height: height,
		Depth:  depth,
		Data:   make([]float32, size),
	}, nil
}

// FromData wraps data as a volume; len(data) must equal width*height*depth.
// The slice is copied.
func FromData(width, height, depth int, data []float32) (*Volume, error) {
	ret, err := New(width, height, depth)
	if err != nil {
		return nil, err
	}
	if len(data) != len(ret.Data) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidShape, len(ret.Data), len(data))
	}
	copy(ret.Data, data)
	return ret, nil
}

// Index returns the flat offset of (x,y,d).
func (v *Volume) Index(x, y, d int) int {
	return ((v.Width*y)+x)*v.Depth + d
}

// Contains reports whether (x,y) lies within the spatial bounds.
func (v *Volume) Contains(x, y int) bool {
	return x >= 0 && x < v.Width && y >= 0 && y < v.Height
}

// Get returns the value at (x,y,d).
func (v *Volume) Get(x, y, d int) float32 {
	return v.Data[v.Index(x, y, d)]
}

// Set stores value at (x,y,d).
func (v *Volume) Set(x, y, d int, value float32) {
	v.Data[v.Index(x, y, d)] = value
}

// Len returns the number of elements.
func (v *Volume) Len() int {
	return len(v.Data)
}

// Validate checks that dimensions are positive and data length matches them.
// Volumes decoded from the wire go through Validate before use.
func (v *Volume) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: nil volume", ErrInvalidShape)
	}
	expect, err := Size(v.Width, v.Height, v.Depth)
	if err != nil {
		return err
	}
	if len(v.Data) != expect {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInvalidShape, expect, len(v.Data))
	}
	return nil
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	if v == nil {
		return nil
	}
	ret := *v
	ret.Data = append([]float32(nil), v.Data...)
	return &ret
}

// SameShape reports whether both volumes share dimensions.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Equal reports bitwise equality of shape and data.
func (v *Volume) Equal(o *Volume) bool {
	if v == nil || o == nil {
		return v == o
	}
	if !v.SameShape(o) || len(v.Data) != len(o.Data) {
		return false
	}
	for i := range v.Data {
		if v.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// MaxMin returns the largest and smallest values.
func (v *Volume) MaxMin() (maxV, minV float32) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	maxV, minV = v.Data[0], v.Data[0]
	for _, value := range v.Data[1:] {
		if value > maxV {
			maxV = value
		}
		if value < minV {
			minV = value
		}
	}
	return maxV, minV
}
