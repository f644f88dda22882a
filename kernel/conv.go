package kernel

import (
	"errors"
	"fmt"

	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/model/volume"
)

// ErrDepthMismatch is returned when a filter depth differs from the input depth.
var ErrDepthMismatch = errors.New("kernel: filter depth does not match input depth")

// Forward computes the activations of l for input v.
func Forward(v *volume.Volume, l *layer.Layer) (*volume.Volume, error) {
	out, err := prepare(v, l)
	if err != nil {
		return nil, err
	}
	for d := 0; d < l.OutDepth; d++ {
		for ay := 0; ay < l.OutHeight; ay++ {
			convolveRow(out, v, l, d, ay)
		}
	}
	return out, nil
}

// ForwardParallel computes the same activations as Forward, splitting
// (channel, row) pairs across goroutines. Every output element is written by
// exactly one goroutine, so the result is bit-identical to Forward.
func ForwardParallel(v *volume.Volume, l *layer.Layer, cfg parallel.Config) (*volume.Volume, error) {
	out, err := prepare(v, l)
	if err != nil {
		return nil, err
	}
	parallel.ForGrid(l.OutDepth, l.OutHeight, func(d, ay int) {
		convolveRow(out, v, l, d, ay)
	}, cfg)
	return out, nil
}

func prepare(v *volume.Volume, l *layer.Layer) (*volume.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	for i, f := range l.Filters {
		if f.Depth != v.Depth {
			return nil, fmt.Errorf("%w: filter %d has depth %d, input %d", ErrDepthMismatch, i, f.Depth, v.Depth)
		}
	}
	return volume.New(l.OutWidth, l.OutHeight, l.OutDepth)
}

// convolveRow fills output row ay of channel d.
func convolveRow(out, v *volume.Volume, l *layer.Layer, d, ay int) {
	f := l.Filters[d]
	fDepth, fWidth, fHeight := f.Depth, f.Width, f.Height
	vWidth, vHeight, vDepth := v.Width, v.Height, v.Depth
	bias := l.Biases[d]
	y := ay*l.Stride - l.Pad
	x := -l.Pad
	for ax := 0; ax < l.OutWidth; ax, x = ax+1, x+l.Stride {
		var a float32
		for fy := 0; fy < fHeight; fy++ {
			oy := y + fy
			if oy < 0 || oy >= vHeight {
				continue
			}
			for fx := 0; fx < fWidth; fx++ {
				ox := x + fx
				if ox < 0 || ox >= vWidth {
					continue
				}
				fi := (fWidth*fy + fx) * fDepth
				vi := (vWidth*oy + ox) * vDepth
				for fd := 0; fd < fDepth; fd++ {
					a += f.Data[fi+fd] * v.Data[vi+fd]
				}
			}
		}
		a += bias
		out.Set(ax, ay, d, a)
	}
}
