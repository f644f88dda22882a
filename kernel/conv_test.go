package kernel

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/model/volume"
)

func randomVolume(t *testing.T, rng *rand.Rand, w, h, d int) *volume.Volume {
	v, err := volume.New(w, h, d)
	assert.NoError(t, err)
	for i := range v.Data {
		v.Data[i] = rng.Float32()*2 - 1
	}
	return v
}

func randomLayer(t *testing.T, rng *rand.Rand, in *volume.Volume, filters, fw, fh, stride, pad int) *layer.Layer {
	var bank []*volume.Volume
	biases := make([]float32, filters)
	for i := 0; i < filters; i++ {
		bank = append(bank, randomVolume(t, rng, fw, fh, in.Depth))
		biases[i] = rng.Float32() - 0.5
	}
	l, err := layer.New(in.Width, in.Height, in.Depth, bank, biases, stride, pad)
	assert.NoError(t, err)
	return l
}

// reference pads the input explicitly and convolves with plain nested loops
// in float64.
func reference(v *volume.Volume, l *layer.Layer) []float64 {
	pw, ph := v.Width+2*l.Pad, v.Height+2*l.Pad
	padded := make([]float64, pw*ph*v.Depth)
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			for d := 0; d < v.Depth; d++ {
				padded[((pw*(y+l.Pad))+x+l.Pad)*v.Depth+d] = float64(v.Get(x, y, d))
			}
		}
	}
	out := make([]float64, l.OutWidth*l.OutHeight*l.OutDepth)
	for d := 0; d < l.OutDepth; d++ {
		f := l.Filters[d]
		for ay := 0; ay < l.OutHeight; ay++ {
			for ax := 0; ax < l.OutWidth; ax++ {
				sum := float64(l.Biases[d])
				for fy := 0; fy < f.Height; fy++ {
					for fx := 0; fx < f.Width; fx++ {
						px, py := ax*l.Stride+fx, ay*l.Stride+fy
						if px >= pw || py >= ph {
							continue
						}
						for fd := 0; fd < f.Depth; fd++ {
							sum += float64(f.Get(fx, fy, fd)) * padded[((pw*py)+px)*v.Depth+fd]
						}
					}
				}
				out[((l.OutWidth*ay)+ax)*l.OutDepth+d] = sum
			}
		}
	}
	return out
}

func TestForward_MatchesReference(t *testing.T) {
	var testCases = []struct {
		description     string
		w, h, d         int
		filters, fw, fh int
		stride, pad     int
	}{
		{description: "cifar first layer", w: 32, h: 32, d: 3, filters: 16, fw: 5, fh: 5, stride: 1, pad: 2},
		{description: "strided no pad", w: 9, h: 7, d: 2, filters: 3, fw: 3, fh: 3, stride: 2, pad: 0},
		{description: "non square filter", w: 6, h: 5, d: 4, filters: 2, fw: 1, fh: 3, stride: 1, pad: 1},
		{description: "stride overhang", w: 5, h: 5, d: 1, filters: 1, fw: 2, fh: 2, stride: 2, pad: 1},
		{description: "wide pad", w: 2, h: 2, d: 1, filters: 2, fw: 3, fh: 3, stride: 1, pad: 2},
	}
	rng := rand.New(rand.NewSource(7))
	for _, testCase := range testCases {
		v := randomVolume(t, rng, testCase.w, testCase.h, testCase.d)
		l := randomLayer(t, rng, v, testCase.filters, testCase.fw, testCase.fh, testCase.stride, testCase.pad)
		out, err := Forward(v, l)
		if !assert.NoError(t, err, testCase.description) {
			continue
		}
		assert.Equal(t, l.OutWidth, out.Width, testCase.description)
		assert.Equal(t, l.OutHeight, out.Height, testCase.description)
		assert.Equal(t, l.OutDepth, out.Depth, testCase.description)
		expect := reference(v, l)
		for i := range expect {
			assert.InDelta(t, expect[i], float64(out.Data[i]), 1e-4, "%s: index %d", testCase.description, i)
		}
	}
}

func TestForward_ZeroPadding(t *testing.T) {
	v, err := volume.FromData(1, 1, 1, []float32{7})
	assert.NoError(t, err)
	ones, _ := volume.New(3, 3, 1)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	var testCases = []struct {
		description string
		bias        float32
		expect      float32
	}{
		{description: "no bias", bias: 0, expect: 7},
		{description: "with bias", bias: 0.5, expect: 7.5},
	}
	for _, testCase := range testCases {
		l, err := layer.New(1, 1, 1, []*volume.Volume{ones}, []float32{testCase.bias}, 1, 1)
		assert.NoError(t, err)
		out, err := Forward(v, l)
		assert.NoError(t, err)
		assert.Equal(t, 1, out.Len(), testCase.description)
		assert.Equal(t, testCase.expect, out.Get(0, 0, 0), testCase.description)
	}
}

func TestForward_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	v := randomVolume(t, rng, 12, 12, 3)
	l := randomLayer(t, rng, v, 4, 3, 3, 1, 1)
	input := v.Clone()
	filters := l.Clone()

	first, err := Forward(v, l)
	assert.NoError(t, err)
	for i := 0; i < 5; i++ {
		next, err := Forward(v, l)
		assert.NoError(t, err)
		assert.True(t, first.Equal(next))
	}
	assert.True(t, input.Equal(v), "input must not be mutated")
	assert.Equal(t, filters, l, "layer must not be mutated")

	par, err := ForwardParallel(v, l, parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})
	assert.NoError(t, err)
	assert.True(t, first.Equal(par))
}

func TestForward_Concurrent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	v := randomVolume(t, rng, 8, 8, 2)
	l := randomLayer(t, rng, v, 2, 3, 3, 1, 1)
	expect, err := Forward(v, l)
	assert.NoError(t, err)

	results := make(chan *volume.Volume, 8)
	for i := 0; i < cap(results); i++ {
		go func() {
			out, _ := Forward(v, l)
			results <- out
		}()
	}
	for i := 0; i < cap(results); i++ {
		assert.True(t, expect.Equal(<-results))
	}
}

func TestForward_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	v := randomVolume(t, rng, 4, 4, 2)
	l := randomLayer(t, rng, v, 1, 3, 3, 1, 1)

	wrongDepth := randomVolume(t, rng, 4, 4, 3)
	_, err := Forward(wrongDepth, l)
	assert.True(t, errors.Is(err, ErrDepthMismatch))

	_, err = Forward(&volume.Volume{Width: 2, Height: 2, Depth: 2}, l)
	assert.True(t, errors.Is(err, volume.ErrInvalidShape))

	broken := l.Clone()
	broken.Biases = nil
	_, err = Forward(v, broken)
	assert.True(t, errors.Is(err, layer.ErrInvalidLayer))
}

func BenchmarkForward(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	v, _ := volume.New(32, 32, 3)
	for i := range v.Data {
		v.Data[i] = rng.Float32()
	}
	var bank []*volume.Volume
	for i := 0; i < 16; i++ {
		f, _ := volume.New(5, 5, 3)
		for j := range f.Data {
			f.Data[j] = rng.Float32()
		}
		bank = append(bank, f)
	}
	l, _ := layer.New(32, 32, 3, bank, nil, 1, 2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Forward(v, l)
	}
}
