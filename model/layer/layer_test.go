package layer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/convflux/model/volume"
)

func filter(t *testing.T, w, h, d int, value float32) *volume.Volume {
	v, err := volume.New(w, h, d)
	assert.NoError(t, err)
	for i := range v.Data {
		v.Data[i] = value
	}
	return v
}

func TestNew(t *testing.T) {
	var testCases = []struct {
		description string
		in          [3]int
		filters     int
		fsize       int
		stride, pad int
		expectOut   [3]int
		expectErr   bool
	}{
		{description: "same padding", in: [3]int{32, 32, 3}, filters: 16, fsize: 5, stride: 1, pad: 2, expectOut: [3]int{32, 32, 16}},
		{description: "strided", in: [3]int{8, 8, 1}, filters: 2, fsize: 2, stride: 2, pad: 0, expectOut: [3]int{4, 4, 2}},
		{description: "filter larger than input", in: [3]int{1, 1, 1}, filters: 1, fsize: 3, stride: 1, pad: 0, expectErr: true},
		{description: "zero stride", in: [3]int{4, 4, 1}, filters: 1, fsize: 1, stride: 0, expectErr: true},
	}
	for _, testCase := range testCases {
		var filters []*volume.Volume
		for i := 0; i < testCase.filters; i++ {
			filters = append(filters, filter(t, testCase.fsize, testCase.fsize, testCase.in[2], 1))
		}
		l, err := New(testCase.in[0], testCase.in[1], testCase.in[2], filters, nil, testCase.stride, testCase.pad)
		if testCase.expectErr {
			assert.True(t, errors.Is(err, ErrInvalidLayer), testCase.description)
			continue
		}
		if !assert.NoError(t, err, testCase.description) {
			continue
		}
		w, h, d := l.OutputShape()
		assert.Equal(t, testCase.expectOut, [3]int{w, h, d}, testCase.description)
		assert.Len(t, l.Biases, testCase.filters, testCase.description)
	}
}

func TestLayer_Validate(t *testing.T) {
	base := func() *Layer {
		return &Layer{
			Filters:   []*volume.Volume{filter(t, 3, 3, 2, 1)},
			Biases:    []float32{0},
			Stride:    1,
			Pad:       1,
			InDepth:   2,
			OutWidth:  4,
			OutHeight: 4,
			OutDepth:  1,
		}
	}
	var testCases = []struct {
		description string
		mutate      func(l *Layer)
		expectErr   bool
	}{
		{description: "valid", mutate: func(l *Layer) {}},
		{description: "bias count", mutate: func(l *Layer) { l.Biases = nil }, expectErr: true},
		{description: "filter count", mutate: func(l *Layer) { l.OutDepth = 2 }, expectErr: true},
		{description: "depth mismatch", mutate: func(l *Layer) { l.InDepth = 3 }, expectErr: true},
		{description: "negative pad", mutate: func(l *Layer) { l.Pad = -1 }, expectErr: true},
		{description: "nil filter", mutate: func(l *Layer) { l.Filters[0] = nil }, expectErr: true},
	}
	for _, testCase := range testCases {
		l := base()
		testCase.mutate(l)
		err := l.Validate()
		if testCase.expectErr {
			assert.True(t, errors.Is(err, ErrInvalidLayer), testCase.description)
		} else {
			assert.NoError(t, err, testCase.description)
		}
	}
}

func TestLayer_Clone(t *testing.T) {
	l, err := New(4, 4, 1, []*volume.Volume{filter(t, 3, 3, 1, 2)}, []float32{1}, 1, 1)
	assert.NoError(t, err)
	c := l.Clone()
	c.Filters[0].Data[0] = 100
	c.Biases[0] = 100
	assert.Equal(t, float32(2), l.Filters[0].Data[0])
	assert.Equal(t, float32(1), l.Biases[0])
}

func TestLayer_JSON(t *testing.T) {
	input := `{
	  "layer_type": "conv", "sx": 1, "sy": 1, "stride": 1, "pad": 0,
	  "in_depth": 2, "out_sx": 2, "out_sy": 2, "out_depth": 2,
	  "filters": [
	    {"sx":1,"sy":1,"depth":2,"w":{"0":1,"1":2}},
	    {"sx":1,"sy":1,"depth":2,"w":[3,4]}
	  ],
	  "biases": {"sx":1,"sy":1,"depth":2,"w":{"0":0.5,"1":-0.5}}
	}`
	l := &Layer{}
	assert.NoError(t, json.Unmarshal([]byte(input), l))
	assert.NoError(t, l.Validate())
	assert.Equal(t, []float32{0.5, -0.5}, l.Biases)
	assert.Equal(t, []float32{3, 4}, l.Filters[1].Data)

	encoded, err := json.Marshal(l)
	assert.NoError(t, err)
	decoded := &Layer{}
	assert.NoError(t, json.Unmarshal(encoded, decoded))
	assert.Equal(t, l, decoded)

	err = json.Unmarshal([]byte(`{"layer_type":"fc"}`), &Layer{})
	assert.True(t, errors.Is(err, ErrInvalidLayer))
}
