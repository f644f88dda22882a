// Package loader reads trained networks in the convnetjs JSON layout and
// extracts their convolution layers.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/convflux/model/layer"
)

// ErrLayerNotFound is returned when a net has fewer conv layers than requested.
var ErrLayerNotFound = errors.New("loader: conv layer not found")

// TypeInput is the convnetjs layer_type of the input layer.
const TypeInput = "input"

// Descriptor is the common header of a serialized layer.
type Descriptor struct {
	Type      string `json:"layer_type"`
	OutWidth  int    `json:"out_sx"`
	OutHeight int    `json:"out_sy"`
	OutDepth  int    `json:"out_depth"`
	raw       json.RawMessage
}

// Net is a decoded network.
type Net struct {
	Layers []*Descriptor
}

// Decode parses a convnetjs net document.
func Decode(data []byte) (*Net, error) {
	doc := struct {
		Layers []json.RawMessage `json:"layers"`
	}{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("loader: failed to decode net: %w", err)
	}
	ret := &Net{Layers: make([]*Descriptor, 0, len(doc.Layers))}
	for i, raw := range doc.Layers {
		d := &Descriptor{raw: raw}
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("loader: failed to decode layer %d: %w", i, err)
		}
		ret.Layers = append(ret.Layers, d)
	}
	return ret, nil
}

// InputShape returns the dimensions of the input layer, or ok=false when the
// net has none.
func (n *Net) InputShape() (width, height, depth int, ok bool) {
	for _, d := range n.Layers {
		if d.Type == TypeInput {
			return d.OutWidth, d.OutHeight, d.OutDepth, true
		}
	}
	return 0, 0, 0, false
}

// ConvCount returns the number of conv layers.
func (n *Net) ConvCount() int {
	count := 0
	for _, d := range n.Layers {
		if d.Type == layer.TypeConv {
			count++
		}
	}
	return count
}

// ConvLayer decodes and validates the i-th (0-based) conv layer.
func (n *Net) ConvLayer(i int) (*layer.Layer, error) {
	index := 0
	for _, d := range n.Layers {
		if d.Type != layer.TypeConv {
			continue
		}
		if index == i {
			ret := &layer.Layer{}
			if err := json.Unmarshal(d.raw, ret); err != nil {
				return nil, fmt.Errorf("loader: failed to decode conv layer %d: %w", i, err)
			}
			if err := ret.Validate(); err != nil {
				return nil, err
			}
			return ret, nil
		}
		index++
	}
	return nil, fmt.Errorf("%w: %d of %d", ErrLayerNotFound, i, index)
}

// Service loads nets through afs.
type Service struct {
	fs afs.Service
}

// LoadNet downloads and decodes a net from URL.
func (s *Service) LoadNet(ctx context.Context, URL string, options ...storage.Option) (*Net, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to download %v: %w", URL, err)
	}
	return Decode(data)
}

// LoadConvLayer loads the i-th conv layer of the net at URL.
func (s *Service) LoadConvLayer(ctx context.Context, URL string, i int, options ...storage.Option) (*layer.Layer, error) {
	net, err := s.LoadNet(ctx, URL, options...)
	if err != nil {
		return nil, err
	}
	return net.ConvLayer(i)
}

// New creates a loader; a nil fs defaults to afs.New().
func New(fs afs.Service) *Service {
	if fs == nil {
		fs = afs.New()
	}
	return &Service{fs: fs}
}
