package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/convflux/model/sample"
	"github.com/viant/convflux/model/volume"
	"gopkg.in/yaml.v3"
)

// ImageConfig describes how a PNG strip is sliced into samples.
type ImageConfig struct {
	// Dimension is the width and height of every image.
	Dimension int `json:"dimension" yaml:"dimension"`
	// Channels is the number of colour channels used (1..4, RGBA order).
	Channels int `json:"channels" yaml:"channels"`
}

// DefaultImageConfig returns the CIFAR-10 layout: 32x32 RGB.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{Dimension: 32, Channels: 3}
}

// LoadImageBatch reads a PNG whose pixels, taken in row-major order, hold
// consecutive Dimension*Dimension images, and pairs them with labels read
// from labelsURL (a JSON or YAML list of ints). Channel values v are mapped to
// v/255-0.5. An empty labelsURL yields label -1 for every sample.
func LoadImageBatch(ctx context.Context, fs afs.Service, imageURL, labelsURL string, config ImageConfig, options ...storage.Option) (*Batch, error) {
	if config.Dimension < 1 || config.Channels < 1 || config.Channels > 4 {
		return nil, fmt.Errorf("source: invalid image config %+v", config)
	}
	data, err := fs.DownloadWithURL(ctx, imageURL, options...)
	if err != nil {
		return nil, fmt.Errorf("source: failed to download %v: %w", imageURL, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("source: failed to decode %v: %w", imageURL, err)
	}
	pixels := flatten(img)
	perImage := config.Dimension * config.Dimension
	count := len(pixels) / perImage
	if count == 0 {
		return nil, fmt.Errorf("source: %v holds no %dx%d image", imageURL, config.Dimension, config.Dimension)
	}
	var labels []int
	if labelsURL != "" {
		if labels, err = loadLabels(ctx, fs, labelsURL, options...); err != nil {
			return nil, err
		}
		if len(labels) < count {
			return nil, fmt.Errorf("source: %d labels for %d images", len(labels), count)
		}
	}
	samples := make([]*sample.Sample, count)
	for n := 0; n < count; n++ {
		v, err := volume.New(config.Dimension, config.Dimension, config.Channels)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perImage; i++ {
			px := pixels[n*perImage+i]
			channels := [4]uint8{px.R, px.G, px.B, px.A}
			x, y := i%config.Dimension, i/config.Dimension
			for d := 0; d < config.Channels; d++ {
				v.Set(x, y, d, float32(channels[d])/255.0-0.5)
			}
		}
		label := -1
		if labels != nil {
			label = labels[n]
		}
		samples[n] = &sample.Sample{Volume: v, Label: label}
	}
	return NewBatch(samples), nil
}

func flatten(img image.Image) []color.NRGBA {
	bounds := img.Bounds()
	ret := make([]color.NRGBA, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ret = append(ret, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
		}
	}
	return ret
}

func loadLabels(ctx context.Context, fs afs.Service, URL string, options ...storage.Option) ([]int, error) {
	data, err := fs.DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("source: failed to download labels %v: %w", URL, err)
	}
	var labels []int
	if err = yaml.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("source: failed to decode labels %v: %w", URL, err)
	}
	return labels, nil
}
