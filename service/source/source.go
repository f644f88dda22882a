// Package source produces the samples fed to the scheduler.
package source

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/viant/convflux/model/sample"
	"github.com/viant/convflux/model/volume"
)

// ErrEmpty is returned by Next when the source holds no samples.
var ErrEmpty = errors.New("source: no samples")

// Source yields samples indefinitely.
type Source interface {
	// Next returns the next sample.
	Next() (*sample.Sample, error)
	// Reset rewinds to the first sample.
	Reset()
	// Len returns the number of distinct samples.
	Len() int
}

// Batch cycles through a fixed slice of samples, wrapping around at the end.
type Batch struct {
	mu      sync.Mutex
	samples []*sample.Sample
	next    int
}

// NewBatch creates a batch over samples.
func NewBatch(samples []*sample.Sample) *Batch {
	return &Batch{samples: samples}
}

// Next returns the next sample; the returned value is a fresh Sample sharing
// the immutable input volume.
func (b *Batch) Next() (*sample.Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return nil, ErrEmpty
	}
	s := b.samples[b.next]
	b.next = (b.next + 1) % len(b.samples)
	return &sample.Sample{Volume: s.Volume, Label: s.Label}, nil
}

// Reset rewinds the batch.
func (b *Batch) Reset() {
	b.mu.Lock()
	b.next = 0
	b.mu.Unlock()
}

// Len returns the number of samples.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Position returns the index of the sample Next will return.
func (b *Batch) Position() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// NewRandomBatch returns n samples of uniformly distributed values in
// [-0.5, 0.5) with labels in [0, classes). The same seed yields the same batch.
func NewRandomBatch(n, width, height, depth, classes int, seed int64) (*Batch, error) {
	rnd := rand.New(rand.NewSource(seed))
	if classes < 1 {
		classes = 1
	}
	samples := make([]*sample.Sample, n)
	for i := range samples {
		v, err := volume.New(width, height, depth)
		if err != nil {
			return nil, err
		}
		for j := range v.Data {
			v.Data[j] = rnd.Float32() - 0.5
		}
		samples[i] = &sample.Sample{Volume: v, Label: rnd.Intn(classes)}
	}
	return NewBatch(samples), nil
}
