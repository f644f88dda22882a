package sample

import (
	"sort"

	"github.com/viant/convflux/model/volume"
)

// Sample is an input volume with its ground-truth class index.
type Sample struct {
	// Seq is the production order assigned by the scheduler.
	Seq    uint64
	Volume *volume.Volume
	Label  int
}

// Prediction is a class score read from a result volume.
type Prediction struct {
	Class int
	Score float32
}

// Rank returns the class scores stored at (0,0,d) sorted by descending score.
// Ties keep class order.
func Rank(result *volume.Volume) []Prediction {
	if result == nil {
		return nil
	}
	ret := make([]Prediction, result.Depth)
	for d := 0; d < result.Depth; d++ {
		ret[d] = Prediction{Class: d, Score: result.Get(0, 0, d)}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Score > ret[j].Score
	})
	return ret
}

// Predicted returns the top scoring class, or -1 for an empty result.
func Predicted(result *volume.Volume) int {
	ranked := Rank(result)
	if len(ranked) == 0 {
		return -1
	}
	return ranked[0].Class
}

// Correct reports whether the top prediction equals the sample label.
func (s *Sample) Correct(result *volume.Volume) bool {
	return Predicted(result) == s.Label
}
