package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// NewFunc returns a globally unique identifier; override in tests.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }

// Sequence returns a generator of "<prefix>-1", "<prefix>-2", ... suitable as
// a deterministic NewFunc replacement.
func Sequence(prefix string) func() string {
	var n uint64
	return func() string {
		return prefix + "-" + strconv.FormatUint(atomic.AddUint64(&n, 1), 10)
	}
}
