// Package pool provides a buffer pool that trades off the cost of allocation
// versus retention. It is meant to avoid the pessimal behaviour (see [issue
// 23199]) seen when using a regular sync.Pool with buffers of dynamic sizes;
// buffers that are too large are kept alive by repeat usages that don't need
// such sizes.
//
// [issue 23199]: https://github.com/golang/go/issues/23199
package pool

import (
	"math"
	"sync"
	"sync/atomic"
)

// Buffers is a pool of byte slices of varying capacity, used for class file
// entries read out of archives.
//
// It prevents the indefinite retention of (too) large buffers by keeping a
// history of required sizes (utility) and comparing them to the actual
// capacity (cost) before accepting a buffer back.
type Buffers struct {
	// The utility below which the cost of allocating a buffer is more
	// expensive than just keeping it. Set this to the expected entry size (or
	// perhaps a bit larger to reduce allocations more).
	MinUtility int

	pool       sync.Pool
	avgUtility uint64 // Actually a float64, but that type does not have atomic ops.
}

// Get returns an empty buffer, possibly with spare capacity.
func (p *Buffers) Get() []byte {
	if b, ok := p.pool.Get().(*[]byte); ok {
		return (*b)[:0]
	}
	return nil
}

// Put returns buf to the pool. The utility is len(buf), the part of the buffer
// that was actually used; the cost is its capacity. It reports whether the
// buffer was retained.
func (p *Buffers) Put(buf []byte) bool {
	utility, cost := float64(len(buf)), float64(cap(buf))
	// Update the average utility. Uses atomic load/store, which means that
	// values can get lost if Put is called concurrently. That's fine, we're
	// just looking for an approximate (weighted) moving average.
	avgUtility := math.Float64frombits(atomic.LoadUint64(&p.avgUtility))
	avgUtility = decay(avgUtility, utility, float64(p.MinUtility))
	atomic.StoreUint64(&p.avgUtility, math.Float64bits(avgUtility))

	if cost == 0 || cost > 10*avgUtility {
		return false // If the cost is 10x larger than the average utility, drop it.
	}
	p.pool.Put(&buf)
	return true
}

// decay updates returns `val` if `val > `prev`, otherwise it returns an
// exponentially moving average of `prev` and `val` (with factor 0.5. This is
// meant to provide a slower downramp if `val` drops ever lower. The minimum
// value is `min`.
func decay(prev, val, min float64) float64 {
	if val < min {
		val = min
	}
	if prev == 0 || val > prev {
		return val
	}
	const factor = 0.5
	return (prev * factor) + (val * (1 - factor))
}
