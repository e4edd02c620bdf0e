package audiocore

import (
	"sync"
	"sync/atomic"

	"github.com/audiorewind/rewind-go/internal/errors"
)

// Float32Pool provides a thread-safe pool of float32 slices so the capture
// callback can hand blocks to the writer without steady-state allocation.
// It falls back to allocation when empty, so Get never fails.
type Float32Pool struct {
	pool      sync.Pool
	size      int
	gets      atomic.Uint64
	news      atomic.Uint64
	discarded atomic.Uint64
}

// Float32PoolStats contains statistics about pool usage
type Float32PoolStats struct {
	Hits      uint64 // Number of successful buffer reuses (Gets - News)
	Misses    uint64 // Number of new allocations (News)
	Discarded uint64 // Number of buffers discarded due to size mismatch
}

// NewFloat32Pool creates a new pool for float32 slices of the specified size.
// Returns an error if the size is invalid (zero or negative).
func NewFloat32Pool(size int) (*Float32Pool, error) {
	if size <= 0 {
		return nil, errors.Newf("invalid float32 pool size: %d", size).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("operation", "create_float32_pool").
			Context("requested_size", size).
			Build()
	}

	fp := &Float32Pool{
		size: size,
	}

	fp.pool = sync.Pool{
		New: func() any {
			fp.news.Add(1)
			return make([]float32, size)
		},
	}

	return fp, nil
}

// Get retrieves a float32 slice from the pool.
// If the pool is empty, a new slice is allocated.
func (fp *Float32Pool) Get() []float32 {
	fp.gets.Add(1)
	return fp.pool.Get().([]float32)
}

// Put returns a float32 slice to the pool. The slice may have been resliced
// by the caller; it is restored to full capacity before reuse. Buffers with
// the wrong capacity are discarded to maintain pool integrity.
func (fp *Float32Pool) Put(buf []float32) {
	if buf == nil || cap(buf) != fp.size {
		fp.discarded.Add(1)
		return
	}
	fp.pool.Put(buf[:fp.size]) //nolint:staticcheck // slice header, not pointer
}

// GetStats returns current pool statistics
func (fp *Float32Pool) GetStats() Float32PoolStats {
	gets := fp.gets.Load()
	news := fp.news.Load()

	return Float32PoolStats{
		Hits:      gets - news,
		Misses:    news,
		Discarded: fp.discarded.Load(),
	}
}
