package httpd

import (
	"math/bits"
	"sync"
)

const (
	// minBufferSize is the smallest pooled size class.
	minBufferSize = 32
	// maxBufferSize is the maximum size of buffers that will be pooled.
	maxBufferSize = 64 * 1024 // 64KB
)

// bufferPool keeps one sync.Pool per power-of-two size class.
type bufferPool struct {
	pools []*sync.Pool
}

// Global buffer pool instance.
var globalBufferPool = newBufferPool()

// newBufferPool creates a new buffer pool with classes from 32B to 64KB.
func newBufferPool() *bufferPool {
	bp := &bufferPool{}

	for size := minBufferSize; size <= maxBufferSize; size <<= 1 {
		size := size
		bp.pools = append(bp.pools, &sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		})
	}

	return bp
}

// classIndex returns the index of the smallest class holding size bytes.
func classIndex(size int) int {
	if size <= minBufferSize {
		return 0
	}

	return bits.Len(uint(size-1)) - bits.Len(uint(minBufferSize-1))
}

// getBuffer returns a buffer with len == size. Sizes above maxBufferSize are
// allocated directly.
func (bp *bufferPool) getBuffer(size int) []byte {
	if size > maxBufferSize {
		return make([]byte, size)
	}

	bufp, _ := bp.pools[classIndex(size)].Get().(*[]byte)
	if bufp == nil {
		return make([]byte, size)
	}

	return (*bufp)[:size]
}

// putBuffer returns a buffer obtained from getBuffer to its class.
func (bp *bufferPool) putBuffer(buf []byte) {
	c := cap(buf)
	if c > maxBufferSize || c < minBufferSize || c&(c-1) != 0 {
		return // Not one of ours.
	}

	buf = buf[:c]
	bp.pools[classIndex(c)].Put(&buf)
}

// GetBuffer retrieves a pooled buffer of exactly size bytes.
func GetBuffer(size int) []byte {
	return globalBufferPool.getBuffer(size)
}

// PutBuffer returns a buffer obtained from GetBuffer to the pool.
func PutBuffer(buf []byte) {
	globalBufferPool.putBuffer(buf)
}
