package performance

import (
	"bytes"
	"sync"
)

// maxPooledBuffer keeps oversized buffers out of the pool
const maxPooledBuffer = 4 << 20

// BufferPool provides reusable byte buffers for image encoding
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Get retrieves an empty buffer from the pool
func (bp *BufferPool) Get() *bytes.Buffer {
	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	bp.pool.Put(buf)
}
