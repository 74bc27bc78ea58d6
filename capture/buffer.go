package capture

import (
	"errors"
	"sync"
)

var ErrBufferFull = errors.New("capture: audio buffer full")

// AudioBuffer collects recorded chunks until they are flushed.
type AudioBuffer struct {
	mu      sync.Mutex
	chunks  [][]byte
	size    int
	maxSize int
}

func NewAudioBuffer(maxSize int) *AudioBuffer {
	return &AudioBuffer{maxSize: maxSize}
}

// Append copies the chunk into the buffer.
func (b *AudioBuffer) Append(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size+len(chunk) > b.maxSize {
		return ErrBufferFull
	}
	b.chunks = append(b.chunks, append([]byte(nil), chunk...))
	b.size += len(chunk)
	return nil
}

// Flush returns the chunks joined in order and empties the buffer.
func (b *AudioBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	b.chunks = nil
	b.size = 0
	return out
}

func (b *AudioBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
}

func (b *AudioBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *AudioBuffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
