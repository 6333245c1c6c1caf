package orchestrator

import (
	"context"
	"sync"
)

// MemoryCounter is a process-local RunCounter.
type MemoryCounter struct {
	mu   sync.Mutex
	last int64
}

// NewMemoryCounter creates a counter whose first Next returns start+1
func NewMemoryCounter(start int64) *MemoryCounter {
	return &MemoryCounter{last: start}
}

func (c *MemoryCounter) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last, nil
}
