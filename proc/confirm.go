package proc

import (
	"context"
	"sync"
	"time"
)

// Confirmations tracks pending yes/no prompts for destructive queue
// operations. A prompt that is not answered in time counts as cancelled.
type Confirmations struct {
	mu      sync.Mutex
	pending map[string]chan bool
}

func NewConfirmations() *Confirmations {
	return &Confirmations{pending: make(map[string]chan bool)}
}

// Await blocks until key is resolved or timeout passes. It returns
// ErrConfirmationTimeout on timeout and the context error on cancellation.
func (c *Confirmations) Await(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	ch := make(chan bool, 1)
	c.mu.Lock()
	if old, ok := c.pending[key]; ok {
		old <- false
	}
	c.pending[key] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending[key] == ch {
			delete(c.pending, key)
		}
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ok := <-ch:
		return ok, nil
	case <-timer.C:
		return false, ErrConfirmationTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve answers the prompt for key. It reports whether a prompt was waiting.
func (c *Confirmations) Resolve(key string, confirmed bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[key]
	if !ok {
		return false
	}
	delete(c.pending, key)
	ch <- confirmed
	return true
}

// Pending reports whether key is awaiting an answer.
func (c *Confirmations) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}
