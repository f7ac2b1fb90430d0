package oversight

import (
	"context"
	"sync"

	"github.com/jllopis/aegis/pkg/core"
)

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *captureEmitter) Emit(_ context.Context, e core.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *captureEmitter) has(t core.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type == t {
			return true
		}
	}
	return false
}
