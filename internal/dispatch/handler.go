package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/muaviaUsmani/hearth/internal/event"
)

// HandlerFunc runs the side effect of a due event. Returning a zero time
// lets the event's own expression decide the next run; a non-zero time is
// used as the next run instead.
type HandlerFunc func(ctx context.Context, ev *event.Event) (time.Time, error)

// Registry manages handlers by task type
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates a new handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for a task type, replacing any previous one
func (r *Registry) Register(taskType string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = handler
}

// Get retrieves a handler by task type
func (r *Registry) Get(taskType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.handlers[taskType]
	return handler, exists
}

// Count returns the number of registered handlers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// TaskTypes returns the registered task types in sorted order
func (r *Registry) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Execute runs the handler registered for ev.TaskType
func (r *Registry) Execute(ctx context.Context, ev *event.Event) (time.Time, error) {
	handler, exists := r.Get(ev.TaskType)
	if !exists {
		return time.Time{}, fmt.Errorf("no handler registered for task type: %s", ev.TaskType)
	}
	return handler(ctx, ev)
}
