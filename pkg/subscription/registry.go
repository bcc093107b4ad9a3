package subscription

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tablefeed/tablefeed-go/pkg/notification"
)

// Callback receives decoded notifications for a tenant key.
type Callback func(notification.Notification)

// PanicError wraps a value recovered from a consumer callback.
type PanicError struct {
	Key   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("subscription callback for %q panicked: %v", e.Key, e.Value)
}

// entry is one registration. Its address is the registration identity.
type entry struct {
	cb Callback
}

// Registry maps tenant keys to ordered consumer callbacks.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]*entry

	logger  *slog.Logger
	onPanic func(error)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string][]*entry),
	}
}

// SetLogger sets the logger used to report recovered panics.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// OnPanic sets a hook invoked with a *PanicError for every recovered panic.
func (r *Registry) OnPanic(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPanic = fn
}

// Add registers cb for key and returns a function that removes exactly this
// registration. The returned function is safe to call more than once.
func (r *Registry) Add(key string, cb Callback) func() {
	e := &entry{cb: cb}

	r.mu.Lock()
	r.entries[key] = append(r.entries[key], e)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(key, e) })
	}
}

func (r *Registry) remove(key string, target *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[key]
	for i, e := range list {
		if e == target {
			// Copy so in-flight dispatch snapshots are unaffected.
			next := make([]*entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(r.entries, key)
			} else {
				r.entries[key] = next
			}
			return
		}
	}
}

// Has reports whether key has at least one registration.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[key]) > 0
}

// Count returns the number of registrations for key.
func (r *Registry) Count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[key])
}

// Keys returns all keys with at least one registration, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Callbacks returns the callbacks registered for key in registration order.
func (r *Registry) Callbacks(key string) []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.entries[key]
	cbs := make([]Callback, len(list))
	for i, e := range list {
		cbs[i] = e.cb
	}
	return cbs
}

// Dispatch delivers n to every callback registered for key, in registration
// order, and returns how many callbacks completed without panicking.
// Callbacks added or removed during dispatch take effect for the next one.
func (r *Registry) Dispatch(key string, n notification.Notification) int {
	return r.DispatchWhile(key, n, nil)
}

// DispatchWhile is Dispatch that checks live before each callback and stops
// as soon as it reports false. A nil live always continues.
func (r *Registry) DispatchWhile(key string, n notification.Notification, live func() bool) int {
	r.mu.RLock()
	list := r.entries[key]
	logger := r.logger
	onPanic := r.onPanic
	r.mu.RUnlock()

	delivered := 0
	for _, e := range list {
		if live != nil && !live() {
			break
		}
		if err := invoke(key, e.cb, n); err != nil {
			if logger != nil {
				logger.Error("notification callback failed", "tenant", key, "error", err)
			}
			if onPanic != nil {
				onPanic(err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

func invoke(key string, cb Callback, n notification.Notification) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Key: key, Value: v}
		}
	}()
	cb(n)
	return nil
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string][]*entry)
}
