package channel

import (
	"context"
	"sync"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
)

// DispatchFunc is the global entry point a tag exposes, e.g. fn("track", "Lead", params).
type DispatchFunc func(args ...any) any

// Decorator wraps a DispatchFunc. It receives the original and returns its replacement.
type Decorator func(original DispatchFunc) DispatchFunc

const watchBuffer = 8

type entry struct {
	original   DispatchFunc
	decorator  Decorator
	wrapped    DispatchFunc
	generation uint64
}

// Registry holds one DispatchFunc per channel.
type Registry struct {
	mu       sync.RWMutex
	entries  map[Name]*entry
	watchers map[uint64]chan Name
	nextID   uint64
	logger   log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger log.Logger) RegistryOption {
	return func(r *Registry) {
		if !nilcheck.Interface(logger) {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:  make(map[Name]*entry),
		watchers: make(map[uint64]chan Name),
		logger:   log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Install binds fn to name and notifies watchers. Installing over a wrapped
// channel keeps the wrapper, applied to the new function.
func (r *Registry) Install(name Name, fn DispatchFunc) error {
	if r == nil {
		return ErrRegistryRequired
	}

	if fn == nil {
		return ErrDispatchRequired
	}

	r.mu.Lock()

	current, ok := r.entries[name]
	if !ok {
		current = &entry{}
		r.entries[name] = current
	}

	current.original = fn
	if current.decorator != nil {
		current.wrapped = current.decorator(fn)
	}

	// Sends are non-blocking and happen under the lock so a concurrent cancel
	// cannot close a channel mid-send.
	for _, ch := range r.watchers {
		select {
		case ch <- name:
		default:
		}
	}

	r.mu.Unlock()

	r.logger.Log(context.Background(), log.LevelDebug, "channel installed", log.Channel(name.String()))

	return nil
}

// Teardown unbinds name, dropping any active wrapper. It reports whether the
// channel was installed.
func (r *Registry) Teardown(name Name) bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return false
	}

	delete(r.entries, name)

	return true
}

// Lookup returns the callable bound to name: the wrapper when one is active,
// the installed function otherwise.
func (r *Registry) Lookup(name Name) (DispatchFunc, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	current, ok := r.entries[name]
	if !ok || current.original == nil {
		return nil, false
	}

	if current.wrapped != nil {
		return current.wrapped, true
	}

	return current.original, true
}

// Available reports whether name has an installed function.
func (r *Registry) Available(name Name) bool {
	_, ok := r.Lookup(name)

	return ok
}

// Watch subscribes to install notifications. Notifications are coalesced when
// the subscriber lags; cancel releases the subscription and closes the channel.
func (r *Registry) Watch() (<-chan Name, func()) {
	ch := make(chan Name, watchBuffer)

	if r == nil {
		close(ch)

		return ch, func() {}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.watchers[id] = ch
	r.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, id)
			r.mu.Unlock()

			close(ch)
		})
	}
}

// Wrap replaces the callable of name with decorator(original). At most one
// wrapper may be active per channel. The returned restore func reinstates the
// original exactly; calling it twice returns ErrWrapperReleased.
func (r *Registry) Wrap(name Name, decorator Decorator) (func() error, error) {
	if r == nil {
		return nil, ErrRegistryRequired
	}

	if decorator == nil {
		return nil, ErrDecoratorRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[name]
	if !ok || current.original == nil {
		return nil, ErrNotInstalled
	}

	if current.decorator != nil {
		return nil, ErrAlreadyWrapped
	}

	wrapped := decorator(current.original)
	if wrapped == nil {
		return nil, ErrDispatchRequired
	}

	current.generation++
	generation := current.generation
	current.decorator = decorator
	current.wrapped = wrapped

	return func() error {
		r.mu.Lock()
		defer r.mu.Unlock()

		active, ok := r.entries[name]
		if !ok || active != current || active.generation != generation || active.decorator == nil {
			return ErrWrapperReleased
		}

		active.decorator = nil
		active.wrapped = nil

		return nil
	}, nil
}

// Wrapped reports whether name has an active wrapper.
func (r *Registry) Wrapped(name Name) bool {
	if r == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	current, ok := r.entries[name]

	return ok && current.decorator != nil
}
