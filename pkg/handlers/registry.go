package handlers

import (
	"sort"

	"mediaharvest/pkg/logger"
)

// GenericPriority is the registry floor: the generic handler accepts
// everything at this priority, so selection never comes up empty.
const GenericPriority = 100

type registration struct {
	handler  Handler
	priority int
	order    int
}

// Registry is a statically-populated, priority-ordered handler list.
// Populate it at startup; selection is read-only after that.
type Registry struct {
	entries []registration
	log     logger.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{log: logger.GetLogger()}
}

// NewDefaultRegistry returns the standard handler set: site handlers
// first, the generic fallback at the floor.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewBlueskyHandler(), 10)
	r.Register(NewGenericHandler(), GenericPriority)
	return r
}

// Register adds a handler at the given priority. Lower priorities are
// consulted first; equal priorities keep registration order.
func (r *Registry) Register(h Handler, priority int) {
	r.entries = append(r.entries, registration{
		handler:  h,
		priority: priority,
		order:    len(r.entries),
	})
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].priority != r.entries[j].priority {
			return r.entries[i].priority < r.entries[j].priority
		}
		return r.entries[i].order < r.entries[j].order
	})
}

// SelectHandler returns the first handler accepting the URL. A panic
// inside a CanHandle predicate is treated as a non-match, so one
// broken handler cannot take down selection.
func (r *Registry) SelectHandler(url string) Handler {
	for _, entry := range r.entries {
		if r.canHandle(entry.handler, url) {
			return entry.handler
		}
	}
	return nil
}

func (r *Registry) canHandle(h Handler, url string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WarnWithFields("handler predicate panicked, treating as non-match", map[string]interface{}{
				"handler": h.Name(),
				"url":     url,
				"panic":   rec,
			})
			ok = false
		}
	}()
	return h.CanHandle(url)
}

// Handlers returns the registered handlers in selection order.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.handler
	}
	return out
}
