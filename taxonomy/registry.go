package taxonomy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry answers lookups over a fixed set of entries.
type Registry struct {
	entries   map[Name]Entry
	names     []string
	resources []Resource

	mu         sync.RWMutex
	validators map[validatorKey]*PayloadValidator
	logger     *slog.Logger
}

type validatorKey struct {
	name Name
	mode Mode
}

// NewRegistry derives a registry from entries. It rejects duplicate names,
// entries that are both diff and extra, and entries without a payload schema.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries:    make(map[Name]Entry, len(entries)),
		validators: make(map[validatorKey]*PayloadValidator),
		logger:     slog.Default(),
	}

	seen := make(map[Resource]bool)
	for _, e := range entries {
		if _, dup := r.entries[e.Name]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate entry %s", e.Name)
		}
		if e.IsDiff && e.ExtraSchema != nil {
			return nil, fmt.Errorf("taxonomy: %s cannot be both diff and extra", e.Name)
		}
		if e.PayloadSchema == nil {
			return nil, fmt.Errorf("taxonomy: %s has no payload schema", e.Name)
		}
		r.entries[e.Name] = e
		r.names = append(r.names, e.Name.String())
		if !seen[e.Name.Resource] {
			seen[e.Name.Resource] = true
			r.resources = append(r.resources, e.Name.Resource)
		}
	}

	sort.Strings(r.names)
	sort.Slice(r.resources, func(i, j int) bool { return r.resources[i] < r.resources[j] })
	return r, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(Entries()...)
	if err != nil {
		panic(err)
	}
	return r
})

// Default returns the registry built from Entries.
func Default() *Registry { return defaultRegistry() }

// Lookup returns the entry for (resource, event).
func (r *Registry) Lookup(resource Resource, event string) (Entry, error) {
	e, ok := r.entries[Name{Resource: resource, Event: event}]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s.%s", ErrUnknownEvent, resource, event)
	}
	return e, nil
}

// LookupName returns the entry for a "<resource>.<event>" string.
func (r *Registry) LookupName(name string) (Entry, error) {
	n, err := ParseName(name)
	if err != nil {
		return Entry{}, err
	}
	return r.Lookup(n.Resource, n.Event)
}

// Has reports whether name is a registered event name.
func (r *Registry) Has(name string) bool {
	_, err := r.LookupName(name)
	return err == nil
}

// Resources returns the sorted set of resources that have entries.
func (r *Registry) Resources() []Resource {
	return append([]Resource(nil), r.resources...)
}

// EventNames returns the sorted set of every "<resource>.<event>" name.
func (r *Registry) EventNames() []string {
	return append([]string(nil), r.names...)
}

// Entries returns every entry ordered by name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.names))
	for _, name := range r.names {
		n, _ := ParseName(name) //nolint:errcheck // names come from entries
		out = append(out, r.entries[n])
	}
	return out
}

// ValidateEventNames returns an error naming the first entry of names that
// is not registered.
func (r *Registry) ValidateEventNames(names []string) error {
	for _, name := range names {
		if !r.Has(name) {
			return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
		}
	}
	return nil
}

// BuildPayloadValidator returns the (cached) validator for full notification
// payloads of (resource, event) in the given mode.
func (r *Registry) BuildPayloadValidator(resource Resource, event string, mode Mode) (*PayloadValidator, error) {
	e, err := r.Lookup(resource, event)
	if err != nil {
		return nil, err
	}
	key := validatorKey{name: e.Name, mode: mode}

	r.mu.RLock()
	if v, ok := r.validators[key]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	v, err := compile(e, mode)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.validators[key] = v
	r.mu.Unlock()

	r.logger.Debug("compiled payload validator", "event", e.Name.String(), "mode", mode.String())
	return v, nil
}
