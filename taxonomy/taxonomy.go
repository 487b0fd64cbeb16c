// Package taxonomy is the static registry of notification event types.
//
// Every event the system can emit is one Entry in a single literal table
// (see Entries). The set of resources, the set of event names and every
// payload validator are derived from that table, never maintained twice.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEvent is returned when a (resource, event) pair has no entry.
	ErrUnknownEvent = errors.New("notify: unknown event")

	// ErrSchemaValidation is returned when a payload does not match its entry.
	ErrSchemaValidation = errors.New("notify: payload schema validation failed")
)

// Resource is a domain entity type that emits events.
type Resource string

// Resources known to the registry.
const (
	ResourceFeature    Resource = "feature"
	ResourceExperiment Resource = "experiment"
	ResourceSavedGroup Resource = "savedGroup"
	ResourceUser       Resource = "user"
	ResourceWebhook    Resource = "webhook"
)

// AllResources enumerates every Resource constant.
var AllResources = []Resource{
	ResourceFeature,
	ResourceExperiment,
	ResourceSavedGroup,
	ResourceUser,
	ResourceWebhook,
}

// Name identifies one event type: a resource and an event on it.
type Name struct {
	Resource Resource
	Event    string
}

// String returns "<resource>.<event>".
func (n Name) String() string {
	return string(n.Resource) + "." + n.Event
}

// ParseName splits "<resource>.<event>" at the first dot.
// It does not check the registry; use Registry.LookupName for that.
func ParseName(s string) (Name, error) {
	resource, event, ok := strings.Cut(s, ".")
	if !ok || resource == "" || event == "" {
		return Name{}, fmt.Errorf("%w: malformed event name %q", ErrUnknownEvent, s)
	}
	return Name{Resource: Resource(resource), Event: event}, nil
}

// Schema is a JSON Schema document.
type Schema map[string]any

// Entry describes one event type.
type Entry struct {
	Name Name

	// PayloadSchema validates data.object.
	PayloadSchema Schema

	// ExtraSchema is an object schema whose properties are allowed, next to
	// object, at the top of data. Mutually exclusive with IsDiff.
	ExtraSchema Schema

	// IsDiff marks update events whose stored data carries previous_attributes.
	IsDiff bool

	FirstVersion string
	HideFromDocs bool
	Description  string
}

// Mode selects which data shape a payload validator accepts.
type Mode int

const (
	// OnWrite validates what callers hand to the event store.
	OnWrite Mode = iota
	// OnRead validates stored events, after diff computation.
	OnRead
)

func (m Mode) String() string {
	if m == OnRead {
		return "read"
	}
	return "write"
}
