// Package webhook manages an organization's outbound webhook subscriptions.
package webhook

import (
	"errors"
	"slices"
	"time"

	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/internal/entity"
	"github.com/growthbook/notify/signature"
)

// ErrNotFound is returned when a subscription cannot be found.
var ErrNotFound = errors.New("notify: webhook not found")

// Method is the HTTP method used for deliveries.
type Method string

// Supported methods.
const (
	MethodPost  Method = "POST"
	MethodPut   Method = "PUT"
	MethodPatch Method = "PATCH"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	}
	return false
}

// PayloadType selects the shape of the delivered body.
type PayloadType string

// Payload types.
const (
	PayloadRaw     PayloadType = "raw"
	PayloadSlack   PayloadType = "slack"
	PayloadDiscord PayloadType = "discord"
	PayloadTeams   PayloadType = "ms-teams"
)

// Valid reports whether p is a known payload type.
func (p PayloadType) Valid() bool {
	switch p {
	case PayloadRaw, PayloadSlack, PayloadDiscord, PayloadTeams:
		return true
	}
	return false
}

// State is the outcome of the most recent delivery.
type State string

// Delivery states.
const (
	StateNone    State = "none"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Subscription is one organization's request to receive events at a URL.
type Subscription struct {
	entity.Entity

	ID             id.ID  `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	URL            string `json:"url"`

	Method      Method            `json:"method"`
	PayloadType PayloadType       `json:"payloadType"`
	Headers     map[string]string `json:"headers"`

	// Events is the non-empty set of "<resource>.<event>" names wanted.
	Events []string `json:"events"`

	// Empty filters match everything.
	Projects     []string `json:"projects"`
	Tags         []string `json:"tags"`
	Environments []string `json:"environments"`

	Enabled bool `json:"enabled"`

	// SigningKey signs every delivery. Never serialized.
	SigningKey string `json:"-"`

	LastRunAt        *time.Time `json:"lastRunAt,omitempty"`
	LastState        State      `json:"lastState"`
	LastResponseBody string     `json:"lastResponseBody,omitempty"`
}

// ApplyDefaults fills fields that records written by older versions may
// lack. It reports whether anything changed.
func (s *Subscription) ApplyDefaults() bool {
	changed := false
	if s.Method == "" {
		s.Method = MethodPost
		changed = true
	}
	if s.PayloadType == "" {
		s.PayloadType = PayloadRaw
		changed = true
	}
	if s.Headers == nil {
		s.Headers = map[string]string{}
		changed = true
	}
	if s.LastState == "" {
		s.LastState = StateNone
		changed = true
	}
	if s.SigningKey == "" {
		s.SigningKey = signature.GenerateKey()
		changed = true
	}
	for _, list := range []*[]string{&s.Events, &s.Projects, &s.Tags, &s.Environments} {
		if *list == nil {
			*list = []string{}
			changed = true
		}
	}
	return changed
}

// MatchOpts selects subscriptions for one event.
type MatchOpts struct {
	EventName string
	Enabled   bool
	Tags      []string
	Projects  []string
}

// Match reports whether s wants an event described by o: its events contain
// the name, its enabled flag equals o.Enabled, and its tag and project
// filters are each empty or share at least one value with the event.
func Match(s *Subscription, o MatchOpts) bool {
	if !slices.Contains(s.Events, o.EventName) {
		return false
	}
	if s.Enabled != o.Enabled {
		return false
	}
	return filterMatches(s.Tags, o.Tags) && filterMatches(s.Projects, o.Projects)
}

// MatchEnvironments applies the same empty-is-wildcard rule to environments.
func MatchEnvironments(s *Subscription, environments []string) bool {
	return filterMatches(s.Environments, environments)
}

func filterMatches(filter, values []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, v := range values {
		if slices.Contains(filter, v) {
			return true
		}
	}
	return false
}

// Status is a delivery outcome recorded on a subscription.
type Status struct {
	State State
	// ResponseBody is the response body on success, the error message on
	// failure.
	ResponseBody string
}

// Succeeded is the status of a 2xx delivery.
func Succeeded(body string) Status {
	return Status{State: StateSuccess, ResponseBody: body}
}

// Failed is the status of a failed delivery.
func Failed(message string) Status {
	return Status{State: StateError, ResponseBody: message}
}
