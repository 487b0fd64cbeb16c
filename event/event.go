// Package event defines notification events and the service that records them.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/growthbook/notify/id"
)

// ErrNotFound is returned when an event cannot be found.
var ErrNotFound = errors.New("notify: event not found")

// SchemaVersion is stamped on every event written by this package.
const SchemaVersion = 1

// Event is an immutable record of something that happened to a resource.
type Event struct {
	ID             id.ID     `json:"id"`
	OrganizationID string    `json:"organizationId"`
	ObjectType     string    `json:"objectType"`
	ObjectID       string    `json:"objectId,omitempty"`
	EventName      string    `json:"eventName"`
	SchemaVersion  int       `json:"schemaVersion"`
	DateCreated    time.Time `json:"dateCreated"`
	Data           Payload   `json:"data"`
}

// Clone returns a deep copy of e. Nested maps and slices in the payload
// are copied so the clone shares no mutable state with e.
func (e *Event) Clone() *Event {
	cp := *e
	cp.Data = e.Data.Clone()
	return &cp
}

// Payload is the notification body delivered to handlers and webhooks.
type Payload struct {
	Event           string   `json:"event"`
	Object          string   `json:"object"`
	APIVersion      string   `json:"api_version"`
	Created         int64    `json:"created"`
	Data            Data     `json:"data"`
	User            User     `json:"user"`
	Projects        []string `json:"projects"`
	Tags            []string `json:"tags"`
	Environments    []string `json:"environments"`
	ContainsSecrets bool     `json:"containsSecrets"`
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	p.Data = p.Data.Clone()
	p.Projects = slices.Clone(p.Projects)
	p.Tags = slices.Clone(p.Tags)
	p.Environments = slices.Clone(p.Environments)
	return p
}

// Changes is a caller-supplied classification of the keys of an update.
type Changes struct {
	Added    map[string]any `json:"added,omitempty"`
	Removed  map[string]any `json:"removed,omitempty"`
	Modified map[string]any `json:"modified,omitempty"`
}

// Data is payload.data: the object, the diff for update events, and any
// extra fields the taxonomy entry allows. Extra fields are encoded next to
// object rather than nested.
type Data struct {
	Object             map[string]any
	PreviousAttributes map[string]any
	Changes            *Changes
	Extra              map[string]any
}

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	out := Data{
		Object:             cloneMap(d.Object),
		PreviousAttributes: cloneMap(d.PreviousAttributes),
		Extra:              cloneMap(d.Extra),
	}
	if d.Changes != nil {
		out.Changes = &Changes{
			Added:    cloneMap(d.Changes.Added),
			Removed:  cloneMap(d.Changes.Removed),
			Modified: cloneMap(d.Changes.Modified),
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the JSON container types. Other values are returned
// as is.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

const (
	keyObject   = "object"
	keyPrevious = "previous_attributes"
	keyChanges  = "changes"
)

// MarshalJSON implements json.Marshaler.
func (d Data) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Extra)+3)
	for k, v := range d.Extra {
		m[k] = v
	}
	obj := d.Object
	if obj == nil {
		obj = map[string]any{}
	}
	m[keyObject] = obj
	if d.PreviousAttributes != nil {
		m[keyPrevious] = d.PreviousAttributes
	}
	if d.Changes != nil {
		m[keyChanges] = d.Changes
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Data) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = Data{}
	for k, v := range raw {
		var err error
		switch k {
		case keyObject:
			err = json.Unmarshal(v, &d.Object)
		case keyPrevious:
			err = json.Unmarshal(v, &d.PreviousAttributes)
		case keyChanges:
			err = json.Unmarshal(v, &d.Changes)
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]any)
			}
			var x any
			err = json.Unmarshal(v, &x)
			d.Extra[k] = x
		}
		if err != nil {
			return fmt.Errorf("event data %q: %w", k, err)
		}
	}
	return nil
}

// UserKind tags the User variant.
type UserKind string

// User kinds.
const (
	UserDashboard UserKind = "dashboard"
	UserAPIKey    UserKind = "api_key"
	UserSystem    UserKind = "system"
)

// User identifies who caused an event. Which fields are meaningful depends
// on Kind; use the constructors.
type User struct {
	Kind   UserKind
	ID     string
	Email  string
	Name   string
	APIKey string
}

// DashboardUser is a signed-in user.
func DashboardUser(userID, email, name string) User {
	return User{Kind: UserDashboard, ID: userID, Email: email, Name: name}
}

// APIKeyUser is a request authenticated with an API key.
func APIKeyUser(key string) User {
	return User{Kind: UserAPIKey, APIKey: key}
}

// SystemUser is the system itself, e.g. a scheduled job.
func SystemUser() User {
	return User{Kind: UserSystem}
}

type dashboardJSON struct {
	Type  UserKind `json:"type"`
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
}

type apiKeyJSON struct {
	Type   UserKind `json:"type"`
	APIKey string   `json:"apiKey"`
}

type systemJSON struct {
	Type UserKind `json:"type"`
}

// MarshalJSON encodes only the fields of the user's variant.
func (u User) MarshalJSON() ([]byte, error) {
	switch u.Kind {
	case UserDashboard:
		return json.Marshal(dashboardJSON{Type: u.Kind, ID: u.ID, Email: u.Email, Name: u.Name})
	case UserAPIKey:
		return json.Marshal(apiKeyJSON{Type: u.Kind, APIKey: u.APIKey})
	default:
		return json.Marshal(systemJSON{Type: UserSystem})
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *User) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type   UserKind `json:"type"`
		ID     string   `json:"id"`
		Email  string   `json:"email"`
		Name   string   `json:"name"`
		APIKey string   `json:"apiKey"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case UserDashboard:
		*u = DashboardUser(raw.ID, raw.Email, raw.Name)
	case UserAPIKey:
		*u = APIKeyUser(raw.APIKey)
	case UserSystem, "":
		*u = SystemUser()
	default:
		return fmt.Errorf("event user: unknown type %q", raw.Type)
	}
	return nil
}
