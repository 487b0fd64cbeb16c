package audit

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/taxonomy"
)

// LegacyQuery is an audit-log query as old consumers issue it.
type LegacyQuery struct {
	EntityType string
	EntityID   string

	// Events are "<resource>.<verb>" names in either convention.
	Events []string

	From *time.Time
	To   *time.Time

	Page    int
	PerPage int
}

// WrapLegacyQuery converts q into Event Store list options. Every requested
// event matches both of its spellings, so mixed history is found.
func (a *Adapter) WrapLegacyQuery(q LegacyQuery) event.ListOpts {
	opts := event.ListOpts{
		Page:       q.Page,
		PerPage:    q.PerPage,
		ObjectType: q.EntityType,
		ObjectID:   q.EntityID,
		From:       q.From,
		To:         q.To,
		SortOrder:  event.SortDesc,
	}
	seen := make(map[string]bool)
	for _, name := range q.Events {
		for _, s := range a.Spellings(name) {
			if !seen[s] {
				seen[s] = true
				opts.EventTypes = append(opts.EventTypes, s)
			}
		}
	}
	return opts
}

// Entity identifies the audited object.
type Entity struct {
	Object string `json:"object"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
}

// Record is an event rendered in the legacy audit-log shape.
type Record struct {
	ID           string     `json:"id"`
	Organization string     `json:"organization"`
	User         event.User `json:"user"`
	Event        string     `json:"event"`
	Entity       Entity     `json:"entity"`
	DateCreated  time.Time  `json:"dateCreated"`

	// Details is a JSON string {pre, post, context}, as legacy readers
	// expect.
	Details string `json:"details"`
}

type details struct {
	Pre     map[string]any `json:"pre,omitempty"`
	Post    map[string]any `json:"post,omitempty"`
	Context map[string]any `json:"context"`
}

// ToLegacyRecord renders evt as a legacy audit record. Events stored under
// either naming convention are accepted.
func (a *Adapter) ToLegacyRecord(evt *event.Event) Record {
	resource, action, _ := strings.Cut(evt.EventName, ".")
	verb, _ := a.NotificationToAudit(taxonomy.Resource(resource), action)

	obj := evt.Data.Data.Object
	rec := Record{
		ID:           evt.ID.String(),
		Organization: evt.OrganizationID,
		User:         evt.Data.User,
		Event:        resource + "." + verb,
		Entity: Entity{
			Object: evt.ObjectType,
			ID:     evt.ObjectID,
		},
		DateCreated: evt.DateCreated,
	}
	if rec.Entity.Object == "" {
		rec.Entity.Object = resource
	}
	if name, ok := obj["name"].(string); ok {
		rec.Entity.Name = name
	}
	if rec.Entity.ID == "" {
		if objID, ok := obj["id"].(string); ok {
			rec.Entity.ID = objID
		}
	}

	d := details{Context: map[string]any{}}
	switch verb {
	case "create":
		d.Post = obj
	case "delete":
		d.Pre = obj
	case "update":
		d.Post = obj
		if prev := evt.Data.Data.PreviousAttributes; prev != nil {
			d.Pre = previousObject(obj, prev)
		}
	default:
		d.Post = obj
	}
	maps.Copy(d.Context, evt.Data.Data.Extra)
	if c := evt.Data.Data.Changes; c != nil {
		d.Context["changes"] = c
	}
	if len(evt.Data.Projects) > 0 {
		d.Context["projects"] = evt.Data.Projects
	}
	if len(evt.Data.Environments) > 0 {
		d.Context["environments"] = evt.Data.Environments
	}

	b, err := json.Marshal(d)
	if err != nil {
		b = []byte(`{}`)
	}
	rec.Details = string(b)
	return rec
}

// previousObject rebuilds the object before an update from the current
// object and its previous attributes. A nil previous value means the key did
// not exist. previous_attributes records absent keys as null, so a key whose
// old value was an explicit null cannot be told apart and is dropped from
// pre as well.
func previousObject(current, previous map[string]any) map[string]any {
	pre := maps.Clone(current)
	for k, v := range previous {
		if v == nil {
			delete(pre, k)
			continue
		}
		pre[k] = v
	}
	return pre
}

// WrapLegacyQuery converts q with the default adapter.
func WrapLegacyQuery(q LegacyQuery) event.ListOpts {
	return Default().WrapLegacyQuery(q)
}

// ToLegacyRecord renders evt with the default adapter.
func ToLegacyRecord(evt *event.Event) Record {
	return Default().ToLegacyRecord(evt)
}
