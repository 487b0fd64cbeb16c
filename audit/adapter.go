// Package audit bridges the legacy audit-log naming ("feature.create") and
// the notification naming ("feature.created").
//
// Both directions are derived from one table of legacy verbs per resource.
// NewAdapter refuses tables whose derived maps would not be inverses.
package audit

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/growthbook/notify/taxonomy"
)

// Table lists the legacy audit verbs of each resource.
type Table map[taxonomy.Resource][]string

// LegacyVerbs is the legacy audit verb table. Verbs without a notification
// counterpart (e.g. "toggle") still round-trip; they are audit-only.
var LegacyVerbs = Table{
	taxonomy.ResourceFeature:    {"create", "update", "delete", "publish", "archive", "toggle"},
	taxonomy.ResourceExperiment: {"create", "update", "delete", "start", "stop", "results", "analysis", "archive"},
	taxonomy.ResourceSavedGroup: {"create", "update", "delete"},
	taxonomy.ResourceUser:       {"login"},
	taxonomy.ResourceWebhook:    {"test"},
}

// Exceptions are resources whose audit verbs were never rewritten.
var Exceptions = []taxonomy.Resource{
	taxonomy.ResourceUser,
	taxonomy.ResourceWebhook,
}

// verbToEvent is the only rewrite rule; every other verb is unchanged.
var verbToEvent = map[string]string{
	"create": "created",
	"update": "updated",
	"delete": "deleted",
}

type pair struct {
	resource taxonomy.Resource
	name     string
}

// Adapter translates between the two naming conventions.
type Adapter struct {
	toNotification map[pair]string
	toAudit        map[pair]string
}

// NewAdapter derives both mappings from table. It fails if two verbs of one
// resource would map to the same event name.
func NewAdapter(table Table, exceptions ...taxonomy.Resource) (*Adapter, error) {
	skip := make(map[taxonomy.Resource]bool, len(exceptions))
	for _, r := range exceptions {
		skip[r] = true
	}

	a := &Adapter{
		toNotification: make(map[pair]string),
		toAudit:        make(map[pair]string),
	}
	for resource, verbs := range table {
		for _, verb := range verbs {
			name := verb
			if mapped, ok := verbToEvent[verb]; ok && !skip[resource] {
				name = mapped
			}
			if prev, dup := a.toAudit[pair{resource, name}]; dup {
				return nil, fmt.Errorf("audit: %s verbs %q and %q both map to %q", resource, prev, verb, name)
			}
			a.toNotification[pair{resource, verb}] = name
			a.toAudit[pair{resource, name}] = verb
		}
	}
	return a, nil
}

var defaultAdapter = sync.OnceValue(func() *Adapter {
	a, err := NewAdapter(LegacyVerbs, Exceptions...)
	if err != nil {
		panic(err)
	}
	return a
})

// Default returns the adapter built from LegacyVerbs and Exceptions.
func Default() *Adapter { return defaultAdapter() }

// AuditToNotification maps a legacy verb to a notification event. The bool
// reports whether (resource, verb) is in the table; unknown verbs are
// returned unchanged.
func (a *Adapter) AuditToNotification(resource taxonomy.Resource, verb string) (string, bool) {
	name, ok := a.toNotification[pair{resource, verb}]
	if !ok {
		return verb, false
	}
	return name, true
}

// NotificationToAudit is the inverse of AuditToNotification.
func (a *Adapter) NotificationToAudit(resource taxonomy.Resource, event string) (string, bool) {
	verb, ok := a.toAudit[pair{resource, event}]
	if !ok {
		return event, false
	}
	return verb, true
}

// Verbs returns the legacy verbs known for resource, sorted.
func (a *Adapter) Verbs(resource taxonomy.Resource) []string {
	var out []string
	for p := range a.toNotification {
		if p.resource == resource {
			out = append(out, p.name)
		}
	}
	sort.Strings(out)
	return out
}

// Spellings returns every stored spelling of a "<resource>.<verb-or-event>"
// name: the name itself plus its counterpart in the other convention.
func (a *Adapter) Spellings(name string) []string {
	resource, action, ok := strings.Cut(name, ".")
	if !ok {
		return []string{name}
	}
	r := taxonomy.Resource(resource)
	out := []string{name}
	if event, ok := a.AuditToNotification(r, action); ok && event != action {
		out = append(out, resource+"."+event)
	}
	if verb, ok := a.NotificationToAudit(r, action); ok && verb != action {
		out = append(out, resource+"."+verb)
	}
	return out
}

// AuditToNotification maps with the default adapter.
func AuditToNotification(resource taxonomy.Resource, verb string) (string, bool) {
	return Default().AuditToNotification(resource, verb)
}

// NotificationToAudit maps with the default adapter.
func NotificationToAudit(resource taxonomy.Resource, event string) (string, bool) {
	return Default().NotificationToAudit(resource, event)
}
