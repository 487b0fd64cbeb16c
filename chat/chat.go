// Package chat posts event summaries to Slack, Discord and Microsoft Teams
// incoming webhooks configured per organization.
package chat

import (
	"context"
	"slices"

	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/webhook"
)

// Kind is the chat provider of an integration.
type Kind = webhook.PayloadType

// Supported kinds.
const (
	KindSlack   Kind = webhook.PayloadSlack
	KindDiscord Kind = webhook.PayloadDiscord
	KindTeams   Kind = webhook.PayloadTeams
)

// Integration is one chat destination of an organization.
type Integration struct {
	ID             string `json:"id" yaml:"id"`
	OrganizationID string `json:"organizationId" yaml:"organization_id"`
	Name           string `json:"name" yaml:"name"`
	Kind           Kind   `json:"kind" yaml:"kind"`
	URL            string `json:"url" yaml:"url"`

	// Events lists the wanted event names. Empty filters below match
	// everything.
	Events       []string `json:"events" yaml:"events"`
	Projects     []string `json:"projects" yaml:"projects"`
	Environments []string `json:"environments" yaml:"environments"`
	Tags         []string `json:"tags" yaml:"tags"`
}

// Wants reports whether the integration should receive evt.
func (in Integration) Wants(evt *event.Event) bool {
	if evt.OrganizationID != in.OrganizationID {
		return false
	}
	if !slices.Contains(in.Events, evt.EventName) {
		return false
	}
	return intersects(in.Projects, evt.Data.Projects) &&
		intersects(in.Environments, evt.Data.Environments) &&
		intersects(in.Tags, evt.Data.Tags)
}

func intersects(filter, values []string) bool {
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

// Source lists an organization's chat integrations.
type Source interface {
	Integrations(ctx context.Context, orgID string) ([]Integration, error)
}

// StaticSource is a fixed set of integrations, usually read from config.
type StaticSource []Integration

// Integrations implements Source.
func (s StaticSource) Integrations(_ context.Context, orgID string) ([]Integration, error) {
	var out []Integration
	for _, in := range s {
		if in.OrganizationID == orgID {
			out = append(out, in)
		}
	}
	return out, nil
}
