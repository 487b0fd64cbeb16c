package delivery

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/webhook"
)

// Message is the human-readable summary of an event used by chat formats.
type Message struct {
	Title  string
	Text   string
	Fields []Field
}

// Field is one labelled line of a Message.
type Field struct {
	Name  string
	Value string
}

// Describe summarizes evt for chat destinations.
func Describe(evt *event.Event) Message {
	p := evt.Data
	subject := objectLabel(p.Data.Object)
	if subject == "" {
		subject = evt.ObjectID
	}

	title := p.Event
	if subject != "" {
		title = fmt.Sprintf("%s: %s", p.Event, subject)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s %s", actorLabel(p.User), verbOf(p.Event))
	if p.Object != "" {
		fmt.Fprintf(&text, " %s", p.Object)
	}
	if subject != "" {
		fmt.Fprintf(&text, " %s", subject)
	}
	text.WriteString(".")

	var fields []Field
	if evt.ObjectID != "" {
		fields = append(fields, Field{Name: "ID", Value: evt.ObjectID})
	}
	if len(p.Projects) > 0 {
		fields = append(fields, Field{Name: "Projects", Value: strings.Join(p.Projects, ", ")})
	}
	if len(p.Environments) > 0 {
		fields = append(fields, Field{Name: "Environments", Value: strings.Join(p.Environments, ", ")})
	}
	if len(p.Tags) > 0 {
		fields = append(fields, Field{Name: "Tags", Value: strings.Join(p.Tags, ", ")})
	}
	if changed := changedKeys(p.Data); len(changed) > 0 {
		fields = append(fields, Field{Name: "Changed", Value: strings.Join(changed, ", ")})
	}

	return Message{Title: title, Text: text.String(), Fields: fields}
}

// Format renders the body sent to a destination of the given payload type.
func Format(pt webhook.PayloadType, evt *event.Event) ([]byte, error) {
	switch pt {
	case webhook.PayloadRaw, "":
		return json.Marshal(evt.Data)
	case webhook.PayloadSlack:
		return json.Marshal(slackBody(Describe(evt)))
	case webhook.PayloadDiscord:
		return json.Marshal(discordBody(Describe(evt)))
	case webhook.PayloadTeams:
		return json.Marshal(teamsBody(Describe(evt)))
	default:
		return nil, fmt.Errorf("delivery: unknown payload type %q", pt)
	}
}

func slackBody(m Message) map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": m.Title},
		},
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": m.Text},
		},
	}
	if len(m.Fields) > 0 {
		fields := make([]map[string]any, len(m.Fields))
		for i, f := range m.Fields {
			fields[i] = map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s*\n%s", f.Name, f.Value)}
		}
		blocks = append(blocks, map[string]any{"type": "section", "fields": fields})
	}
	return map[string]any{"text": m.Title, "blocks": blocks}
}

func discordBody(m Message) map[string]any {
	fields := make([]map[string]any, len(m.Fields))
	for i, f := range m.Fields {
		fields[i] = map[string]any{"name": f.Name, "value": f.Value, "inline": true}
	}
	return map[string]any{
		"content": m.Title,
		"embeds": []map[string]any{{
			"title":       m.Title,
			"description": m.Text,
			"fields":      fields,
		}},
	}
}

func teamsBody(m Message) map[string]any {
	facts := make([]map[string]any, len(m.Fields))
	for i, f := range m.Fields {
		facts[i] = map[string]any{"name": f.Name, "value": f.Value}
	}
	return map[string]any{
		"@type":    "MessageCard",
		"@context": "http://schema.org/extensions",
		"summary":  m.Title,
		"title":    m.Title,
		"text":     m.Text,
		"sections": []map[string]any{{"facts": facts}},
	}
}

func objectLabel(obj map[string]any) string {
	for _, k := range []string{"name", "key", "id"} {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func actorLabel(u event.User) string {
	switch u.Kind {
	case event.UserDashboard:
		if u.Name != "" {
			return u.Name
		}
		if u.Email != "" {
			return u.Email
		}
		return "A user"
	case event.UserAPIKey:
		return "An API key"
	default:
		return "The system"
	}
}

func verbOf(eventName string) string {
	_, verb, ok := strings.Cut(eventName, ".")
	if !ok {
		return eventName
	}
	return strings.ReplaceAll(verb, ".", " ")
}

func changedKeys(d event.Data) []string {
	keys := make([]string, 0, len(d.PreviousAttributes))
	for k := range d.PreviousAttributes {
		keys = append(keys, k)
	}
	if d.Changes != nil {
		for _, m := range []map[string]any{d.Changes.Added, d.Changes.Removed, d.Changes.Modified} {
			for k := range m {
				if !slices.Contains(keys, k) {
					keys = append(keys, k)
				}
			}
		}
	}
	slices.Sort(keys)
	return keys
}
