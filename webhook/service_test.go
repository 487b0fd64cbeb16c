package webhook_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/signature"
	"github.com/growthbook/notify/store/memory"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

func ctx() context.Context { return context.Background() }

func newService() *webhook.Service {
	return webhook.NewService(memory.New(), taxonomy.Default(), nil)
}

func validInput() webhook.Input {
	return webhook.Input{
		Name:    "Deploys",
		URL:     "https://example.com/hook",
		Events:  []string{"feature.created", "feature.updated"},
		Enabled: true,
	}
}

func TestWebhookServiceCreate(t *testing.T) {
	svc := newService()

	sub, err := svc.Create(ctx(), "org1", validInput())
	if err != nil {
		t.Fatal(err)
	}

	if sub.ID.Prefix() != id.PrefixWebhook {
		t.Fatalf("expected ewh prefix, got %q", sub.ID.Prefix())
	}
	if !strings.HasPrefix(sub.SigningKey, signature.KeyPrefix) {
		t.Fatalf("expected generated signing key, got %q", sub.SigningKey)
	}
	if sub.Method != webhook.MethodPost || sub.PayloadType != webhook.PayloadRaw {
		t.Fatalf("expected POST/raw defaults, got %s/%s", sub.Method, sub.PayloadType)
	}
	if sub.LastState != webhook.StateNone {
		t.Fatalf("expected lastState none, got %q", sub.LastState)
	}

	other, _ := svc.Create(ctx(), "org1", validInput())
	if other.SigningKey == sub.SigningKey {
		t.Fatal("signing keys must be unique")
	}
}

func TestWebhookServiceCreateValidation(t *testing.T) {
	svc := newService()

	tests := []struct {
		name  string
		edit  func(*webhook.Input)
		field string
	}{
		{"missing name", func(in *webhook.Input) { in.Name = " " }, "name"},
		{"bad url", func(in *webhook.Input) { in.URL = "not a url" }, "url"},
		{"non-http url", func(in *webhook.Input) { in.URL = "ftp://example.com" }, "url"},
		{"no events", func(in *webhook.Input) { in.Events = nil }, "events"},
		{"unknown event", func(in *webhook.Input) { in.Events = []string{"feature.exploded"} }, "events"},
		{"bad method", func(in *webhook.Input) { in.Method = "GET" }, "method"},
		{"bad payload type", func(in *webhook.Input) { in.PayloadType = "xml" }, "payloadType"},
		{"empty header name", func(in *webhook.Input) { in.Headers = map[string]string{"": "x"} }, "headers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.edit(&in)
			_, err := svc.Create(ctx(), "org1", in)

			var ve *webhook.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestWebhookServiceUpdate(t *testing.T) {
	svc := newService()
	sub, _ := svc.Create(ctx(), "org1", validInput())

	name := "Renamed"
	changed, err := svc.Update(ctx(), sub.ID, "org1", webhook.Patch{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected a change")
	}

	got, _ := svc.GetByID(ctx(), sub.ID, "org1")
	if got.Name != "Renamed" {
		t.Fatalf("got name %q", got.Name)
	}
	if !got.DateUpdated.After(sub.DateUpdated) && !got.DateUpdated.Equal(sub.DateUpdated) {
		t.Fatal("dateUpdated went backwards")
	}
	if got.SigningKey != sub.SigningKey {
		t.Fatal("update must keep the signing key")
	}

	changed, err = svc.Update(ctx(), sub.ID, "org1", webhook.Patch{Name: &name})
	if err != nil || changed {
		t.Fatalf("identical patch should report no change, got %v %v", changed, err)
	}

	changed, err = svc.Update(ctx(), id.NewWebhookID(), "org1", webhook.Patch{Name: &name})
	if err != nil || changed {
		t.Fatalf("missing webhook should report no change, got %v %v", changed, err)
	}

	changed, _ = svc.Update(ctx(), sub.ID, "org2", webhook.Patch{Name: &name})
	if changed {
		t.Fatal("another organization must not update the webhook")
	}

	empty := []string{}
	if _, err := svc.Update(ctx(), sub.ID, "org1", webhook.Patch{Events: &empty}); err == nil {
		t.Fatal("expected validation error for empty events")
	}
}

func TestWebhookServiceDelete(t *testing.T) {
	svc := newService()
	sub, _ := svc.Create(ctx(), "org1", validInput())

	deleted, err := svc.Delete(ctx(), sub.ID, "org2")
	if err != nil || deleted {
		t.Fatalf("delete from another organization should be false, got %v %v", deleted, err)
	}

	deleted, err = svc.Delete(ctx(), sub.ID, "org1")
	if err != nil || !deleted {
		t.Fatalf("expected delete, got %v %v", deleted, err)
	}

	deleted, _ = svc.Delete(ctx(), sub.ID, "org1")
	if deleted {
		t.Fatal("second delete should be false")
	}

	if _, err := svc.GetByID(ctx(), sub.ID, "org1"); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWebhookServiceListMatchingEvent(t *testing.T) {
	svc := newService()

	mk := func(edit func(*webhook.Input)) *webhook.Subscription {
		in := validInput()
		edit(&in)
		sub, err := svc.Create(ctx(), "org1", in)
		if err != nil {
			t.Fatal(err)
		}
		return sub
	}

	all := mk(func(*webhook.Input) {})
	tagged := mk(func(in *webhook.Input) { in.Tags = []string{"checkout"} })
	mk(func(in *webhook.Input) { in.Tags = []string{"billing"} })
	mk(func(in *webhook.Input) { in.Enabled = false })
	mk(func(in *webhook.Input) { in.Events = []string{"experiment.created"} })

	got, err := svc.ListMatchingEvent(ctx(), "org1", webhook.MatchOpts{
		EventName: "feature.created",
		Enabled:   true,
		Tags:      []string{"checkout", "growth"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ids := map[string]bool{}
	for _, s := range got {
		ids[s.ID.String()] = true
	}
	if len(got) != 2 || !ids[all.ID.String()] || !ids[tagged.ID.String()] {
		t.Fatalf("expected wildcard and tagged webhooks, got %d", len(got))
	}
}

func TestWebhookServiceRecordDeliveryStatus(t *testing.T) {
	svc := newService()
	sub, _ := svc.Create(ctx(), "org1", validInput())

	svc.RecordDeliveryStatus(ctx(), sub.ID, webhook.Succeeded("ok"))
	got, _ := svc.Get(ctx(), sub.ID)
	if got.LastState != webhook.StateSuccess || got.LastResponseBody != "ok" || got.LastRunAt == nil {
		t.Fatalf("unexpected status %+v", got)
	}

	// Missing webhooks are logged, never surfaced.
	svc.RecordDeliveryStatus(ctx(), id.NewWebhookID(), webhook.Failed("x"))
}

func TestWebhookServiceRotateSigningKey(t *testing.T) {
	svc := newService()
	sub, _ := svc.Create(ctx(), "org1", validInput())

	key, err := svc.RotateSigningKey(ctx(), sub.ID, "org1")
	if err != nil {
		t.Fatal(err)
	}
	if key == sub.SigningKey {
		t.Fatal("expected a new key")
	}
	got, _ := svc.Get(ctx(), sub.ID)
	if got.SigningKey != key {
		t.Fatal("expected the new key to be stored")
	}
}
