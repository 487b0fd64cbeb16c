package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthbook/notify/audit"
	"github.com/growthbook/notify/diff"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/internal/entity"
	"github.com/growthbook/notify/store/memory"
	"github.com/growthbook/notify/taxonomy"
)

func TestMappingsAreInverses(t *testing.T) {
	a := audit.Default()

	for resource, verbs := range audit.LegacyVerbs {
		for _, verb := range verbs {
			event, ok := a.AuditToNotification(resource, verb)
			require.True(t, ok, "%s.%s", resource, verb)

			back, ok := a.NotificationToAudit(resource, event)
			require.True(t, ok, "%s.%s", resource, event)
			assert.Equal(t, verb, back, "%s: %s -> %s -> %s", resource, verb, event, back)
		}
	}
}

func TestRewriteRules(t *testing.T) {
	tests := []struct {
		resource taxonomy.Resource
		verb     string
		want     string
	}{
		{taxonomy.ResourceFeature, "create", "created"},
		{taxonomy.ResourceFeature, "update", "updated"},
		{taxonomy.ResourceExperiment, "delete", "deleted"},
		{taxonomy.ResourceExperiment, "start", "start"},
		{taxonomy.ResourceUser, "login", "login"},
		{taxonomy.ResourceWebhook, "test", "test"},
	}
	for _, tt := range tests {
		got, ok := audit.AuditToNotification(tt.resource, tt.verb)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "%s.%s", tt.resource, tt.verb)
	}

	got, ok := audit.AuditToNotification(taxonomy.ResourceFeature, "teleport")
	assert.False(t, ok)
	assert.Equal(t, "teleport", got)
}

func TestExceptionsAreNotRewritten(t *testing.T) {
	a, err := audit.NewAdapter(audit.Table{
		taxonomy.ResourceUser: {"create"},
	}, taxonomy.ResourceUser)
	require.NoError(t, err)

	got, _ := a.AuditToNotification(taxonomy.ResourceUser, "create")
	assert.Equal(t, "create", got)
}

func TestEveryLegacyVerbIsAnEventOrAuditOnly(t *testing.T) {
	reg := taxonomy.Default()
	a := audit.Default()

	auditOnly := map[string]bool{
		"feature.publish": true, "feature.archive": true, "feature.toggle": true,
		"experiment.start": true, "experiment.stop": true, "experiment.results": true,
		"experiment.analysis": true, "experiment.archive": true,
	}
	for resource, verbs := range audit.LegacyVerbs {
		for _, verb := range verbs {
			name, _ := a.AuditToNotification(resource, verb)
			full := string(resource) + "." + name
			if reg.Has(full) {
				continue
			}
			assert.True(t, auditOnly[string(resource)+"."+verb], "%s is neither an event nor audit-only", full)
		}
	}
}

func TestNewAdapterRejectsCollisions(t *testing.T) {
	_, err := audit.NewAdapter(audit.Table{
		taxonomy.ResourceFeature: {"create", "created"},
	})
	assert.Error(t, err)
}

func TestWrapLegacyQueryMatchesBothSpellings(t *testing.T) {
	opts := audit.WrapLegacyQuery(audit.LegacyQuery{
		EntityType: "feature",
		EntityID:   "feat_1",
		Events:     []string{"feature.create", "feature.updated", "feature.toggle"},
		PerPage:    10,
	})

	assert.ElementsMatch(t, []string{
		"feature.create", "feature.created",
		"feature.updated", "feature.update",
		"feature.toggle",
	}, opts.EventTypes)
	assert.Equal(t, "feature", opts.ObjectType)
	assert.Equal(t, "feat_1", opts.ObjectID)
	assert.Equal(t, 10, opts.Limit())
}

func legacyDetails(t *testing.T, rec audit.Record) map[string]any {
	t.Helper()
	var d map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Details), &d))
	return d
}

func TestToLegacyRecordUpdate(t *testing.T) {
	evt := &event.Event{
		ID:             id.NewEventID(),
		OrganizationID: "org1",
		ObjectType:     "feature",
		ObjectID:       "feat_1",
		EventName:      "feature.updated",
		DateCreated:    entity.Now(),
		Data: event.Payload{
			Data: event.Data{
				Object:             map[string]any{"id": "feat_1", "name": "Checkout", "enabled": true, "owner": "b"},
				PreviousAttributes: map[string]any{"enabled": false, "owner": nil},
			},
			User: event.SystemUser(),
		},
	}

	rec := audit.ToLegacyRecord(evt)
	assert.Equal(t, "feature.update", rec.Event)
	assert.Equal(t, audit.Entity{Object: "feature", ID: "feat_1", Name: "Checkout"}, rec.Entity)

	d := legacyDetails(t, rec)
	pre := d["pre"].(map[string]any)
	assert.Equal(t, false, pre["enabled"])
	assert.NotContains(t, pre, "owner")
	assert.Equal(t, true, d["post"].(map[string]any)["enabled"])
}

func TestToLegacyRecordDropsNullPreviousValues(t *testing.T) {
	// {description: null} -> {description: "x"} diffs to the same
	// previous_attributes as a key that did not exist before.
	res, err := diff.Compute(
		map[string]any{"id": "feat_1", "description": "x"},
		map[string]any{"id": "feat_1", "description": nil},
	)
	require.NoError(t, err)
	added, err := diff.Compute(
		map[string]any{"id": "feat_1", "description": "x"},
		map[string]any{"id": "feat_1"},
	)
	require.NoError(t, err)
	require.Equal(t, added.PreviousAttributes, res.PreviousAttributes)

	evt := &event.Event{
		ID:          id.NewEventID(),
		ObjectType:  "feature",
		ObjectID:    "feat_1",
		EventName:   "feature.updated",
		DateCreated: entity.Now(),
		Data: event.Payload{
			Data: event.Data{Object: res.Object, PreviousAttributes: res.PreviousAttributes},
		},
	}

	pre := legacyDetails(t, audit.ToLegacyRecord(evt))["pre"].(map[string]any)
	assert.NotContains(t, pre, "description")
	assert.Equal(t, "feat_1", pre["id"])
}

func TestToLegacyRecordToleratesLegacyNames(t *testing.T) {
	evt := &event.Event{
		ID:        id.NewEventID(),
		EventName: "feature.delete",
		Data: event.Payload{
			Data: event.Data{Object: map[string]any{"id": "feat_9"}},
		},
	}

	rec := audit.ToLegacyRecord(evt)
	assert.Equal(t, "feature.delete", rec.Event)
	assert.Equal(t, "feature", rec.Entity.Object)
	assert.Equal(t, "feat_9", rec.Entity.ID)
	assert.Contains(t, legacyDetails(t, rec), "pre")
}

func TestReaderListsMixedHistory(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := event.NewService(s, nil, event.Config{APIVersion: "v"}, nil)

	_, err := svc.Create(ctx, event.CreateParams{
		OrganizationID: "org1",
		Resource:       taxonomy.ResourceFeature,
		Event:          "created",
		ObjectID:       "feat_1",
		Object:         map[string]any{"id": "feat_1"},
	})
	require.NoError(t, err)

	// A record migrated from the old audit log keeps its legacy name.
	legacy := &event.Event{
		ID:             id.NewEventID(),
		OrganizationID: "org1",
		ObjectType:     "feature",
		ObjectID:       "feat_1",
		EventName:      "feature.create",
		DateCreated:    entity.Now(),
		Data:           event.Payload{Data: event.Data{Object: map[string]any{"id": "feat_1"}}},
	}
	require.NoError(t, s.CreateEvent(ctx, legacy))

	records, total, err := audit.NewReader(svc, nil).List(ctx, "org1", audit.LegacyQuery{
		EntityType: "feature",
		EntityID:   "feat_1",
		Events:     []string{"feature.create"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "feature.create", r.Event)
	}
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := audit.NewLogHandler(slog.New(slog.NewJSONHandler(&buf, nil)))

	evt := &event.Event{
		ID:             id.NewEventID(),
		OrganizationID: "org1",
		EventName:      "experiment.created",
		ObjectType:     "experiment",
		Data:           event.Payload{Data: event.Data{Object: map[string]any{"id": "exp_1"}}},
	}
	require.NoError(t, h.Handle(context.Background(), evt))

	assert.Equal(t, "audit", h.Name())
	assert.True(t, strings.Contains(buf.String(), `"audit_event":"experiment.create"`), buf.String())
}
