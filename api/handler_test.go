package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/growthbook/notify/api"
	"github.com/growthbook/notify/audit"
	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/store/memory"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

type harness struct {
	srv    *httptest.Server
	logs   *deliverylog.Service
	events *event.Service
}

// testServer creates a Handler backed by a memory store.
func testServer(t *testing.T) *harness {
	t.Helper()

	s := memory.New()
	logger := slog.Default()
	registry := taxonomy.Default()
	events := event.NewService(s, registry, event.Config{APIVersion: "2024-07-31"}, logger)
	subs := webhook.NewService(s, registry, logger)
	logs := deliverylog.NewService(s, logger)

	h := api.NewHandler(subs, events, logs, audit.NewReader(events, nil), logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, logs: logs, events: events}
}

func (h *harness) do(t *testing.T, method, path, orgID string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, h.srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if orgID != "" {
		req.Header.Set(api.HeaderOrganization, orgID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d: %s",
			resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, b)
	}
}

func (h *harness) createWebhook(t *testing.T, orgID string) map[string]any {
	t.Helper()
	resp := h.do(t, "POST", "/event-webhooks", orgID, map[string]any{
		"name":    "ci hook",
		"url":     "https://example.com/hook",
		"events":  []string{"feature.created", "feature.updated"},
		"enabled": true,
	})
	expectStatus(t, resp, http.StatusCreated)
	var body struct {
		EventWebHook map[string]any `json:"eventWebHook"`
	}
	decodeBody(t, resp, &body)
	return body.EventWebHook
}

func TestOrganizationRequired(t *testing.T) {
	h := testServer(t)

	resp := h.do(t, "GET", "/event-webhooks", "", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestWebhooks_CRUD(t *testing.T) {
	h := testServer(t)

	// Create reveals the signing key once.
	created := h.createWebhook(t, "org1")
	subID, _ := created["id"].(string)
	if subID == "" {
		t.Fatal("expected non-empty webhook ID")
	}
	if key, _ := created["signingKey"].(string); key == "" {
		t.Fatal("expected the signing key in the create response")
	}
	if created["method"] != "POST" || created["payloadType"] != "raw" || created["lastState"] != "none" {
		t.Fatalf("expected defaults, got %v", created)
	}

	// Get hides it.
	resp := h.do(t, "GET", "/event-webhooks/"+subID, "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	var got struct {
		EventWebHook map[string]any `json:"eventWebHook"`
	}
	decodeBody(t, resp, &got)
	if _, ok := got.EventWebHook["signingKey"]; ok {
		t.Fatal("signing key must not be returned after creation")
	}

	// List
	resp = h.do(t, "GET", "/event-webhooks", "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	var list struct {
		EventWebHooks []map[string]any `json:"eventWebHooks"`
	}
	decodeBody(t, resp, &list)
	if len(list.EventWebHooks) != 1 {
		t.Fatalf("expected 1 webhook, got %d", len(list.EventWebHooks))
	}

	// Update
	resp = h.do(t, "PUT", "/event-webhooks/"+subID, "org1", map[string]any{"name": "renamed"})
	expectStatus(t, resp, http.StatusOK)
	var upd map[string]bool
	decodeBody(t, resp, &upd)
	if !upd["updated"] {
		t.Fatal("expected updated=true")
	}

	// Same values again change nothing.
	resp = h.do(t, "PUT", "/event-webhooks/"+subID, "org1", map[string]any{"name": "renamed"})
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &upd)
	if upd["updated"] {
		t.Fatal("expected updated=false for a no-op patch")
	}

	// Delete
	resp = h.do(t, "DELETE", "/event-webhooks/"+subID, "org1", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = h.do(t, "DELETE", "/event-webhooks/"+subID, "org1", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestWebhooks_OtherOrganizationIsNotFound(t *testing.T) {
	h := testServer(t)
	subID := h.createWebhook(t, "org1")["id"].(string)

	for _, req := range []struct {
		method, path string
		body         any
	}{
		{"GET", "/event-webhooks/" + subID, nil},
		{"PUT", "/event-webhooks/" + subID, map[string]any{"name": "x"}},
		{"DELETE", "/event-webhooks/" + subID, nil},
		{"GET", "/event-webhooks/logs/" + subID, nil},
		{"POST", "/event-webhooks/" + subID + "/rotate-key", nil},
	} {
		resp := h.do(t, req.method, req.path, "org2", req.body)
		expectStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	}
}

func TestWebhooks_CreateValidation(t *testing.T) {
	h := testServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"no events", map[string]any{"name": "a", "url": "https://example.com", "events": []string{}}},
		{"unknown event", map[string]any{"name": "a", "url": "https://example.com", "events": []string{"feature.exploded"}}},
		{"bad url", map[string]any{"name": "a", "url": "not a url", "events": []string{"feature.created"}}},
		{"no name", map[string]any{"url": "https://example.com", "events": []string{"feature.created"}}},
		{"bad method", map[string]any{"name": "a", "url": "https://example.com", "events": []string{"feature.created"}, "method": "GET"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, "POST", "/event-webhooks", "org1", tt.body)
			expectStatus(t, resp, http.StatusBadRequest)
			resp.Body.Close()
		})
	}
}

func TestWebhooks_RotateKey(t *testing.T) {
	h := testServer(t)
	created := h.createWebhook(t, "org1")
	subID := created["id"].(string)

	resp := h.do(t, "POST", "/event-webhooks/"+subID+"/rotate-key", "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["signingKey"] == "" || body["signingKey"] == created["signingKey"] {
		t.Fatalf("expected a fresh key, got %q", body["signingKey"])
	}
}

func TestWebhooks_TestEndpointCreatesEvent(t *testing.T) {
	h := testServer(t)
	subID := h.createWebhook(t, "org1")["id"].(string)

	resp := h.do(t, "POST", "/event-webhooks/test", "org1", map[string]string{"webhookId": subID})
	expectStatus(t, resp, http.StatusOK)
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["eventId"] == "" {
		t.Fatal("expected the created event id")
	}

	resp = h.do(t, "GET", "/events/"+body["eventId"], "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	var got struct {
		Event struct {
			EventName string `json:"eventName"`
			Data      struct {
				Data struct {
					Object map[string]any `json:"object"`
				} `json:"data"`
			} `json:"data"`
		} `json:"event"`
	}
	decodeBody(t, resp, &got)
	if got.Event.EventName != "webhook.test" {
		t.Fatalf("expected webhook.test, got %q", got.Event.EventName)
	}
	if got.Event.Data.Data.Object["webhookId"] != subID {
		t.Fatalf("expected object.webhookId %s, got %v", subID, got.Event.Data.Data.Object)
	}

	// Unknown webhook
	resp = h.do(t, "POST", "/event-webhooks/test", "org1", map[string]string{"webhookId": id.NewWebhookID().String()})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestDeliveryLogs_NewestFirstWithLimit(t *testing.T) {
	h := testServer(t)
	subID, err := id.ParseWebhookID(h.createWebhook(t, "org1")["id"].(string))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	var last id.ID
	for i := 0; i < 3; i++ {
		e := &deliverylog.Entry{
			WebhookID:      subID,
			OrganizationID: "org1",
			EventID:        id.NewEventID(),
			Result:         deliverylog.ResultSuccess,
			Payload:        json.RawMessage(`{}`),
		}
		if err := h.logs.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
		last = e.ID
	}

	resp := h.do(t, "GET", "/event-webhooks/logs/"+subID.String()+"?limit=2", "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	var body struct {
		EventWebHookLogs []map[string]any `json:"eventWebHookLogs"`
	}
	decodeBody(t, resp, &body)
	if len(body.EventWebHookLogs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(body.EventWebHookLogs))
	}
	if body.EventWebHookLogs[0]["id"] != last.String() {
		t.Fatalf("expected newest entry first, got %v", body.EventWebHookLogs[0]["id"])
	}
}

func TestEventsAndAudit_Listing(t *testing.T) {
	h := testServer(t)
	subID := h.createWebhook(t, "org1")["id"].(string)

	for i := 0; i < 3; i++ {
		resp := h.do(t, "POST", "/event-webhooks/test", "org1", map[string]string{"webhookId": subID})
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := h.do(t, "GET", "/events?perPage=2&type=webhook.test", "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	var page struct {
		Events []map[string]any `json:"events"`
		Total  int64            `json:"total"`
	}
	decodeBody(t, resp, &page)
	if len(page.Events) != 2 || page.Total != 3 {
		t.Fatalf("expected 2 of 3 events, got %d of %d", len(page.Events), page.Total)
	}

	resp = h.do(t, "GET", "/events?from=yesterday", "org1", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = h.do(t, "GET", "/audit?entityType=webhook", "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	var records struct {
		Events []map[string]any `json:"events"`
		Total  int64            `json:"total"`
	}
	decodeBody(t, resp, &records)
	if records.Total != 3 || len(records.Events) != 3 {
		t.Fatalf("expected 3 audit records, got %d (total %d)", len(records.Events), records.Total)
	}

	// Other organizations see nothing.
	resp = h.do(t, "GET", "/events", "org2", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &page)
	if page.Total != 0 || len(page.Events) != 0 {
		t.Fatalf("expected no events for org2, got %d", page.Total)
	}
}

func TestEvents_OutOfRangePage(t *testing.T) {
	h := testServer(t)
	subID := h.createWebhook(t, "org1")["id"].(string)
	resp := h.do(t, "POST", "/event-webhooks/test", "org1", map[string]string{"webhookId": subID})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	var page struct {
		Events []map[string]any `json:"events"`
		Total  int64            `json:"total"`
		Page   int              `json:"page"`
	}

	resp = h.do(t, "GET", "/events?page=50000000000000000&perPage=200", "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &page)
	if len(page.Events) != 0 || page.Total != 1 {
		t.Fatalf("expected an empty page of 1 event, got %d of %d", len(page.Events), page.Total)
	}

	// Values that do not fit an int fall back to the first page.
	resp = h.do(t, "GET", "/events?page=99999999999999999999999", "org1", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &page)
	if page.Page != 1 || len(page.Events) != 1 {
		t.Fatalf("expected page 1 with 1 event, got page %d with %d", page.Page, len(page.Events))
	}
}
