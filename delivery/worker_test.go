package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/growthbook/notify/delivery"
	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/signature"
	"github.com/growthbook/notify/store/memory"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

type harness struct {
	store   *memory.Store
	events  *event.Service
	subs    *webhook.Service
	logs    *deliverylog.Service
	queue   *jobs.Queue
	worker  *delivery.Worker
	metrics *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := memory.New()
	h := &harness{
		store:   s,
		events:  event.NewService(s, taxonomy.Default(), event.Config{APIVersion: "2024-07-31"}, nil),
		subs:    webhook.NewService(s, taxonomy.Default(), nil),
		logs:    deliverylog.NewService(s, nil),
		queue:   jobs.NewQueue(s, jobs.Config{}, nil),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	h.worker = delivery.NewWorker(h.subs, s, h.logs, h.queue, delivery.Config{
		RequestTimeout: 2 * time.Second,
		Metrics:        h.metrics,
	}, nil)
	if err := h.worker.Attach(h.queue); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) createEvent(t *testing.T, p event.CreateParams) *event.Event {
	t.Helper()
	evt, err := h.events.Create(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return evt
}

func (h *harness) createWebhook(t *testing.T, in webhook.Input) *webhook.Subscription {
	t.Helper()
	sub, err := h.subs.Create(context.Background(), "org1", in)
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func (h *harness) handleAndRun(t *testing.T, evt *event.Event) {
	t.Helper()
	if err := h.worker.Handle(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if _, err := h.queue.RunPending(context.Background()); err != nil {
		t.Fatal(err)
	}
}

type capture struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
}

func (c *capture) server(t *testing.T, status int, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.requests = append(c.requests, r)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func featureUpdated() event.CreateParams {
	return event.CreateParams{
		OrganizationID: "org1",
		Resource:       taxonomy.ResourceFeature,
		Event:          "updated",
		ObjectID:       "feat_1",
		Object:         map[string]any{"id": "feat_1", "name": "A", "enabled": true},
		Previous:       map[string]any{"id": "feat_1", "name": "A", "enabled": false},
		Environments:   []string{"production"},
	}
}

func TestDeliverSuccess(t *testing.T) {
	h := newHarness(t)
	c := &capture{}
	srv := c.server(t, http.StatusOK, "thanks")

	sub := h.createWebhook(t, webhook.Input{
		Name:    "hook",
		URL:     srv.URL,
		Events:  []string{"feature.updated"},
		Enabled: true,
		Headers: map[string]string{"X-Team": "growth"},
	})
	evt := h.createEvent(t, featureUpdated())

	h.handleAndRun(t, evt)

	if c.count() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", c.count())
	}

	req, body := c.requests[0], c.bodies[0]
	if req.Method != http.MethodPost {
		t.Fatalf("method: got %s", req.Method)
	}
	if req.Header.Get("X-Team") != "growth" {
		t.Fatal("custom header not sent")
	}
	if !signature.Verify(body, sub.SigningKey, req.Header.Get(signature.HeaderBody)) {
		t.Fatal("body signature does not verify")
	}
	ts, err := strconv.ParseInt(req.Header.Get(signature.HeaderTimestamp), 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !signature.VerifyTimestamped(req.Header.Get(signature.HeaderID), ts, body, sub.SigningKey, req.Header.Get(signature.HeaderSignature)) {
		t.Fatal("timestamped signature does not verify")
	}

	var payload event.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Event != "feature.updated" {
		t.Fatalf("payload event: got %q", payload.Event)
	}
	if prev := payload.Data.PreviousAttributes; len(prev) != 1 || prev["enabled"] != false {
		t.Fatalf("previous_attributes: got %v", prev)
	}

	got, err := h.subs.Get(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastState != webhook.StateSuccess || got.LastResponseBody != "thanks" || got.LastRunAt == nil {
		t.Fatalf("status not recorded: %+v", got)
	}

	entries, err := h.logs.ListForWebhook(context.Background(), sub.ID, "org1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one log row, got %d", len(entries))
	}
	if entries[0].Result != deliverylog.ResultSuccess || entries[0].ResponseCode == nil || *entries[0].ResponseCode != 200 {
		t.Fatalf("unexpected log row: %+v", entries[0])
	}
	if string(entries[0].Payload) != string(body) {
		t.Fatal("log payload should be the exact body sent")
	}

	if v := testutil.ToFloat64(h.metrics.DeliveriesTotal.WithLabelValues(observability.ResultSuccess)); v != 1 {
		t.Fatalf("expected one successful delivery metric, got %v", v)
	}
}

func TestDeliverFailureIsRecordedNotReturned(t *testing.T) {
	h := newHarness(t)
	c := &capture{}
	srv := c.server(t, http.StatusBadGateway, "upstream down")

	sub := h.createWebhook(t, webhook.Input{
		Name:    "hook",
		URL:     srv.URL,
		Events:  []string{"feature.updated"},
		Enabled: true,
	})
	evt := h.createEvent(t, featureUpdated())

	if err := h.worker.Deliver(context.Background(), evt.ID, sub.ID); err != nil {
		t.Fatalf("delivery failures must not be returned: %v", err)
	}

	got, _ := h.subs.Get(context.Background(), sub.ID)
	if got.LastState != webhook.StateError {
		t.Fatalf("expected error state, got %s", got.LastState)
	}
	entries, _ := h.logs.ListForWebhook(context.Background(), sub.ID, "org1", 0)
	if len(entries) != 1 || entries[0].Result != deliverylog.ResultError {
		t.Fatalf("expected one error row, got %+v", entries)
	}
	if *entries[0].ResponseCode != http.StatusBadGateway || entries[0].ResponseBody != "upstream down" {
		t.Fatalf("unexpected log row: %+v", entries[0])
	}
}

func TestDeliverNetworkFailureHasNoResponseCode(t *testing.T) {
	h := newHarness(t)
	sub := h.createWebhook(t, webhook.Input{
		Name:    "hook",
		URL:     "http://127.0.0.1:1/hook",
		Events:  []string{"feature.updated"},
		Enabled: true,
	})
	evt := h.createEvent(t, featureUpdated())

	if err := h.worker.Deliver(context.Background(), evt.ID, sub.ID); err != nil {
		t.Fatal(err)
	}

	entries, _ := h.logs.ListForWebhook(context.Background(), sub.ID, "org1", 0)
	if len(entries) != 1 {
		t.Fatalf("expected one row, got %d", len(entries))
	}
	if entries[0].ResponseCode != nil {
		t.Fatalf("expected no response code, got %d", *entries[0].ResponseCode)
	}
	if entries[0].ResponseBody == "" {
		t.Fatal("expected the error message as response body")
	}
	got, _ := h.subs.Get(context.Background(), sub.ID)
	if got.LastState != webhook.StateError || got.LastResponseBody == "" {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestHandleFiltersSubscriptions(t *testing.T) {
	h := newHarness(t)
	c := &capture{}
	srv := c.server(t, http.StatusOK, "")

	tests := []struct {
		name  string
		input webhook.Input
		want  bool
	}{
		{"wildcard", webhook.Input{Events: []string{"feature.updated"}, Enabled: true}, true},
		{"disabled", webhook.Input{Events: []string{"feature.updated"}, Enabled: false}, false},
		{"other event", webhook.Input{Events: []string{"feature.created"}, Enabled: true}, false},
		{"matching env", webhook.Input{Events: []string{"feature.updated"}, Enabled: true, Environments: []string{"production"}}, true},
		{"other env", webhook.Input{Events: []string{"feature.updated"}, Enabled: true, Environments: []string{"staging"}}, false},
		{"project filter", webhook.Input{Events: []string{"feature.updated"}, Enabled: true, Projects: []string{"p1"}}, false},
	}

	want := 0
	for _, tt := range tests {
		tt.input.Name = tt.name
		tt.input.URL = srv.URL
		h.createWebhook(t, tt.input)
		if tt.want {
			want++
		}
	}

	evt := h.createEvent(t, featureUpdated())
	h.handleAndRun(t, evt)

	if c.count() != want {
		t.Fatalf("expected %d deliveries, got %d", want, c.count())
	}
}

func TestHandleIsIdempotentPerSubscription(t *testing.T) {
	h := newHarness(t)
	c := &capture{}
	srv := c.server(t, http.StatusOK, "")

	h.createWebhook(t, webhook.Input{Name: "hook", URL: srv.URL, Events: []string{"feature.updated"}, Enabled: true})
	evt := h.createEvent(t, featureUpdated())

	h.handleAndRun(t, evt)
	h.handleAndRun(t, evt)

	if c.count() != 1 {
		t.Fatalf("re-dispatching an event must not redeliver, got %d calls", c.count())
	}
}

func TestDeliverSkipsDisabledOrMissing(t *testing.T) {
	h := newHarness(t)
	c := &capture{}
	srv := c.server(t, http.StatusOK, "")

	sub := h.createWebhook(t, webhook.Input{Name: "hook", URL: srv.URL, Events: []string{"feature.updated"}, Enabled: true})
	evt := h.createEvent(t, featureUpdated())

	if err := h.worker.Handle(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	disabled := false
	if _, err := h.subs.Update(context.Background(), sub.ID, "org1", webhook.Patch{Enabled: &disabled}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.queue.RunPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.count() != 0 {
		t.Fatal("disabled webhook must not receive a delivery")
	}

	if _, err := h.subs.Delete(context.Background(), sub.ID, "org1"); err != nil {
		t.Fatal(err)
	}
	if err := h.worker.Deliver(context.Background(), evt.ID, sub.ID); err != nil {
		t.Fatalf("missing webhook should be a no-op, got %v", err)
	}
}

func TestTestEventTargetsOneWebhook(t *testing.T) {
	h := newHarness(t)
	c := &capture{}
	srv := c.server(t, http.StatusOK, "")

	target := h.createWebhook(t, webhook.Input{Name: "target", URL: srv.URL, Events: []string{"feature.created"}, Enabled: true})
	h.createWebhook(t, webhook.Input{Name: "other", URL: srv.URL, Events: []string{"feature.created"}, Enabled: true})

	evt := h.createEvent(t, event.CreateParams{
		OrganizationID: "org1",
		Resource:       taxonomy.ResourceWebhook,
		Event:          "test",
		Object:         map[string]any{"webhookId": target.ID.String()},
	})
	h.handleAndRun(t, evt)

	if c.count() != 1 {
		t.Fatalf("expected one test delivery, got %d", c.count())
	}
	entries, _ := h.logs.ListForWebhook(context.Background(), target.ID, "org1", 0)
	if len(entries) != 1 {
		t.Fatalf("expected the target to log the test delivery, got %d rows", len(entries))
	}
}

func TestDeliverChatPayloadTypes(t *testing.T) {
	h := newHarness(t)
	c := &capture{}
	srv := c.server(t, http.StatusOK, "ok")

	sub := h.createWebhook(t, webhook.Input{
		Name:        "slack",
		URL:         srv.URL,
		Events:      []string{"feature.updated"},
		Enabled:     true,
		PayloadType: webhook.PayloadSlack,
		Method:      webhook.MethodPut,
	})
	evt := h.createEvent(t, featureUpdated())

	if err := h.worker.Deliver(context.Background(), evt.ID, sub.ID); err != nil {
		t.Fatal(err)
	}
	if c.count() != 1 {
		t.Fatal("expected one delivery")
	}
	if c.requests[0].Method != http.MethodPut {
		t.Fatalf("method: got %s", c.requests[0].Method)
	}
	var body map[string]any
	if err := json.Unmarshal(c.bodies[0], &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["blocks"]; !ok {
		t.Fatalf("expected a slack body, got %v", body)
	}
}
