package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/dispatch"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/signature"
	"github.com/growthbook/notify/store/memory"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

func ctx() context.Context { return context.Background() }

type received struct {
	header http.Header
	body   []byte
}

type receiver struct {
	mu   sync.Mutex
	reqs []received
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rc.mu.Lock()
	rc.reqs = append(rc.reqs, received{header: r.Header.Clone(), body: body})
	rc.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok") //nolint:errcheck // test server
}

func (rc *receiver) all() []received {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]received(nil), rc.reqs...)
}

func setup(t *testing.T, opts ...notify.Option) (*notify.Notifier, *receiver, string) {
	t.Helper()
	rc := &receiver{}
	srv := httptest.NewServer(rc)
	t.Cleanup(srv.Close)

	n, err := notify.New(append([]notify.Option{notify.WithStore(memory.New())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return n, rc, srv.URL
}

func createWebhook(t *testing.T, n *notify.Notifier, orgID, url string, events ...string) *webhook.Subscription {
	t.Helper()
	sub, err := n.Webhooks().Create(ctx(), orgID, webhook.Input{
		Name:    "e2e",
		URL:     url,
		Events:  events,
		Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func featureCreated(orgID string) event.CreateParams {
	return event.CreateParams{
		OrganizationID: orgID,
		Resource:       taxonomy.ResourceFeature,
		Event:          "created",
		ObjectID:       "checkout",
		Object:         map[string]any{"id": "checkout", "enabled": true},
		User:           event.DashboardUser("u_1", "ada@example.com", "Ada"),
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := notify.New(); !errors.Is(err, notify.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestEmitDeliversSignedWebhook(t *testing.T) {
	n, rc, url := setup(t)
	sub := createWebhook(t, n, "org1", url, "feature.created")

	evt := n.Emit(ctx(), featureCreated("org1"))
	if evt == nil {
		t.Fatal("expected the event to be recorded")
	}

	// One dispatch job, one delivery job.
	ran, err := n.RunPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if ran != 2 {
		t.Fatalf("expected 2 jobs, got %d", ran)
	}

	reqs := rc.all()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(reqs))
	}
	if !signature.Verify(reqs[0].body, sub.SigningKey, reqs[0].header.Get(signature.HeaderBody)) {
		t.Fatal("body signature does not verify")
	}
	if reqs[0].header.Get(signature.HeaderID) != evt.ID.String() {
		t.Fatalf("expected message id %s, got %s", evt.ID, reqs[0].header.Get(signature.HeaderID))
	}

	got, err := n.Webhooks().GetByID(ctx(), sub.ID, "org1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastState != webhook.StateSuccess || got.LastResponseBody != "ok" {
		t.Fatalf("expected success status, got %s %q", got.LastState, got.LastResponseBody)
	}

	logs, err := n.DeliveryLogs().ListForWebhook(ctx(), sub.ID, "org1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].EventID.String() != evt.ID.String() {
		t.Fatalf("expected one log row for the event, got %d", len(logs))
	}
}

func TestFeatureUpdateDeliversDiff(t *testing.T) {
	n, rc, url := setup(t)
	sub := createWebhook(t, n, "org1", url, "feature.updated")

	evt := n.Emit(ctx(), event.CreateParams{
		OrganizationID: "org1",
		Resource:       taxonomy.ResourceFeature,
		Event:          "updated",
		Object:         map[string]any{"name": "A", "enabled": true},
		Previous:       map[string]any{"name": "A", "enabled": false},
	})
	if evt == nil {
		t.Fatal("expected the event to be recorded")
	}

	stored, err := n.Events().Get(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"enabled": false}
	if prev := stored.Data.Data.PreviousAttributes; !reflect.DeepEqual(prev, want) {
		t.Fatalf("expected stored previous_attributes %v, got %v", want, prev)
	}

	if _, err := n.RunPending(ctx()); err != nil {
		t.Fatal(err)
	}

	reqs := rc.all()
	if len(reqs) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(reqs))
	}
	var body struct {
		Event string `json:"event"`
		Data  struct {
			Object             map[string]any `json:"object"`
			PreviousAttributes map[string]any `json:"previous_attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(reqs[0].body, &body); err != nil {
		t.Fatal(err)
	}
	if body.Event != "feature.updated" {
		t.Fatalf("expected feature.updated, got %q", body.Event)
	}
	if !reflect.DeepEqual(body.Data.PreviousAttributes, want) {
		t.Fatalf("expected delivered previous_attributes %v, got %v", want, body.Data.PreviousAttributes)
	}
	if body.Data.Object["enabled"] != true || body.Data.Object["name"] != "A" {
		t.Fatalf("unexpected delivered object %v", body.Data.Object)
	}

	logs, err := n.DeliveryLogs().ListForWebhook(ctx(), sub.ID, "org1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly 1 log row, got %d", len(logs))
	}

	got, err := n.Webhooks().GetByID(ctx(), sub.ID, "org1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastState != webhook.StateSuccess {
		t.Fatalf("expected lastState success, got %s", got.LastState)
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	n, rc, url := setup(t)
	createWebhook(t, n, "org1", url, "feature.created")

	evt := n.Emit(ctx(), featureCreated("org1"))
	if _, err := n.RunPending(ctx()); err != nil {
		t.Fatal(err)
	}

	// A retried notification schedules nothing new.
	if err := n.Dispatcher().EventCreated(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	ran, err := n.RunPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if ran != 0 {
		t.Fatalf("expected no jobs on retry, got %d", ran)
	}
	if len(rc.all()) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(rc.all()))
	}
}

func TestFailingHandlerDoesNotBlockDelivery(t *testing.T) {
	var calls int
	failing := dispatch.HandlerFunc{
		HandlerName: "broken",
		Fn: func(context.Context, *event.Event) error {
			calls++
			return errors.New("boom")
		},
	}
	n, rc, url := setup(t, notify.WithHandler(failing))
	createWebhook(t, n, "org1", url, "feature.created")

	if n.Emit(ctx(), featureCreated("org1")) == nil {
		t.Fatal("expected the event to be recorded")
	}
	if _, err := n.RunPending(ctx()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected the failing handler to run once, got %d", calls)
	}
	if len(rc.all()) != 1 {
		t.Fatalf("expected the webhook to be delivered, got %d", len(rc.all()))
	}
}

func TestInvalidEventIsNotRecorded(t *testing.T) {
	n, rc, url := setup(t)
	createWebhook(t, n, "org1", url, "feature.created")

	p := featureCreated("org1")
	p.Object = map[string]any{"id": "checkout", "enabled": "yes"}
	if n.Emit(ctx(), p) != nil {
		t.Fatal("expected schema validation to reject the event")
	}
	ran, err := n.RunPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if ran != 0 || len(rc.all()) != 0 {
		t.Fatalf("expected nothing to run, got %d jobs and %d deliveries", ran, len(rc.all()))
	}
}

func TestTestEndpointRoundTrip(t *testing.T) {
	n, rc, url := setup(t)
	sub := createWebhook(t, n, "org1", url, "feature.created")

	api := httptest.NewServer(n.Handler())
	t.Cleanup(api.Close)

	req, err := http.NewRequestWithContext(ctx(), http.MethodPost, api.URL+"/event-webhooks/test",
		strings.NewReader(`{"webhookId":"`+sub.ID.String()+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Organization-ID", "org1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if _, err := n.RunPending(ctx()); err != nil {
		t.Fatal(err)
	}
	reqs := rc.all()
	if len(reqs) != 1 {
		t.Fatalf("expected the test delivery, got %d", len(reqs))
	}
	if !strings.Contains(string(reqs[0].body), sub.ID.String()) {
		t.Fatalf("expected the webhook id in the body, got %s", reqs[0].body)
	}
}

func TestStartProcessesInBackground(t *testing.T) {
	n, rc, url := setup(t, notify.WithPollInterval(10*time.Millisecond), notify.WithShutdownTimeout(time.Second))
	createWebhook(t, n, "org1", url, "feature.created")

	n.Start(ctx())
	defer n.Stop(ctx())

	if n.Emit(ctx(), featureCreated("org1")) == nil {
		t.Fatal("expected the event to be recorded")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(rc.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("delivery did not happen in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
