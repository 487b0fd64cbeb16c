package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/growthbook/notify/dispatch"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/store/memory"
	"github.com/growthbook/notify/taxonomy"
)

type harness struct {
	store   *memory.Store
	queue   *jobs.Queue
	disp    *dispatch.Dispatcher
	events  *event.Service
	metrics *observability.Metrics
}

func setup(t *testing.T) *harness {
	t.Helper()
	s := memory.New()
	q := jobs.NewQueue(s, jobs.Config{}, nil)
	m := observability.NewMetrics(prometheus.NewRegistry())
	d := dispatch.New(s, q, dispatch.Config{Registry: taxonomy.Default(), Metrics: m}, nil)
	if err := d.Attach(q); err != nil {
		t.Fatal(err)
	}
	svc := event.NewService(s, taxonomy.Default(), event.Config{APIVersion: "v", Notifier: d}, nil)
	return &harness{store: s, queue: q, disp: d, events: svc, metrics: m}
}

func (h *harness) create(t *testing.T) *event.Event {
	t.Helper()
	evt, err := h.events.Create(context.Background(), event.CreateParams{
		OrganizationID: "org1",
		Resource:       taxonomy.ResourceFeature,
		Event:          "created",
		Object:         map[string]any{"id": "f"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return evt
}

type recorder struct {
	name  string
	calls *[]string
	err   error
	panic bool
}

func (r recorder) Name() string { return r.name }

func (r recorder) Handle(_ context.Context, evt *event.Event) error {
	*r.calls = append(*r.calls, r.name+":"+evt.EventName)
	if r.panic {
		panic("handler blew up")
	}
	return r.err
}

func TestDispatchRunsHandlersInOrderDespiteFailures(t *testing.T) {
	h := setup(t)

	var calls []string
	h.disp.Register(recorder{name: "first", calls: &calls, err: errors.New("nope")})
	h.disp.Register(recorder{name: "second", calls: &calls, panic: true})
	h.disp.Register(recorder{name: "third", calls: &calls})

	h.create(t)
	if _, err := h.queue.RunPending(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"first:feature.created", "second:feature.created", "third:feature.created"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, calls)
		}
	}

	if got := testutil.ToFloat64(h.metrics.HandlerFailures.WithLabelValues("first")); got != 1 {
		t.Fatalf("expected 1 failure for first, got %f", got)
	}
	if got := testutil.ToFloat64(h.metrics.HandlerFailures.WithLabelValues("second")); got != 1 {
		t.Fatalf("expected 1 failure for second, got %f", got)
	}

	for _, j := range h.store.Jobs() {
		if j.State != jobs.StateDone {
			t.Fatalf("handler failures must not fail the dispatch job, got %q (%s)", j.State, j.Error)
		}
	}
}

func TestDispatchIsScheduledOncePerEvent(t *testing.T) {
	h := setup(t)

	var calls []string
	h.disp.Register(recorder{name: "only", calls: &calls})

	evt := h.create(t)
	// A retried notification for the same event is a no-op.
	if err := h.disp.EventCreated(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	_, _ = h.queue.RunPending(context.Background())

	if len(calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(calls))
	}
}

func TestDispatchMissingEventFails(t *testing.T) {
	h := setup(t)

	err := h.disp.Dispatch(context.Background(), id.NewEventID())
	if !errors.Is(err, dispatch.ErrEventMissing) {
		t.Fatalf("expected ErrEventMissing, got %v", err)
	}
}

func TestAttachTwiceFails(t *testing.T) {
	h := setup(t)
	if err := h.disp.Attach(h.queue); !errors.Is(err, jobs.ErrHandlerExists) {
		t.Fatalf("expected ErrHandlerExists, got %v", err)
	}
}

func TestHandlerFunc(t *testing.T) {
	h := setup(t)

	got := ""
	h.disp.Register(dispatch.HandlerFunc{
		HandlerName: "fn",
		Fn: func(_ context.Context, evt *event.Event) error {
			got = evt.ID.String()
			return nil
		},
	})

	evt := h.create(t)
	_, _ = h.queue.RunPending(context.Background())

	if got != evt.ID.String() {
		t.Fatalf("expected handler to see %s, got %q", evt.ID, got)
	}
	if names := h.disp.Handlers(); len(names) != 1 || names[0] != "fn" {
		t.Fatalf("unexpected handlers %v", names)
	}
}
