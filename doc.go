// Package notify records typed events about product resources and fans
// them out to notification handlers: signed webhook deliveries, a legacy
// audit log and chat integrations.
//
// Notify is a library, not a service. Import it into your application to
// get a validated event store, per-organization webhook subscriptions with
// delivery history, and a job queue that dispatches each event at most once
// and delivers it at most once per subscription.
//
// Key features:
//   - An enumerated event taxonomy with JSON Schema validation per event
//   - Automatic diffs for update events
//   - Composable store pattern with multiple backends (Postgres, SQLite, MongoDB, Redis, Memory)
//   - HMAC-SHA256 signatures on every delivery
//   - Slack, Discord and Microsoft Teams payload formats
//   - Lossless translation to and from the legacy audit-log naming
//
// Quick start:
//
//	n, err := notify.New(
//	    notify.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n.Start(ctx)
//	defer n.Stop(ctx)
//
//	n.Events().Emit(ctx, event.CreateParams{
//	    OrganizationID: "org_123",
//	    Resource:       taxonomy.ResourceFeature,
//	    Event:          "created",
//	    ObjectID:       "checkout",
//	    Object:         feature,
//	})
package notify
