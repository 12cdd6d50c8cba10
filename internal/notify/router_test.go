package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casalink/inboxd/internal/bus"
	"github.com/casalink/inboxd/internal/model"
	"github.com/casalink/inboxd/internal/remote"
)

// fakeInbox serves a snapshot and swaps it on Refresh, mimicking the
// scheduler's refetch fallback.
type fakeInbox struct {
	current    model.Snapshot
	afterFetch *model.Snapshot
	refreshErr error
	refreshes  atomic.Int64
}

func (f *fakeInbox) Snapshot() model.Snapshot { return f.current }

func (f *fakeInbox) Refresh(context.Context) error {
	f.refreshes.Add(1)
	if f.refreshErr != nil {
		return f.refreshErr
	}
	if f.afterFetch != nil {
		f.current = *f.afterFetch
	}
	return nil
}

func snapshotOf(connIDs ...string) model.Snapshot {
	entries := make([]model.ConversationEntry, 0, len(connIDs))
	for _, id := range connIDs {
		entries = append(entries, model.ConversationEntry{Connection: model.Connection{ID: id}})
	}
	return model.Snapshot{Entries: entries}
}

func msgEvent(id, subject string) model.NotificationEvent {
	return model.NotificationEvent{ID: id, Kind: model.NotificationMessage, SubjectID: subject}
}

func TestRouteKnownConversation(t *testing.T) {
	inbox := &fakeInbox{current: snapshotOf("c1", "c2")}
	r := NewRouter(inbox, inbox, nil, nil)

	outcome, err := r.Route(context.Background(), msgEvent("e1", "c2"))
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if outcome.Decision != model.RouteConversation {
		t.Fatalf("Decision = %s, want conversation", outcome.Decision)
	}
	if outcome.Entry == nil || outcome.Entry.Connection.ID != "c2" {
		t.Errorf("Entry = %+v, want connection c2", outcome.Entry)
	}
	if inbox.refreshes.Load() != 0 {
		t.Errorf("refreshes = %d, want 0 (already loaded)", inbox.refreshes.Load())
	}
}

func TestRouteUnknownTriggersRefetch(t *testing.T) {
	after := snapshotOf("c1", "c9")
	inbox := &fakeInbox{current: snapshotOf("c1"), afterFetch: &after}
	r := NewRouter(inbox, inbox, nil, nil)

	outcome, err := r.Route(context.Background(), msgEvent("e1", "c9"))
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if outcome.Decision != model.RouteConversation {
		t.Errorf("Decision = %s, want conversation after refetch", outcome.Decision)
	}
	if inbox.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", inbox.refreshes.Load())
	}
}

func TestRouteStaleAfterRefetch(t *testing.T) {
	inbox := &fakeInbox{current: snapshotOf("c1")}
	r := NewRouter(inbox, inbox, nil, nil)

	outcome, err := r.Route(context.Background(), msgEvent("e1", "gone"))
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if outcome.Decision != model.RouteStale {
		t.Errorf("Decision = %s, want stale", outcome.Decision)
	}
	if inbox.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want exactly 1", inbox.refreshes.Load())
	}
}

func TestRouteRefetchFailureIsRetryable(t *testing.T) {
	inbox := &fakeInbox{current: snapshotOf("c1"), refreshErr: errors.New("directory down")}
	r := NewRouter(inbox, inbox, nil, nil)
	evt := msgEvent("e1", "c9")

	if _, err := r.Route(context.Background(), evt); err == nil {
		t.Fatal("Route() error = nil, want refetch failure")
	}

	// The failed attempt was not recorded; once the backend recovers the
	// same event resolves normally.
	inbox.refreshErr = nil
	after := snapshotOf("c1", "c9")
	inbox.afterFetch = &after
	outcome, err := r.Route(context.Background(), evt)
	if err != nil {
		t.Fatalf("retry Route() error = %v", err)
	}
	if outcome.Decision != model.RouteConversation {
		t.Errorf("retry Decision = %s, want conversation", outcome.Decision)
	}
}

// TestRouteIdempotent: the same event routed twice yields the same outcome
// and performs its side effects once.
func TestRouteIdempotent(t *testing.T) {
	inbox := &fakeInbox{current: snapshotOf("c1")}
	b := bus.New()
	r := NewRouter(inbox, inbox, b, nil)

	ch, unsub := b.Subscribe("route.", 10)
	defer unsub()

	evt := msgEvent("e1", "gone")
	first, err := r.Route(context.Background(), evt)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Route(context.Background(), evt)
	if err != nil {
		t.Fatal(err)
	}
	if first.Decision != second.Decision {
		t.Errorf("outcomes differ: %s vs %s", first.Decision, second.Decision)
	}
	if inbox.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1 (no duplicate refetch)", inbox.refreshes.Load())
	}

	// Exactly one route.* event published.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no route event published")
	}
	select {
	case evt := <-ch:
		t.Errorf("duplicate route event published: %v", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouteRegisteredResolver(t *testing.T) {
	inbox := &fakeInbox{}
	r := NewRouter(inbox, inbox, nil, nil)
	r.Register(model.NotificationJobRequest, func(_ context.Context, subjectID string) (any, error) {
		if subjectID == "job-1" {
			return &remote.Job{ID: "job-1", Title: "Fix the roof"}, nil
		}
		return nil, remote.ErrNotFound
	})

	outcome, err := r.Route(context.Background(), model.NotificationEvent{
		ID: "e1", Kind: model.NotificationJobRequest, SubjectID: "job-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Decision != model.RouteSubject {
		t.Fatalf("Decision = %s, want subject", outcome.Decision)
	}
	job, ok := outcome.Subject.(*remote.Job)
	if !ok || job.ID != "job-1" {
		t.Errorf("Subject = %+v, want job-1", outcome.Subject)
	}

	// A revoked job is stale, not an error.
	outcome, err = r.Route(context.Background(), model.NotificationEvent{
		ID: "e2", Kind: model.NotificationJobRequest, SubjectID: "job-gone",
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Decision != model.RouteStale {
		t.Errorf("Decision = %s, want stale", outcome.Decision)
	}
}

func TestRouteUnsupportedKind(t *testing.T) {
	inbox := &fakeInbox{}
	r := NewRouter(inbox, inbox, nil, nil)

	outcome, err := r.Route(context.Background(), model.NotificationEvent{
		ID: "e1", Kind: "marketing_blast", SubjectID: "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Decision != model.RouteUnsupported {
		t.Errorf("Decision = %s, want unsupported", outcome.Decision)
	}
}

// TestRouterBusSubscription verifies push.* events flow through the router
// via the bus, mirroring how the daemon wires inbound notifications.
func TestRouterBusSubscription(t *testing.T) {
	inbox := &fakeInbox{current: snapshotOf("c1")}
	b := bus.New()
	r := NewRouter(inbox, inbox, b, nil)

	out, unsub := b.Subscribe("route.", 10)
	defer unsub()

	r.Start(context.Background())
	defer r.Stop()

	b.Emit("push.message", msgEvent("e1", "c1"))

	select {
	case evt := <-out:
		res, ok := evt.Payload.(Resolution)
		if !ok {
			t.Fatalf("payload type = %T, want Resolution", evt.Payload)
		}
		if res.Decision != model.RouteConversation || res.EventID != "e1" {
			t.Errorf("resolution = %+v, want conversation for e1", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for route event")
	}
}

// A router without a bus serves direct Route calls; Start and Stop are
// no-ops rather than panics.
func TestRouterWithoutBus(t *testing.T) {
	inbox := &fakeInbox{current: snapshotOf("c1")}
	r := NewRouter(inbox, inbox, nil, nil)

	r.Start(context.Background())
	defer r.Stop()

	outcome, err := r.Route(context.Background(), model.NotificationEvent{
		ID: "e1", Kind: model.NotificationMessage, SubjectID: "c1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Decision != model.RouteConversation {
		t.Errorf("decision = %s, want conversation", outcome.Decision)
	}
}

func TestSeenWindowBounded(t *testing.T) {
	inbox := &fakeInbox{current: snapshotOf("c1")}
	r := NewRouter(inbox, inbox, nil, nil)

	for i := 0; i < seenLimit+10; i++ {
		evt := model.NotificationEvent{
			ID:   fmt.Sprintf("evt-%d", i),
			Kind: model.NotificationMessage, SubjectID: "c1",
		}
		if _, err := r.Route(context.Background(), evt); err != nil {
			t.Fatal(err)
		}
	}
	if len(r.seen) > seenLimit {
		t.Errorf("seen window = %d entries, want <= %d", len(r.seen), seenLimit)
	}
}
