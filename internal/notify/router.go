package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/casalink/inboxd/internal/bus"
	"github.com/casalink/inboxd/internal/model"
	"github.com/casalink/inboxd/internal/remote"
	"go.uber.org/zap"
)

// SnapshotSource exposes the currently assembled conversation list.
type SnapshotSource interface {
	Snapshot() model.Snapshot
}

// Refresher forces a synchronous resync of the conversation list. The
// router uses it as a last resort before declaring a reference stale.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SubjectResolver fetches a non-chat subject (job, property) by id.
// Returning remote.ErrNotFound marks the reference stale.
type SubjectResolver func(ctx context.Context, subjectID string) (any, error)

// Resolution is the bus payload for route.* events.
type Resolution struct {
	EventID   string
	Kind      model.NotificationKind
	SubjectID string
	Decision  model.RouteDecision
}

// seenLimit bounds the per-process dedupe window for notification ids.
const seenLimit = 256

// Router translates inbound notification events into navigation outcomes.
// Conversation subjects are resolved against the already-loaded snapshot
// first; a miss triggers exactly one refetch before the reference is
// declared stale. Routing is idempotent per event id: a redelivered event
// returns the recorded outcome without repeating the refetch or the bus
// publish.
type Router struct {
	snapshots SnapshotSource
	refresher Refresher
	bus       *bus.Bus
	logger    *zap.Logger
	resolvers map[model.NotificationKind]SubjectResolver

	mu    sync.Mutex
	seen  map[string]model.RouteOutcome
	order []string

	cancel context.CancelFunc
}

// NewRouter creates a router over the given snapshot source and refresher.
func NewRouter(snapshots SnapshotSource, refresher Refresher, b *bus.Bus, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		snapshots: snapshots,
		refresher: refresher,
		bus:       b,
		logger:    logger,
		resolvers: make(map[model.NotificationKind]SubjectResolver),
		seen:      make(map[string]model.RouteOutcome),
	}
}

// Register installs a resolver for a non-chat notification kind.
func (r *Router) Register(kind model.NotificationKind, resolve SubjectResolver) {
	r.resolvers[kind] = resolve
}

// Start subscribes to inbound push.* events on the bus and routes them in
// the background, publishing route.* outcomes. Without a bus the router
// still serves direct Route calls; Start is then a no-op.
func (r *Router) Start(ctx context.Context) {
	if r.bus == nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				ne, ok := evt.Payload.(model.NotificationEvent)
				if !ok {
					continue
				}
				if _, err := r.Route(ctx, ne); err != nil {
					r.logger.Warn("notification routing failed",
						zap.String("event_id", ne.ID),
						zap.String("kind", string(ne.Kind)),
						zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the background routing loop.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Route resolves one notification event. An error means resolution could
// not be concluded (the fallback refetch itself failed) and the event may
// be retried; it is not recorded as processed.
func (r *Router) Route(ctx context.Context, evt model.NotificationEvent) (model.RouteOutcome, error) {
	if evt.ID != "" {
		r.mu.Lock()
		if outcome, ok := r.seen[evt.ID]; ok {
			r.mu.Unlock()
			return outcome, nil
		}
		r.mu.Unlock()
	}

	outcome, err := r.resolve(ctx, evt)
	if err != nil {
		return model.RouteOutcome{}, err
	}

	r.record(evt.ID, outcome)
	if outcome.Decision == model.RouteStale {
		r.logger.Warn("notification subject no longer available",
			zap.String("kind", string(evt.Kind)),
			zap.String("subject_id", evt.SubjectID))
	}
	if r.bus != nil {
		r.bus.Emit("route."+string(outcome.Decision), Resolution{
			EventID:   evt.ID,
			Kind:      evt.Kind,
			SubjectID: evt.SubjectID,
			Decision:  outcome.Decision,
		})
	}
	return outcome, nil
}

func (r *Router) resolve(ctx context.Context, evt model.NotificationEvent) (model.RouteOutcome, error) {
	switch evt.Kind {
	case model.NotificationMessage, model.NotificationConnectionRequest:
		return r.resolveConversation(ctx, evt.SubjectID)
	default:
		resolver, ok := r.resolvers[evt.Kind]
		if !ok {
			return model.RouteOutcome{Decision: model.RouteUnsupported}, nil
		}
		subject, err := resolver(ctx, evt.SubjectID)
		if errors.Is(err, remote.ErrNotFound) {
			return model.RouteOutcome{Decision: model.RouteStale}, nil
		}
		if err != nil {
			return model.RouteOutcome{}, err
		}
		return model.RouteOutcome{Decision: model.RouteSubject, Subject: subject}, nil
	}
}

func (r *Router) resolveConversation(ctx context.Context, connectionID string) (model.RouteOutcome, error) {
	if entry := r.lookup(connectionID); entry != nil {
		return model.RouteOutcome{Decision: model.RouteConversation, Entry: entry}, nil
	}

	// Not in the loaded list; refetch once before giving up. The subject
	// may have been created after the last sync, or revoked since.
	if err := r.refresher.Refresh(ctx); err != nil {
		return model.RouteOutcome{}, err
	}
	if entry := r.lookup(connectionID); entry != nil {
		return model.RouteOutcome{Decision: model.RouteConversation, Entry: entry}, nil
	}
	return model.RouteOutcome{Decision: model.RouteStale}, nil
}

func (r *Router) lookup(connectionID string) *model.ConversationEntry {
	snap := r.snapshots.Snapshot()
	for i := range snap.Entries {
		if snap.Entries[i].Connection.ID == connectionID {
			e := snap.Entries[i]
			return &e
		}
	}
	return nil
}

func (r *Router) record(eventID string, outcome model.RouteOutcome) {
	if eventID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) >= seenLimit {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.seen[eventID] = outcome
	r.order = append(r.order, eventID)
}
