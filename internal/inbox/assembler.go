package inbox

import (
	"context"
	"fmt"
	"sort"

	"github.com/casalink/inboxd/internal/model"
	"github.com/casalink/inboxd/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DirectoryError wraps a failed connection directory fetch. It is the only
// failure that aborts a refresh; there is no partial list without
// connections, and callers keep their previous list.
type DirectoryError struct {
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("connection directory fetch: %v", e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// PreviewSource derives the last-message preview for one connection.
// Implementations absorb their own failures and return nil for "no preview".
type PreviewSource interface {
	Fetch(ctx context.Context, currentUserID string, conn model.Connection) *model.MessagePreview
}

// Assembler produces the ordered, unread-aware conversation list for one
// user by joining the connection directory with concurrently fetched
// previews.
type Assembler struct {
	directory remote.Directory
	previews  PreviewSource
	userID    string
	fanout    int
	logger    *zap.Logger
}

// NewAssembler creates an assembler. fanout caps concurrent preview fetches
// within one run; values <= 0 fall back to 20.
func NewAssembler(directory remote.Directory, previews PreviewSource, userID string, fanout int, logger *zap.Logger) *Assembler {
	if fanout <= 0 {
		fanout = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		directory: directory,
		previews:  previews,
		userID:    userID,
		fanout:    fanout,
		logger:    logger,
	}
}

// Assemble fetches the connection set, fans out preview fetches, waits for
// all of them, and returns the joined entries sorted by recency. Nothing is
// emitted until every fetch has completed; there is no partial output.
func (a *Assembler) Assemble(ctx context.Context) ([]model.ConversationEntry, error) {
	conns, err := a.directory.ListConnections(ctx, a.userID)
	if err != nil {
		return nil, &DirectoryError{Err: err}
	}

	entries := make([]model.ConversationEntry, len(conns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fanout)
	for i, c := range conns {
		g.Go(func() error {
			entries[i] = model.ConversationEntry{
				Connection: c,
				Preview:    a.previews.Fetch(gctx, a.userID, c),
			}
			return nil
		})
	}
	// Per-connection failures were already converted to nil previews.
	_ = g.Wait()

	SortByRecency(entries)
	a.logger.Debug("list assembled",
		zap.Int("connections", len(conns)),
		zap.Int("unread", UnreadTotal(entries)))
	return entries, nil
}

// SortByRecency stable-sorts entries descending by preview timestamp.
// Entries without a preview sort after all entries that have one; ties keep
// their input order so repeated runs on the same input are identical.
func SortByRecency(entries []model.ConversationEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Preview, entries[j].Preview
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.Timestamp > pj.Timestamp
		}
	})
}

// UnreadTotal counts entries whose last message was sent by the other party
// and is still unread. Entries without a preview never contribute.
func UnreadTotal(entries []model.ConversationEntry) int {
	total := 0
	for _, e := range entries {
		if e.Unread() {
			total++
		}
	}
	return total
}
