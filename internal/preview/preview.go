package preview

import (
	"context"

	"github.com/casalink/inboxd/internal/model"
	"github.com/casalink/inboxd/internal/remote"
	"go.uber.org/zap"
)

// Fetcher reduces one connection's message history to a last-message preview.
type Fetcher struct {
	messages remote.Messages
	logger   *zap.Logger
}

// NewFetcher creates a preview fetcher backed by the given message source.
func NewFetcher(messages remote.Messages, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{messages: messages, logger: logger}
}

// Fetch requests the connection's history and derives its preview. A remote
// failure is absorbed: the caller gets "no preview" and the condition is
// logged, so one bad connection can never abort list assembly.
func (f *Fetcher) Fetch(ctx context.Context, currentUserID string, conn model.Connection) *model.MessagePreview {
	history, err := f.messages.MessageHistory(ctx, conn.ID)
	if err != nil {
		f.logger.Warn("preview fetch failed",
			zap.String("connection_id", conn.ID),
			zap.Error(err))
		return nil
	}
	return FromHistory(history, currentUserID, conn)
}

// FromHistory reduces a chronological message history to a preview of its
// last message. An empty history yields nil: "no messages yet" is a valid
// state, not an error.
func FromHistory(history []model.Message, currentUserID string, conn model.Connection) *model.MessagePreview {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	return &model.MessagePreview{
		Text:          last.Text,
		Timestamp:     last.Timestamp,
		Read:          last.Read,
		FromMe:        SentByUser(last, currentUserID, conn),
		HasAttachment: len(last.Attachments) > 0,
	}
}

// SentByUser reports whether msg was sent by the given user. The wire-level
// direction flag is relative to the connection's initiator, so the answer
// depends on which side of the connection the user is on. It must be
// computed per message: either party may have sent the most recent one.
func SentByUser(msg model.Message, userID string, conn model.Connection) bool {
	if msg.SenderID != "" {
		return msg.SenderID == userID
	}
	return msg.FromInitiator == (conn.InitiatorID == userID)
}
