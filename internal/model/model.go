package model

// Role identifies which side of the marketplace a user is on.
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

// Profile is the other party's summary as shown in the conversation list.
type Profile struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	Role        Role
	IsOnline    bool
}

// Connection is an established relationship between the current user and
// another account. Immutable except for the peer's online flag.
type Connection struct {
	ID          string
	InitiatorID string
	Peer        Profile
	CreatedAt   int64 // unix millis
}

// Message is one message in a connection's history, as returned by the
// remote API. FromInitiator is the sender-direction flag relative to the
// connection's initiator.
type Message struct {
	ID            string
	ConnectionID  string
	SenderID      string
	FromInitiator bool
	Text          string
	Attachments   []string
	Read          bool
	Timestamp     int64 // unix millis
}

// MessagePreview is the derived summary of the most recent message in a
// conversation. Computed fresh on every fetch, never partially updated.
type MessagePreview struct {
	Text          string
	Timestamp     int64 // unix millis
	Read          bool
	FromMe        bool
	HasAttachment bool
}

// ConversationEntry joins a connection with its optional preview.
// A nil Preview means the conversation has no messages yet, or the
// preview fetch failed; both render as "no preview".
type ConversationEntry struct {
	Connection Connection
	Preview    *MessagePreview
}

// Unread reports whether this entry counts toward the unread total:
// the last message exists, was sent by the other party, and is unread.
func (e ConversationEntry) Unread() bool {
	return e.Preview != nil && !e.Preview.FromMe && !e.Preview.Read
}

// Snapshot is one fully assembled conversation list. Snapshots are replaced
// wholesale; entries are never mutated in place.
type Snapshot struct {
	Entries     []ConversationEntry
	UnreadTotal int
	Generation  uint64
	FetchedAt   int64 // unix millis
}

// RefreshState tracks refresh bookkeeping for the active profile.
type RefreshState struct {
	LastSuccessMillis int64
	InFlight          bool
}
