package model

// NotificationKind classifies an inbound push notification.
type NotificationKind string

const (
	NotificationMessage           NotificationKind = "message"
	NotificationConnectionRequest NotificationKind = "connection_request"
	NotificationJobRequest        NotificationKind = "job_request"
	NotificationPropertyInvite    NotificationKind = "property_invite"
)

// NotificationEvent is one inbound notification. Ephemeral: consumed once,
// never persisted.
type NotificationEvent struct {
	ID        string            `json:"id"`
	Kind      NotificationKind  `json:"kind"`
	SubjectID string            `json:"subject_id"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// RouteDecision is the routing verdict for a notification.
type RouteDecision string

const (
	// RouteConversation: subject resolved to a conversation entry; navigate to it.
	RouteConversation RouteDecision = "conversation"
	// RouteSubject: subject resolved by a registered resolver (job, property).
	RouteSubject RouteDecision = "subject"
	// RouteStale: subject no longer exists, even after a refetch.
	RouteStale RouteDecision = "stale"
	// RouteUnsupported: no resolver registered for the event kind.
	RouteUnsupported RouteDecision = "unsupported"
)

// RouteOutcome is the result of routing one notification. The resolved
// target travels with the outcome; there is no shared "selected
// conversation" state for consumers to read.
type RouteOutcome struct {
	Decision RouteDecision
	Entry    *ConversationEntry // set when Decision == RouteConversation
	Subject  any                // set when Decision == RouteSubject
}
