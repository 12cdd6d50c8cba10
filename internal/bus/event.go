package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced. The daemon uses:
//
//	inbox.*   - assembled list lifecycle (updated, refresh_failed)
//	push.*    - inbound notification events awaiting routing
//	route.*   - notification routing outcomes
//	profile.* - daemon status changes
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
