package inbox

import (
	"strings"

	"github.com/casalink/inboxd/internal/model"
)

// Filter narrows entries to those matching query, case-insensitively, on the
// peer's display name or the preview text. A blank or whitespace query
// returns the input unchanged. The input is never mutated and the
// assembler's ordering is preserved.
func Filter(entries []model.ConversationEntry, query string) []model.ConversationEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entries
	}

	out := make([]model.ConversationEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Connection.Peer.DisplayName), q) {
			out = append(out, e)
			continue
		}
		if e.Preview != nil && strings.Contains(strings.ToLower(e.Preview.Text), q) {
			out = append(out, e)
		}
	}
	return out
}
