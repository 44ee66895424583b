package session

import (
	"strings"
	"sync"

	"github.com/callcraft-ai/callcraft/pkg/types"
)

// maxHistoryEntries bounds the conversation history; older entries are
// dropped from the front.
const maxHistoryEntries = 64

// HistoryStore is the bounded conversation log for one session. Only the
// orchestrator supervisor writes to it; prompt construction reads a snapshot.
// Safe for concurrent use.
type HistoryStore struct {
	mu      sync.Mutex
	entries []types.Message
	limit   int
}

// NewHistoryStore returns an empty store bounded to maxHistoryEntries.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{limit: maxHistoryEntries}
}

// AppendUser records a user utterance. When the previous entry is also from
// the user (the turn it started was cancelled before the assistant committed),
// the texts are merged into one entry so roles keep alternating. Exact
// duplicates of the previous user entry are dropped.
func (h *HistoryStore) AppendUser(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && h.entries[n-1].Role == "user" {
		if h.entries[n-1].Content == text {
			return
		}
		h.entries[n-1].Content += " " + text
		return
	}
	h.append(types.Message{Role: "user", Content: text})
}

// AppendAssistant commits a completed assistant reply. Empty replies are
// dropped.
func (h *HistoryStore) AppendAssistant(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.append(types.Message{Role: "assistant", Content: text})
}

// append adds the entry and truncates from the front past the limit.
// Caller holds h.mu.
func (h *HistoryStore) append(m types.Message) {
	h.entries = append(h.entries, m)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Snapshot returns a copy of the current history for prompt construction.
func (h *HistoryStore) Snapshot() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of stored entries.
func (h *HistoryStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
