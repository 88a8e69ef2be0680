package llm

import "sync"

// History keeps the rolling conversation window sent with every request.
// The system prompt is pinned; past exchanges beyond the limit are dropped
// oldest first so long sessions stay inside the model's context.
type History struct {
	mu       sync.Mutex
	system   string
	limit    int
	messages []Message
}

// NewHistory creates a window of at most maxExchanges user/assistant pairs.
func NewHistory(systemPrompt string, maxExchanges int) *History {
	if maxExchanges <= 0 {
		maxExchanges = 10
	}
	return &History{system: systemPrompt, limit: maxExchanges}
}

// Snapshot returns the messages for one request: system prompt, the
// retained exchanges, then the new user text.
func (h *History) Snapshot(userText string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, 0, len(h.messages)+2)
	if h.system != "" {
		out = append(out, Message{Role: RoleSystem, Content: h.system})
	}
	out = append(out, h.messages...)
	out = append(out, Message{Role: RoleUser, Content: userText})
	return out
}

// Commit records a completed exchange and trims the window.
func (h *History) Commit(userText, assistantText string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages,
		Message{Role: RoleUser, Content: userText},
		Message{Role: RoleAssistant, Content: assistantText},
	)
	if over := len(h.messages)/2 - h.limit; over > 0 {
		h.messages = h.messages[over*2:]
	}
}

// Reset drops all retained exchanges.
func (h *History) Reset() {
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}

// Len reports the number of retained exchanges.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages) / 2
}
