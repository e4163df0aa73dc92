package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

// RenderText flattens an outbound message for platforms without quick-reply buttons.
// Choices are appended as a numbered list of their labels.
func RenderText(msg models.OutboundMessage) string {
	if !msg.HasChoices() {
		return msg.Text
	}
	var b strings.Builder
	b.WriteString(msg.Text)
	b.WriteString("\n")
	for i, qr := range msg.QuickReplies {
		fmt.Fprintf(&b, "\n%d. %s", i+1, qr.Label)
	}
	return b.String()
}

// choiceMemory remembers the choices most recently offered to each user so a numeric
// reply can be mapped back to its payload.
type choiceMemory struct {
	mu   sync.Mutex
	last map[string][]models.QuickReply
}

func newChoiceMemory() *choiceMemory {
	return &choiceMemory{last: make(map[string][]models.QuickReply)}
}

// Remember records the choices of the last message in msgs. A reply set without
// choices clears what was remembered.
func (m *choiceMemory) Remember(userID string, msgs []models.OutboundMessage) {
	if len(msgs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last := msgs[len(msgs)-1]
	if last.HasChoices() {
		m.last[userID] = last.QuickReplies
	} else {
		delete(m.last, userID)
	}
}

// ResolveChoice maps a reply against the choices last offered to userID. A reply equal
// to a label selects that choice, so tapped buttons resolve. When numbered is set the
// choices were shown as a numbered list and "1".."n" also selects by position. Any
// other text is returned unchanged.
func (m *choiceMemory) ResolveChoice(userID, text string, numbered bool) string {
	trimmed := strings.TrimSpace(text)
	m.mu.Lock()
	defer m.mu.Unlock()
	choices := m.last[userID]
	if numbered {
		if n, err := strconv.Atoi(trimmed); err == nil {
			if n < 1 || n > len(choices) {
				return text
			}
			return choices[n-1].Payload
		}
	}
	for _, qr := range choices {
		if qr.Label == trimmed {
			return qr.Payload
		}
	}
	return text
}
