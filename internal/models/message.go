package models

// QuickReply is a suggested reply shown as a closed choice.
type QuickReply struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// OutboundMessage is a single chat message produced by the intake flow.
type OutboundMessage struct {
	Text         string       `json:"text"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// TextMessage creates a plain text message.
func TextMessage(text string) OutboundMessage {
	return OutboundMessage{Text: text}
}

// ChoiceMessage creates a text message with quick-reply choices.
func ChoiceMessage(text string, choices ...QuickReply) OutboundMessage {
	return OutboundMessage{Text: text, QuickReplies: choices}
}

// HasChoices reports whether the message offers quick replies.
func (m OutboundMessage) HasChoices() bool {
	return len(m.QuickReplies) > 0
}
