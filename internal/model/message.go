package model

type MessageType string

const (
	Text  MessageType = "text"
	Image MessageType = "image"
	Audio MessageType = "audio"
)

// Message is the relational row written by the upsertMessage command.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Delivered bool   `json:"delivered"`
	ChatID    string `json:"chat_id"`
}

// CanonicalMessage is the normalized form appended to chat:<id>:messages.
type CanonicalMessage struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Text      string      `json:"text"`
	Body      string      `json:"body"`
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}
