package model

type Situation string

const (
	Enqueued Situation = "enqueued"
)

type Chat struct {
	ID         string  `json:"id"`
	Situation  string  `json:"situation"`
	IsActive   bool    `json:"is_active"`
	AgentID    *string `json:"agent_id"`
	Tabulation *string `json:"tabulation"`
	CustomerID string  `json:"customer_id"`
}

type Customer struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Number     string  `json:"number"`
	LastChatID *string `json:"last_chat_id"`
}

// ChatHeader is the cache-side projection of a chat, stored as the only
// element of the chat:<id> list.
type ChatHeader struct {
	ID         string    `json:"id"`
	Situation  Situation `json:"situation"`
	IsActive   bool      `json:"is_active"`
	AgentID    *string   `json:"agent_id"`
	Tabulation *string   `json:"tabulation"`
	InstanceID *string   `json:"instance_id"`
	Number     string    `json:"number"`
}
