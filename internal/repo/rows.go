package repo

type chatRow struct {
	ID         string  `gorm:"column:id;primaryKey"`
	Situation  string  `gorm:"column:situation"`
	IsActive   bool    `gorm:"column:is_active"`
	AgentID    *string `gorm:"column:agent_id"`
	Tabulation *string `gorm:"column:tabulation"`
	CustomerID string  `gorm:"column:customer_id"`
}

func (chatRow) TableName() string { return "chats" }

type customerRow struct {
	ID         string  `gorm:"column:id;primaryKey"`
	Name       string  `gorm:"column:name"`
	Number     string  `gorm:"column:number"`
	LastChatID *string `gorm:"column:last_chat_id"`
}

func (customerRow) TableName() string { return "customers" }

type messageRow struct {
	ID        string `gorm:"column:id;primaryKey"`
	From      string `gorm:"column:from"`
	To        string `gorm:"column:to"`
	Text      string `gorm:"column:text"`
	Delivered bool   `gorm:"column:delivered"`
	ChatID    string `gorm:"column:chat_id"`
}

func (messageRow) TableName() string { return "messages" }
