package domain

// ConversationThread is the rolling metadata record for one conversation.
type ConversationThread struct {
	UserID             string
	ConversationID     string
	Title              string
	MessageCount       int
	CreatedAt          string // ISO-8601
	UpdatedAt          string // ISO-8601, refreshed on every append
	LastMessagePreview string // first 100 chars of the latest user message
	Deleted            bool
	DeletedAt          string
}

// Message is one immutable user/assistant exchange within a thread.
// Timestamp doubles as the store ordering key.
type Message struct {
	UserID         string
	ConversationID string
	Timestamp      int64 // epoch seconds, ordering key
	CreatedAt      string
	UserMessage    string
	AIResponse     string
	ChartURL       string
	TTL            int64 // epoch seconds for store-side expiry
}
