package models

// Message is an appended chat message. Timestamp is unix seconds.
type Message struct {
	ID        int64  `json:"id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
