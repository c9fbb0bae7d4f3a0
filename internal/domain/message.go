package domain

import "context"

// Message body types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// MessageBody is the stored payload of a message. ImageURL is empty for plain
// text messages.
type MessageBody struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Message is a fully populated message record as returned by the store.
type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	ChannelID string      `json:"channelId"`
	Index     int         `json:"index"`
	Type      string      `json:"type"`
	Data      MessageBody `json:"data"`
	Created   int64       `json:"created"`
}

type MessageStore interface {
	AddMessage(ctx context.Context, userID, channelID, msgType string, body MessageBody) (Message, error)
	// RemoveMessage deletes the message only when it belongs to userID in
	// channelID, returning the number of rows affected (0 or 1).
	RemoveMessage(ctx context.Context, messageID, channelID, userID string) (int64, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
}

// Store is the persistence collaborator consumed by the engine.
type Store interface {
	ChannelStore
	MessageStore
	UserStore
}
