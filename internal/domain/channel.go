package domain

import "context"

// Channel is a named topic connections subscribe to.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatorID string `json:"creatorId"`
	Created   int64  `json:"created"`
}

type ChannelStore interface {
	CreateChannel(ctx context.Context, name, creatorID string) (Channel, error)
	GetChannel(ctx context.Context, channelID string) (Channel, error)
	// DeleteChannel removes the channel together with its subscriptions and
	// messages.
	DeleteChannel(ctx context.Context, channelID string) error

	// ChannelsForUser lists the channels the user holds a subscription row for.
	ChannelsForUser(ctx context.Context, userID string) ([]Channel, error)
	Subscribe(ctx context.Context, userID, channelID string) error
	Unsubscribe(ctx context.Context, userID, channelID string) error
}
