package engine

import (
	"encoding/json"
	"fmt"
)

// Inbound action types.
const (
	ActionMessage            = "message"
	ActionMessageDelete      = "message-delete"
	ActionChannelDelete      = "channel-delete"
	ActionChannelSubscribe   = "channel-subscribe"
	ActionChannelUnsubscribe = "channel-unsubscribe"
	ActionProfileUpdate      = "profile-update"
)

// Outbound response types.
const (
	ResponseMessage             = "message"
	ResponseMessageDeleted      = "message-deleted"
	ResponseChannelDeleted      = "channel-deleted"
	ResponseChannelSubscribed   = "channel-subscribed"
	ResponseChannelUnsubscribed = "channel-unsubscribed"
	ResponseProfileChanged      = "profile-changed"
)

// Action is a decoded inbound protocol message. Data stays raw until the
// dispatcher knows the type-specific shape.
type Action struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Response is an outbound document broadcast to a target set of connections.
type Response struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DecodeAction parses a completed frame into an Action.
func DecodeAction(frame []byte) (Action, error) {
	var action Action
	if err := json.Unmarshal(frame, &action); err != nil {
		return Action{}, fmt.Errorf("malformed action frame: %w", err)
	}
	if action.Type == "" {
		return Action{}, fmt.Errorf("malformed action frame: missing type")
	}
	return action, nil
}

// messagePayload is the data shape of a "message" action.
type messagePayload struct {
	ChannelID string `json:"channelId"`
	Type      string `json:"type"`
	Content   struct {
		Text  string `json:"text"`
		Image string `json:"image"`
	} `json:"content"`
}

// messageDeletePayload is the data shape of a "message-delete" action, echoed
// back verbatim in the "message-deleted" broadcast.
type messageDeletePayload struct {
	ID        string `json:"id"`
	ChannelID string `json:"channelId"`
}

// channelRef is the data shape of channel-delete/subscribe/unsubscribe.
type channelRef struct {
	ID string `json:"id"`
}

// channelMembership is the broadcast payload pairing a channel id with the
// user joining or leaving it.
type channelMembership struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// subscribedChannel is the "channel-subscribed" broadcast payload: the channel
// summary plus the subscriber's user id.
type subscribedChannel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatorID string `json:"creatorId"`
	Created   int64  `json:"created"`
	UserID    string `json:"userId"`
}
