package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbergstrom/chatrelay/internal/domain"
	"github.com/mbergstrom/chatrelay/internal/metrics"
)

// Dispatcher decodes completed frames into typed actions and routes each to
// its handler. It is stateless between invocations; a persistence or blob
// failure aborts that action's broadcast and nothing else.
type Dispatcher struct {
	store       domain.Store
	blobs       domain.BlobStore
	subs        *SubscriptionIndex
	broadcaster *Broadcaster
}

func NewDispatcher(store domain.Store, blobs domain.BlobStore, subs *SubscriptionIndex, broadcaster *Broadcaster) *Dispatcher {
	return &Dispatcher{
		store:       store,
		blobs:       blobs,
		subs:        subs,
		broadcaster: broadcaster,
	}
}

// Dispatch handles one completed frame from conn to completion. A returned
// error means the frame was dropped; the connection stays open.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *Connection, frame []byte) error {
	action, err := DecodeAction(frame)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues("unknown", "malformed").Inc()
		return err
	}

	start := time.Now()
	err = d.dispatch(ctx, conn, action)
	metrics.ActionDuration.WithLabelValues(action.Type).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ActionsTotal.WithLabelValues(action.Type, "ok").Inc()
	default:
		metrics.ActionsTotal.WithLabelValues(action.Type, "error").Inc()
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, conn *Connection, action Action) error {
	switch action.Type {
	case ActionMessage:
		return d.handleMessage(ctx, conn, action)
	case ActionMessageDelete:
		return d.handleMessageDelete(ctx, conn, action)
	case ActionChannelDelete:
		return d.handleChannelDelete(ctx, conn, action)
	case ActionChannelSubscribe:
		return d.handleChannelSubscribe(ctx, conn, action)
	case ActionChannelUnsubscribe:
		return d.handleChannelUnsubscribe(ctx, conn, action)
	case ActionProfileUpdate:
		return d.handleProfileUpdate(ctx, conn, action)
	default:
		metrics.ActionsTotal.WithLabelValues(action.Type, "malformed").Inc()
		return fmt.Errorf("unsupported action %q", action.Type)
	}
}

// handleMessage stores a text or image message and broadcasts the persisted
// record to the channel's current subscribers, including the sender.
func (d *Dispatcher) handleMessage(ctx context.Context, conn *Connection, action Action) error {
	var payload messagePayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return fmt.Errorf("malformed message payload: %w", err)
	}

	slog.Info("Incoming message",
		"user_id", conn.UserID, "channel_id", payload.ChannelID, "message_type", payload.Type)

	var body domain.MessageBody
	switch payload.Type {
	case domain.MessageTypeText:
		body = domain.MessageBody{Text: payload.Content.Text}
	case domain.MessageTypeImage:
		url, err := d.storeImage(ctx, payload.Content.Image)
		if err != nil {
			return fmt.Errorf("store message image: %w", err)
		}
		body = domain.MessageBody{Text: payload.Content.Text, ImageURL: url}
	default:
		return fmt.Errorf("unsupported message type %q", payload.Type)
	}

	record, err := d.store.AddMessage(ctx, conn.UserID, payload.ChannelID, payload.Type, body)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	d.broadcaster.Broadcast(d.subs.Subscribers(record.ChannelID), Response{
		Type: ResponseMessage,
		Data: record,
	})
	return nil
}

// handleMessageDelete removes one of the requester's own messages. Zero
// affected rows means already deleted or not owned: no broadcast, no error.
func (d *Dispatcher) handleMessageDelete(ctx context.Context, conn *Connection, action Action) error {
	var payload messageDeletePayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return fmt.Errorf("malformed message-delete payload: %w", err)
	}

	affected, err := d.store.RemoveMessage(ctx, payload.ID, payload.ChannelID, conn.UserID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if affected != 1 {
		slog.Debug("Message delete affected no rows",
			"message_id", payload.ID, "user_id", conn.UserID)
		return nil
	}

	d.broadcaster.Broadcast(d.subs.Subscribers(payload.ChannelID), Response{
		Type: ResponseMessageDeleted,
		Data: payload,
	})
	return nil
}

// handleChannelDelete deletes a channel when the requester created it,
// detaches its subscriber set, and notifies the detached members. A
// non-creator request is a silent no-op so channel ownership is not leaked.
func (d *Dispatcher) handleChannelDelete(ctx context.Context, conn *Connection, action Action) error {
	var payload channelRef
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return fmt.Errorf("malformed channel-delete payload: %w", err)
	}

	channel, err := d.store.GetChannel(ctx, payload.ID)
	if err != nil {
		return fmt.Errorf("fetch channel: %w", err)
	}
	if channel.CreatorID != conn.UserID {
		slog.Info("Channel delete denied",
			"channel_id", payload.ID, "user_id", conn.UserID, "creator_id", channel.CreatorID)
		return nil
	}

	if err := d.store.DeleteChannel(ctx, payload.ID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	detached := d.subs.RemoveChannel(payload.ID)
	d.broadcaster.Broadcast(detached, Response{
		Type: ResponseChannelDeleted,
		Data: payload.ID,
	})
	return nil
}

// handleChannelSubscribe persists the subscription, adds the connection to
// the channel's set and announces the new member to the whole set.
func (d *Dispatcher) handleChannelSubscribe(ctx context.Context, conn *Connection, action Action) error {
	var payload channelRef
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return fmt.Errorf("malformed channel-subscribe payload: %w", err)
	}

	if err := d.store.Subscribe(ctx, conn.UserID, payload.ID); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	d.subs.EnsureSubscriber(payload.ID, conn)

	channel, err := d.store.GetChannel(ctx, payload.ID)
	if err != nil {
		return fmt.Errorf("fetch subscribed channel: %w", err)
	}

	d.broadcaster.Broadcast(d.subs.Subscribers(payload.ID), Response{
		Type: ResponseChannelSubscribed,
		Data: subscribedChannel{
			ID:        channel.ID,
			Name:      channel.Name,
			CreatorID: channel.CreatorID,
			Created:   channel.Created,
			UserID:    conn.UserID,
		},
	})
	return nil
}

// handleChannelUnsubscribe persists the removal and broadcasts the notice to
// the current subscriber set, including the leaving member, before removing
// it from the set. A channel with no live set is treated as empty.
func (d *Dispatcher) handleChannelUnsubscribe(ctx context.Context, conn *Connection, action Action) error {
	var payload channelRef
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return fmt.Errorf("malformed channel-unsubscribe payload: %w", err)
	}

	if err := d.store.Unsubscribe(ctx, conn.UserID, payload.ID); err != nil {
		return fmt.Errorf("persist unsubscription: %w", err)
	}

	d.broadcaster.Broadcast(d.subs.Subscribers(payload.ID), Response{
		Type: ResponseChannelUnsubscribed,
		Data: channelMembership{ID: payload.ID, UserID: conn.UserID},
	})

	d.subs.RemoveSubscriber(payload.ID, conn)
	return nil
}

// handleProfileUpdate persists a partial user change set, then broadcasts the
// refreshed public view to every connection sharing a channel with the
// requester.
func (d *Dispatcher) handleProfileUpdate(ctx context.Context, conn *Connection, action Action) error {
	var fields map[string]*string
	if err := json.Unmarshal(action.Data, &fields); err != nil {
		return fmt.Errorf("malformed profile-update payload: %w", err)
	}

	update := domain.UserUpdate{
		Forename: fields["forename"],
		Surname:  fields["surname"],
		Email:    fields["email"],
	}

	if imageData, ok := fields["profileImageData"]; ok {
		if imageData == nil || *imageData == "" {
			// Present-but-empty signals image removal.
			update.RemoveProfileImage = true
		} else {
			url, err := d.storeImage(ctx, *imageData)
			if err != nil {
				return fmt.Errorf("store profile image: %w", err)
			}
			update.ProfileImageURL = &url
		}
	}

	if err := d.store.UpdateUser(ctx, conn.UserID, update); err != nil {
		return fmt.Errorf("persist profile update: %w", err)
	}

	user, err := d.store.GetUser(ctx, conn.UserID)
	if err != nil {
		return fmt.Errorf("fetch updated user: %w", err)
	}

	d.broadcaster.Broadcast(d.subs.PeersOf(conn), Response{
		Type: ResponseProfileChanged,
		Data: user,
	})
	return nil
}

// storeImage decodes a data URI and hands the bytes to the blob store, keyed
// by content hash so identical uploads land on the same stored object.
func (d *Dispatcher) storeImage(ctx context.Context, dataURI string) (string, error) {
	image, err := DecodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	return d.blobs.Put(ctx, ContentHash(image.Data), image.Format, image.Data)
}
