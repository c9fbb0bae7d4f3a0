package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbergstrom/chatrelay/internal/domain"
	apperrors "github.com/mbergstrom/chatrelay/internal/errors"
)

// Store implements domain.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ domain.Store = (*Store)(nil)

const uniqueViolation = "23505"

// asConflict maps unique-constraint violations onto structured conflict
// errors so they surface to the original caller; everything else passes
// through unchanged.
func asConflict(err error, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.ConflictError(message)
	}
	return err
}

// --- Channels ---

func (s *Store) CreateChannel(ctx context.Context, name, creatorID string) (domain.Channel, error) {
	var ch domain.Channel
	err := s.pool.QueryRow(ctx,
		`INSERT INTO channels (name, creator_id) VALUES ($1, $2)
		 RETURNING id, name, creator_id, created`,
		name, creatorID,
	).Scan(&ch.ID, &ch.Name, &ch.CreatorID, &ch.Created)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("create channel: %w", asConflict(err, "channel name already exists"))
	}
	return ch, nil
}

func (s *Store) GetChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	var ch domain.Channel
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, creator_id, created FROM channels WHERE id = $1`,
		channelID,
	).Scan(&ch.ID, &ch.Name, &ch.CreatorID, &ch.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	if err != nil {
		return domain.Channel{}, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

func (s *Store) DeleteChannel(ctx context.Context, channelID string) error {
	// Subscriptions and messages cascade.
	if _, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, channelID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

func (s *Store) ChannelsForUser(ctx context.Context, userID string) ([]domain.Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.creator_id, c.created
		 FROM channels c
		 JOIN subscriptions s ON s.channel_id = c.id
		 WHERE s.user_id = $1
		 ORDER BY c.created`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list channels for user: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.CreatorID, &ch.Created); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *Store) Subscribe(ctx context.Context, userID, channelID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (user_id, channel_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		userID, channelID,
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (s *Store) Unsubscribe(ctx context.Context, userID, channelID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND channel_id = $2`,
		userID, channelID,
	)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// --- Messages ---

func (s *Store) AddMessage(ctx context.Context, userID, channelID, msgType string, body domain.MessageBody) (domain.Message, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal message body: %w", err)
	}

	msg := domain.Message{UserID: userID, ChannelID: channelID, Type: msgType, Data: body}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO messages (user_id, channel_id, type, data) VALUES ($1, $2, $3, $4)
		 RETURNING id, idx, created`,
		userID, channelID, msgType, data,
	).Scan(&msg.ID, &msg.Index, &msg.Created)
	if err != nil {
		return domain.Message{}, fmt.Errorf("add message: %w", err)
	}
	return msg, nil
}

func (s *Store) RemoveMessage(ctx context.Context, messageID, channelID, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM messages WHERE id = $1 AND channel_id = $2 AND user_id = $3`,
		messageID, channelID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("remove message: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, idx, user_id, channel_id, type, data, created
		 FROM messages WHERE channel_id = $1
		 ORDER BY idx DESC LIMIT $2`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var data []byte
		if err := rows.Scan(&msg.ID, &msg.Index, &msg.UserID, &msg.ChannelID, &msg.Type, &data, &msg.Created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(data, &msg.Data); err != nil {
			return nil, fmt.Errorf("unmarshal message body: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	var imageURL *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, forename, surname, email, profile_image_url FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Forename, &user.Surname, &user.Email, &imageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if imageURL != nil {
		user.ProfileImageURL = *imageURL
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, update domain.UserUpdate) error {
	if update.Empty() {
		return nil
	}

	set := make([]string, 0, 4)
	args := []any{userID}
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Forename != nil {
		add("forename", *update.Forename)
	}
	if update.Surname != nil {
		add("surname", *update.Surname)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	switch {
	case update.RemoveProfileImage:
		set = append(set, "profile_image_url = NULL")
	case update.ProfileImageURL != nil:
		add("profile_image_url", *update.ProfileImageURL)
	}

	query := "UPDATE users SET " + strings.Join(set, ", ") + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", asConflict(err, "email already in use"))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
