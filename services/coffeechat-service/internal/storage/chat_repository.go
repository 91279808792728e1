package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/coffeechat-app/coffeechat/libs/db"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/chat"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

type ChatRepository struct {
	pool *db.Pool
}

func NewChatRepository(pool *db.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

const messageColumns = `id, room_key, sender_id, receiver_id, body, sent_at, read`

func scanMessage(row pgx.Row) (model.ChatMessage, error) {
	var m model.ChatMessage
	err := row.Scan(&m.ID, &m.RoomKey, &m.SenderID, &m.ReceiverID, &m.Body, &m.SentAt, &m.Read)
	return m, err
}

// Insert persists a message unread and returns the stored row. Persistence
// happens before any push so history is always the ground truth.
func (r *ChatRepository) Insert(ctx context.Context, senderID, receiverID, body string) (model.ChatMessage, error) {
	return scanMessage(r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (room_key, sender_id, receiver_id, body, read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING `+messageColumns+`
	`, chat.RoomKey(senderID, receiverID), senderID, receiverID, body))
}

// History returns the full two-way conversation in send order and marks the
// caller's received messages read in the same transaction. Fetching twice
// returns the same rows; the read flag only affects unread counters, so a
// repeated fetch duplicates nothing.
func (r *ChatRepository) History(ctx context.Context, userID, peerID string) ([]model.ChatMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE room_key = $1
		ORDER BY sent_at ASC, id ASC
	`, chat.RoomKey(userID, peerID))
	if err != nil {
		return nil, err
	}

	var messages []model.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, m)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	_, err = tx.Exec(ctx, `
		UPDATE chat_messages
		SET read = TRUE
		WHERE receiver_id = $1 AND sender_id = $2 AND read = FALSE
	`, userID, peerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// UnreadLatest returns the newest unread messages for the badge dropdown.
func (r *ChatRepository) UnreadLatest(ctx context.Context, userID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE receiver_id = $1 AND read = FALSE
		ORDER BY sent_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkAllRead clears the user's unread set and returns how many rows flipped.
func (r *ChatRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_messages
		SET read = TRUE
		WHERE receiver_id = $1 AND read = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ChatRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM chat_messages
		WHERE receiver_id = $1 AND read = FALSE
	`, userID).Scan(&count)
	return count, err
}
