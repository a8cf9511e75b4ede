package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/vovakirdan/securechat-server/internal/store"
)

// ==== MessageStore implementation ====

const messageColumns = `id, chat_id, sender_id, type, content, media_url, status, created_at, updated_at`

// CreateMessage persists a message along with its initial readBy set.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ChatID,
		msg.SenderID,
		string(msg.Type),
		msg.Content,
		msg.MediaURL,
		int(msg.Status),
		msg.CreatedAt.UTC(),
		msg.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, reader := range msg.ReadBy {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)
		`, msg.ID, reader); err != nil {
			return fmt.Errorf("insert reader: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if err := s.hydrate(ctx, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves up to limit messages of a chat, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string, limit int, before *time.Time) ([]*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, before.UTC())
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	msgs, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// FindMessages selects messages matching the filter, oldest first.
func (s *SQLiteStore) FindMessages(ctx context.Context, filter store.MessageFilter) ([]*store.Message, error) {
	conds := []string{"chat_id = ?"}
	args := []any{filter.ChatID}

	if len(filter.IDs) > 0 {
		conds = append(conds, "id IN ("+placeholders(len(filter.IDs))+")")
		args = append(args, toArgs(filter.IDs)...)
	}
	if filter.ExcludeSender != "" {
		conds = append(conds, "sender_id != ?")
		args = append(args, filter.ExcludeSender)
	}
	if filter.StatusBelow != nil {
		conds = append(conds, "status < ?")
		args = append(args, int(*filter.StatusBelow))
	}
	if filter.NotReadBy != "" {
		conds = append(conds, "NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ?)")
		args = append(args, filter.NotReadBy)
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY created_at ASC, rowid ASC`
	msgs, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	return msgs, nil
}

// AdvanceStatus sets status on the given messages whose current status is lower.
func (s *SQLiteStore) AdvanceStatus(ctx context.Context, ids []string, status store.MessageStatus) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `UPDATE messages SET status = ?, updated_at = ? WHERE status < ? AND id IN (` + placeholders(len(ids)) + `) RETURNING id`
	args := append([]any{int(status), time.Now().UTC(), int(status)}, toArgs(ids)...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("advance status: %w", err)
	}
	defer rows.Close()

	changed := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan advanced id: %w", err)
		}
		changed[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("advance status: %w", err)
	}
	// RETURNING order is unspecified; keep the caller's order.
	return lo.Filter(ids, func(id string, _ int) bool {
		_, ok := changed[id]
		return ok
	}), nil
}

// AddReader inserts userID into readBy of the given messages.
func (s *SQLiteStore) AddReader(ctx context.Context, ids []string, userID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var added int64
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`, id, userID)
		if err != nil {
			return 0, fmt.Errorf("insert reader: %w", err)
		}
		n, _ := res.RowsAffected()
		added += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit readers: %w", err)
	}
	return added, nil
}

// CountUnread counts messages of a chat not yet read by userID.
func (s *SQLiteStore) CountUnread(ctx context.Context, chatID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.chat_id = ?
		  AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)
	`, chatID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// SetReaction sets or replaces userID's reaction on a message.
func (s *SQLiteStore) SetReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji) VALUES (?, ?, ?)
		ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = excluded.emoji
	`, messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	return nil
}

// RemoveReaction drops userID's reaction on a message.
func (s *SQLiteStore) RemoveReaction(ctx context.Context, messageID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = ? AND user_id = ?`, messageID, userID); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var msgs []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.hydrate(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var msgType string
	var status int
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msgType,
		&msg.Content,
		&msg.MediaURL,
		&status,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Type = store.MessageType(msgType)
	msg.Status = store.MessageStatus(status)
	return &msg, nil
}

// hydrate loads readBy and reactions for msgs in two batched queries.
func (s *SQLiteStore) hydrate(ctx context.Context, msgs []*store.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[string]*store.Message, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	in := placeholders(len(ids))

	rows, err := s.db.QueryContext(ctx, `SELECT message_id, user_id FROM message_reads WHERE message_id IN (`+in+`) ORDER BY user_id`, toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("query readers: %w", err)
	}
	err = appendReaders(rows, byID)
	rows.Close()
	if err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT message_id, user_id, emoji FROM message_reactions WHERE message_id IN (`+in+`) ORDER BY user_id`, toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()
	return appendReactions(rows, byID)
}

// rowIter is the part of *sql.Rows the hydrate scanners use.
type rowIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func appendReaders(rows rowIter, byID map[string]*store.Message) error {
	for rows.Next() {
		var msgID, userID string
		if err := rows.Scan(&msgID, &userID); err != nil {
			return fmt.Errorf("scan reader: %w", err)
		}
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate readers: %w", err)
	}
	return nil
}

func appendReactions(rows rowIter, byID map[string]*store.Message) error {
	for rows.Next() {
		var msgID string
		var r store.Reaction
		if err := rows.Scan(&msgID, &r.UserID, &r.Emoji); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		if m, ok := byID[msgID]; ok {
			m.Reactions = append(m.Reactions, r)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reactions: %w", err)
	}
	return nil
}
