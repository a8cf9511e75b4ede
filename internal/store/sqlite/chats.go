package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/securechat-server/internal/store"
)

// ==== ChatStore implementation ====

// CreateChat persists a new chat with its members and admins.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *store.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, is_group, group_name, last_message_id, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?)
	`, chat.ID, chat.IsGroup, chat.GroupName, chat.CreatedAt.UTC(), chat.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	for _, member := range chat.Members {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_members (chat_id, user_id, is_admin) VALUES (?, ?, ?)
		`, chat.ID, member, chat.HasAdmin(member)); err != nil {
			return fmt.Errorf("insert chat member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat by ID, including members and admins.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	var chat store.Chat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, is_group, group_name, last_message_id, created_at, updated_at
		FROM chats
		WHERE id = ?
	`, id).Scan(&chat.ID, &chat.IsGroup, &chat.GroupName, &chat.LastMessageID, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}

	if err := s.loadMembers(ctx, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *SQLiteStore) loadMembers(ctx context.Context, chat *store.Chat) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, is_admin FROM chat_members WHERE chat_id = ? ORDER BY user_id
	`, chat.ID)
	if err != nil {
		return fmt.Errorf("query chat members: %w", err)
	}
	defer rows.Close()

	chat.Members = chat.Members[:0]
	chat.Admins = chat.Admins[:0]
	for rows.Next() {
		var userID string
		var isAdmin bool
		if err := rows.Scan(&userID, &isAdmin); err != nil {
			return fmt.Errorf("scan chat member: %w", err)
		}
		chat.Members = append(chat.Members, userID)
		if isAdmin {
			chat.Admins = append(chat.Admins, userID)
		}
	}
	return rows.Err()
}

// FindDirectChat returns the direct chat between two users.
func (s *SQLiteStore) FindDirectChat(ctx context.Context, userA, userB string) (*store.Chat, error) {
	query := `
		SELECT c.id
		FROM chats c
		JOIN chat_members a ON a.chat_id = c.id AND a.user_id = ?
		JOIN chat_members b ON b.chat_id = c.id AND b.user_id = ?
		WHERE c.is_group = 0
		  AND (SELECT COUNT(*) FROM chat_members m WHERE m.chat_id = c.id) = 2
		LIMIT 1
	`
	var id string
	if err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("direct chat: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query direct chat: %w", err)
	}
	return s.GetChat(ctx, id)
}

// ListChatsForUser lists chats the user belongs to, most recently updated first.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID string) ([]*store.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.is_group, c.group_name, c.last_message_id, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var chats []*store.Chat
	for rows.Next() {
		var chat store.Chat
		if err := rows.Scan(&chat.ID, &chat.IsGroup, &chat.GroupName, &chat.LastMessageID, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, &chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the single connection before loading members.
	rows.Close()

	for _, chat := range chats {
		if err := s.loadMembers(ctx, chat); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// RenameGroup sets the group name.
func (s *SQLiteStore) RenameGroup(ctx context.Context, chatID, name string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chats SET group_name = ?, updated_at = ? WHERE id = ? AND is_group = 1
	`, name, time.Now().UTC(), chatID)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("group: %w", store.ErrNotFound)
	}
	return nil
}

// AddMembers adds users to a chat. Existing members are ignored.
func (s *SQLiteStore) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_members (chat_id, user_id, is_admin) VALUES (?, ?, 0)
		`, chatID, userID); err != nil {
			return fmt.Errorf("insert chat member: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, time.Now().UTC(), chatID); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return tx.Commit()
}

// RemoveMember removes a user from members and admins.
func (s *SQLiteStore) RemoveMember(ctx context.Context, chatID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
		return fmt.Errorf("delete chat member: %w", err)
	}
	return nil
}

// SetLastMessage records the latest message and bumps the update time.
func (s *SQLiteStore) SetLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE chats SET last_message_id = ?, updated_at = ? WHERE id = ?
	`, messageID, at.UTC(), chatID); err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}
