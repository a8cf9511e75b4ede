package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/securechat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		return Migrate(context.Background(), db)
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, uid, name, email, password_hash, avatar_url, notifications_token, status, last_seen, created_at`

// CreateUser persists a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.Status == "" {
		user.Status = store.PresenceOffline
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.UID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.AvatarURL,
		user.NotificationsToken,
		string(user.Status),
		user.LastSeen.UTC(),
		user.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, `WHERE email = ?`, email)
}

// GetUserByUID retrieves a user by public uid.
func (s *SQLiteStore) GetUserByUID(ctx context.Context, uid string) (*store.User, error) {
	return s.getUser(ctx, `WHERE uid = ?`, uid)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ` + where
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	pinned, err := s.stringColumn(ctx, `SELECT chat_id FROM pinned_chats WHERE user_id = ? ORDER BY chat_id`, user.ID)
	if err != nil {
		return nil, fmt.Errorf("query pinned chats: %w", err)
	}
	user.PinnedChats = pinned
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	var status string
	err := row.Scan(
		&user.ID,
		&user.UID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.NotificationsToken,
		&status,
		&user.LastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Status = store.PresenceStatus(status)
	return &user, nil
}

// UpdateProfile applies non-nil fields and returns the updated user.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, update store.ProfileUpdate) (*store.User, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *update.AvatarURL)
	}
	if update.NotificationsToken != nil {
		sets = append(sets, "notifications_token = ?")
		args = append(args, *update.NotificationsToken)
	}
	if len(sets) > 0 {
		args = append(args, id)
		query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
	}
	return s.GetUserByID(ctx, id)
}

// SetPresence persists the online status and last-seen time.
func (s *SQLiteStore) SetPresence(ctx context.Context, id string, status store.PresenceStatus, lastSeen time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET status = ?, last_seen = ? WHERE id = ?`, string(status), lastSeen.UTC(), id)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user: %w", store.ErrNotFound)
	}
	return nil
}

// AddContact records contactID in userID's contact list.
func (s *SQLiteStore) AddContact(ctx context.Context, userID, contactID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO contacts (user_id, contact_id) VALUES (?, ?)`, userID, contactID)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

// RemoveContact drops contactID from userID's contact list.
func (s *SQLiteStore) RemoveContact(ctx context.Context, userID, contactID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE user_id = ? AND contact_id = ?`, userID, contactID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

// ListContacts returns the users in userID's contact list.
func (s *SQLiteStore) ListContacts(ctx context.Context, userID string) ([]*store.User, error) {
	query := `
		SELECT u.id, u.uid, u.name, u.email, u.password_hash, u.avatar_url, u.notifications_token,
		       u.status, u.last_seen, u.created_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = ?
		ORDER BY u.name
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ContactIDs returns only the identities in userID's contact list.
func (s *SQLiteStore) ContactIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.stringColumn(ctx, `SELECT contact_id FROM contacts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query contact ids: %w", err)
	}
	return ids, nil
}

// NotificationTokens returns non-empty push tokens of the given users.
func (s *SQLiteStore) NotificationTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `SELECT notifications_token FROM users WHERE notifications_token != '' AND id IN (` + placeholders(len(userIDs)) + `)`
	tokens, err := s.stringColumn(ctx, query, toArgs(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query notification tokens: %w", err)
	}
	return tokens, nil
}

// PinChat adds chatID to the user's pinned chats.
func (s *SQLiteStore) PinChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO pinned_chats (user_id, chat_id) VALUES (?, ?)`, userID, chatID); err != nil {
		return fmt.Errorf("pin chat: %w", err)
	}
	return nil
}

// UnpinChat removes chatID from the user's pinned chats.
func (s *SQLiteStore) UnpinChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pinned_chats WHERE user_id = ? AND chat_id = ?`, userID, chatID); err != nil {
		return fmt.Errorf("unpin chat: %w", err)
	}
	return nil
}

// ==== helpers ====

func (s *SQLiteStore) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
