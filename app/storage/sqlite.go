package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"nuclight.org/who-update-bot/app/storage/migrations"
	e "nuclight.org/who-update-bot/pkg/entities"
)

type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens the database file and applies pending migrations. SQLite
// allows one writer, so the pool is limited to a single connection.
func NewSQLite(ctx context.Context, filePath string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite3 database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite3 database: %w", err)
	}

	client := &SQLite{
		db: db,
	}

	err = client.migrate()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite3 database: %w", err)
	}

	return client, nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

func (c *SQLite) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// GetMessage returns the tracked message with the given id. The second return
// value is false when the message is unknown.
func (c *SQLite) GetMessage(ctx context.Context, messageID int64) (e.TrackedMessage, bool, error) {
	var msg e.TrackedMessage
	err := c.db.GetContext(
		ctx,
		&msg,
		`SELECT message_id, sender_username, sender_first_name, business_connection_id, chat_id, text, created_at
			FROM messages WHERE message_id = ?`,
		messageID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e.TrackedMessage{}, false, nil
		}

		return e.TrackedMessage{}, false, err
	}

	return msg, true, nil
}

// GetMessages returns the known messages among ids, keyed by message id.
func (c *SQLite) GetMessages(ctx context.Context, ids []int64) (map[int64]e.TrackedMessage, error) {
	result := make(map[int64]e.TrackedMessage, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(
		`SELECT message_id, sender_username, sender_first_name, business_connection_id, chat_id, text, created_at
			FROM messages WHERE message_id IN (?)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	var rows []e.TrackedMessage
	err = c.db.SelectContext(ctx, &rows, c.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("selecting messages: %w", err)
	}

	for _, row := range rows {
		result[row.MessageID] = row
	}

	return result, nil
}

// UpsertMessage creates the message or, if it exists, updates its text. When
// hasText is false an existing text is kept, and a new row gets msg.Text,
// which the caller sets to the placeholder.
func (c *SQLite) UpsertMessage(ctx context.Context, msg e.TrackedMessage, hasText bool) error {
	var newText sql.NullString
	if hasText {
		newText = sql.NullString{String: msg.Text, Valid: true}
	}

	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO messages (
			message_id, sender_username, sender_first_name, business_connection_id, chat_id, text, created_at
		) VALUES (
			?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP
		) ON CONFLICT(message_id) DO UPDATE SET text = COALESCE(?, messages.text)`,
		msg.MessageID, msg.SenderUsername, msg.SenderFirstName, msg.BusinessConnectionID, msg.ChatID, msg.Text,
		newText,
	)
	if err != nil {
		return fmt.Errorf("upserting message: %w", err)
	}

	return nil
}

// SaveBotUser stores the user unless the (user_id, chat_id) pair is already
// known. It reports whether a row was created.
func (c *SQLite) SaveBotUser(ctx context.Context, user e.BotUser) (bool, error) {
	result, err := c.db.ExecContext(
		ctx,
		`INSERT INTO bot_users (user_id, chat_id, username, first_name, created_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id, chat_id) DO NOTHING`,
		user.UserID, user.ChatID, user.Username, user.FirstName,
	)
	if err != nil {
		return false, fmt.Errorf("inserting bot user: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return n > 0, nil
}

// GetBotUser returns the user stored for the pair, if any.
func (c *SQLite) GetBotUser(ctx context.Context, userID, chatID int64) (e.BotUser, bool, error) {
	var user e.BotUser
	err := c.db.GetContext(
		ctx,
		&user,
		`SELECT user_id, chat_id, username, first_name, created_at
			FROM bot_users WHERE user_id = ? AND chat_id = ?`,
		userID, chatID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e.BotUser{}, false, nil
		}

		return e.BotUser{}, false, err
	}

	return user, true, nil
}

func (c *SQLite) migrate() error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("opening migrations source: %w", err)
	}

	driver, err := sqlite3.WithInstance(c.db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}
