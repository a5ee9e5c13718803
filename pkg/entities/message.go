package entities

import "time"

// NonTextPlaceholder is stored as the text of a message first observed without a text field.
const NonTextPlaceholder = "non-text message"

// TrackedMessage is the last known text of a message seen through a business connection.
// Only Text changes after the row is created.
type TrackedMessage struct {
	MessageID            int64     `db:"message_id"`
	SenderUsername       string    `db:"sender_username"`
	SenderFirstName      string    `db:"sender_first_name"`
	BusinessConnectionID string    `db:"business_connection_id"`
	ChatID               int64     `db:"chat_id"`
	Text                 string    `db:"text"`
	CreatedAt            time.Time `db:"created_at"`
}

// BotUser is a user who started a direct conversation with the bot.
type BotUser struct {
	UserID    int64     `db:"user_id"`
	ChatID    int64     `db:"chat_id"`
	Username  string    `db:"username"`
	FirstName string    `db:"first_name"`
	CreatedAt time.Time `db:"created_at"`
}

// BusinessConnection is the owner of a business connection. Zero fields mean
// the connection could not be resolved.
type BusinessConnection struct {
	UserID     int64
	UserChatID int64
}

// Known reports whether the owner chat is known, which is required to notify the owner.
func (c BusinessConnection) Known() bool {
	return c.UserChatID != 0
}
