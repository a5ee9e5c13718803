// Package updates turns raw webhook bodies into typed updates.
//
// An update body carries one of several top-level keys. Parse picks the first
// present key in a fixed order, so a body carrying several keys is still
// classified deterministically.
package updates

import (
	"encoding/json"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrMalformedPayload is returned when the body is not a JSON object.
var ErrMalformedPayload = errors.New("malformed update payload")

// Kind is the category of an update.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindNewMessage      Kind = "new_message"
	KindEditedMessage   Kind = "edited_message"
	KindDeletedMessages Kind = "deleted_messages"
)

// Origin tells whether the update came from a direct chat with the bot or
// from a chat observed through a business connection.
type Origin string

const (
	OriginNone     Origin = ""
	OriginDirect   Origin = "direct"
	OriginBusiness Origin = "business"
)

const StartCommand = "/start"

type key struct {
	name   string
	kind   Kind
	origin Origin
}

// keys is the precedence order of top-level keys.
var keys = []key{
	{"business_message", KindNewMessage, OriginBusiness},
	{"message", KindNewMessage, OriginDirect},
	{"edited_message", KindEditedMessage, OriginDirect},
	{"edited_business_message", KindEditedMessage, OriginBusiness},
	{"deleted_business_messages", KindDeletedMessages, OriginBusiness},
	{"deleted_messages", KindDeletedMessages, OriginDirect},
}

// Update is a classified webhook update. Message is set for new and edited
// messages, Deleted for deleted messages.
type Update struct {
	ID      int64
	Key     string
	Kind    Kind
	Origin  Origin
	Message Message
	Deleted DeletedBatch
}

// Message is the subset of a Telegram message the bot works with.
type Message struct {
	MessageID            int64           `json:"message_id"`
	BusinessConnectionID string          `json:"business_connection_id"`
	From                 *tgbotapi.User  `json:"from"`
	Chat                 *tgbotapi.Chat  `json:"chat"`
	Date                 int64           `json:"date"`
	EditDate             int64           `json:"edit_date"`
	Text                 *string         `json:"text"`
	Caption              *string         `json:"caption"`
	Photo                json.RawMessage `json:"photo"`
	Video                json.RawMessage `json:"video"`
	VideoNote            json.RawMessage `json:"video_note"`
	Voice                json.RawMessage `json:"voice"`
	Audio                json.RawMessage `json:"audio"`
	Document             json.RawMessage `json:"document"`
	Sticker              json.RawMessage `json:"sticker"`
	Animation            json.RawMessage `json:"animation"`
	Contact              json.RawMessage `json:"contact"`
	Location             json.RawMessage `json:"location"`
	Venue                json.RawMessage `json:"venue"`
	Poll                 json.RawMessage `json:"poll"`
	Dice                 json.RawMessage `json:"dice"`
}

// DeletedBatch describes messages deleted from one chat.
type DeletedBatch struct {
	BusinessConnectionID string         `json:"business_connection_id"`
	Chat                 *tgbotapi.Chat `json:"chat"`
	MessageIDs           []int64        `json:"message_ids"`
}

// Parse classifies a webhook body. A body with none of the known keys is a
// KindUnknown update, not an error.
func Parse(body []byte) (Update, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Update{Kind: KindUnknown}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if raw == nil {
		return Update{Kind: KindUnknown}, fmt.Errorf("%w: body is null", ErrMalformedPayload)
	}

	upd := Update{Kind: KindUnknown}
	if id, ok := raw["update_id"]; ok {
		// update_id is informational only
		_ = json.Unmarshal(id, &upd.ID)
	}

	for _, k := range keys {
		value, ok := raw[k.name]
		if !ok || isNull(value) {
			continue
		}

		upd.Key = k.name
		upd.Kind = k.kind
		upd.Origin = k.origin

		var err error
		if k.kind == KindDeletedMessages {
			err = json.Unmarshal(value, &upd.Deleted)
		} else {
			err = json.Unmarshal(value, &upd.Message)
		}
		if err != nil {
			return Update{Kind: KindUnknown}, fmt.Errorf("%w: decoding %s: %w", ErrMalformedPayload, k.name, err)
		}

		return upd, nil
	}

	return upd, nil
}

func isNull(value json.RawMessage) bool {
	return len(value) == 0 || string(value) == "null"
}

// IsStartCommand reports whether the update is /start sent directly to the bot.
func (u Update) IsStartCommand() bool {
	return u.Origin == OriginDirect &&
		u.Kind != KindDeletedMessages &&
		u.Message.Text != nil &&
		*u.Message.Text == StartCommand
}

// HasText reports whether the message carries a text field, empty or not.
func (m Message) HasText() bool {
	return m.Text != nil
}

// TextOr returns the message text or fallback when the text field is absent.
func (m Message) TextOr(fallback string) string {
	if m.Text == nil {
		return fallback
	}
	return *m.Text
}

// HasMedia reports whether the message carries a recognised non-text payload.
func (m Message) HasMedia() bool {
	for _, v := range []json.RawMessage{
		m.Photo, m.Video, m.VideoNote, m.Voice, m.Audio, m.Document, m.Sticker,
		m.Animation, m.Contact, m.Location, m.Venue, m.Poll, m.Dice,
	} {
		if !isNull(v) {
			return true
		}
	}
	return false
}

// MissingText reports a message with neither text nor recognised media.
func (m Message) MissingText() bool {
	return !m.HasText() && !m.HasMedia()
}

func (m Message) ChatID() int64 {
	if m.Chat == nil {
		return 0
	}
	return m.Chat.ID
}

func (m Message) SenderID() int64 {
	if m.From == nil {
		return 0
	}
	return m.From.ID
}

func (m Message) SenderUsername() string {
	if m.From == nil {
		return ""
	}
	return m.From.UserName
}

func (m Message) SenderFirstName() string {
	if m.From == nil {
		return ""
	}
	return m.From.FirstName
}

func (b DeletedBatch) ChatID() int64 {
	if b.Chat == nil {
		return 0
	}
	return b.Chat.ID
}
