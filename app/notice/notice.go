// Package notice renders the HTML notifications sent to business account owners.
package notice

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"nuclight.org/who-update-bot/app/updates"
)

const (
	// MaxQuoted is the number of deleted messages quoted in one notification.
	MaxQuoted = 20

	UnknownName        = "Unknown"
	BeforeBotText      = "this message was written before the bot was connected"
	NotSavedText       = "(text not saved)"
	DefaultSignature   = "who_update_bot"
	editedPhrase       = "edited a message"
	deletedPhrase      = "deleted"
	missingIDsSentence = "deleted messages (ids were not provided)."
)

// Edit renders a notification about an edited message. prior is the stored
// text of the message, hasPrior is false when the message was never stored.
func Edit(msg updates.Message, prior string, hasPrior bool, signature string) string {
	if !hasPrior {
		prior = BeforeBotText
	}

	var sb strings.Builder
	sb.WriteString(senderName(msg.SenderFirstName(), msg.SenderUsername()))
	sb.WriteString(" " + editedPhrase + ":\n\n")
	sb.WriteString("<b>Old:</b>\n")
	sb.WriteString(quote(prior))
	sb.WriteString("\n<b>New:</b>\n")
	sb.WriteString(quote(msg.TextOr("")))
	sb.WriteString("\n\n")
	sb.WriteString(signatureLine(signature))

	return sb.String()
}

// Delete renders a notification about deleted messages. known maps message ids
// to their stored text; ids are quoted in batch order.
func Delete(batch updates.DeletedBatch, known map[int64]string, signature string) string {
	var firstName, username string
	if batch.Chat != nil {
		firstName = batch.Chat.FirstName
		username = batch.Chat.UserName
	}

	if len(batch.MessageIDs) == 0 {
		return escape(orUnknown(firstName)) + " " + missingIDsSentence + "\n" + signatureLine(signature)
	}

	lines := make([]string, 0, MaxQuoted+4)
	lines = append(lines,
		fmt.Sprintf("%s %s %d message(s):", senderName(firstName, username), deletedPhrase, len(batch.MessageIDs)),
		"",
	)

	for i, id := range batch.MessageIDs {
		if i == MaxQuoted {
			break
		}
		text := known[id]
		if text == "" {
			text = NotSavedText
		}
		lines = append(lines, quote(text))
	}

	if extra := len(batch.MessageIDs) - MaxQuoted; extra > 0 {
		lines = append(lines, fmt.Sprintf("...and %d more messages", extra))
	}

	lines = append(lines, signatureLine(signature))

	return strings.Join(lines, "\n")
}

// NewUser renders the text sent to the owner chat when a new user starts the bot.
func NewUser(username, firstName string) string {
	return "new user registered: " + senderName(firstName, username)
}

func senderName(firstName, username string) string {
	var sb strings.Builder

	sb.WriteString(escape(orUnknown(firstName)))

	if username != "" {
		sb.WriteString(" (@")
		sb.WriteString(escape(username))
		sb.WriteRune(')')
	}

	return sb.String()
}

func signatureLine(signature string) string {
	if signature == "" {
		signature = DefaultSignature
	}
	return "<b>@" + escape(strings.TrimPrefix(signature, "@")) + "</b>"
}

func quote(text string) string {
	return "<blockquote>" + escape(text) + "</blockquote>"
}

func orUnknown(name string) string {
	if name == "" {
		return UnknownName
	}
	return name
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
