package watcher

import (
	"context"
	"errors"
	"fmt"

	"nuclight.org/who-update-bot/app/notice"
	"nuclight.org/who-update-bot/app/updates"
	e "nuclight.org/who-update-bot/pkg/entities"
	"nuclight.org/who-update-bot/pkg/logger"
	"nuclight.org/who-update-bot/pkg/mutex"
)

// Watcher handles classified updates. For every update exactly one branch runs,
// checked in this order: /start sent to the bot, edited message, deleted
// messages, new message. Owners are notified about edits and deletions in
// chats other than their own chat with the bot. New and edited texts are
// stored so later notifications can quote them.
type Watcher struct {
	// Log is a logger
	Log logger.Logger

	// Messages stores message texts
	Messages MessageStore

	// Users stores users who started the bot
	Users UserStore

	// Connections resolves business connection owners
	Connections ConnectionResolver

	// Sender delivers notifications
	Sender Sender

	// Greeting is sent in reply to /start
	Greeting Greeting

	// OwnerChatID is told about new users, zero disables it
	OwnerChatID int64

	// Signature is the bot username closing every notification
	Signature string

	locks mutex.KeyedMutex[int64]
}

// Greeting is the reply to /start. Without a photo the caption is sent as text.
type Greeting struct {
	Photo   string
	Caption string
}

// HandleUpdate runs the branch matching the update and returns what was done.
// Returned outcome has to be considered even if error is not nil.
func (w *Watcher) HandleUpdate(ctx context.Context, upd updates.Update) (e.Outcome, error) {
	switch {
	case upd.IsStartCommand():
		return w.handleStart(ctx, upd.Message)
	case upd.Kind == updates.KindEditedMessage:
		return w.handleEdit(ctx, upd.Message)
	case upd.Kind == updates.KindDeletedMessages:
		return w.handleDelete(ctx, upd.Deleted)
	case upd.Kind == updates.KindNewMessage:
		return w.handleNew(ctx, upd.Message)
	default:
		return noop, nil
	}
}

func (w *Watcher) handleStart(ctx context.Context, msg updates.Message) (e.Outcome, error) {
	log := w.Log.With("tg_user_id", msg.SenderID(), "tg_chat_id", msg.ChatID())

	created, err := w.Users.SaveBotUser(ctx, e.BotUser{
		UserID:    msg.SenderID(),
		ChatID:    msg.ChatID(),
		Username:  msg.SenderUsername(),
		FirstName: msg.SenderFirstName(),
	})
	if err != nil {
		return noop, fmt.Errorf("saving bot user: %w", err)
	}

	var errs []error
	if created {
		log.Info("new bot user", "tg_user_nick", msg.SenderUsername())
		if w.OwnerChatID != 0 {
			err = w.Sender.SendText(ctx, w.OwnerChatID, notice.NewUser(msg.SenderUsername(), msg.SenderFirstName()))
			if err != nil {
				errs = append(errs, fmt.Errorf("notifying owner about new user: %w", err))
			}
		}
	}

	if w.Greeting.Photo != "" {
		err = w.Sender.SendPhoto(ctx, msg.ChatID(), w.Greeting.Caption, w.Greeting.Photo)
	} else {
		err = w.Sender.SendText(ctx, msg.ChatID(), w.Greeting.Caption)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("sending greeting: %w", err))
	}

	outcome := e.Outcome{Kind: e.OutcomeKindGreeted, Note: fmt.Sprintf("user created: %t", created)}

	return outcome, errors.Join(errs...)
}

func (w *Watcher) handleEdit(ctx context.Context, msg updates.Message) (e.Outcome, error) {
	log := w.Log.With("tg_message_id", msg.MessageID, "tg_chat_id", msg.ChatID())

	w.locks.Lock(msg.MessageID)
	defer w.locks.Unlock(msg.MessageID)

	outcome := e.Outcome{Kind: e.OutcomeKindEditSaved}

	var notifyErr error
	if msg.MissingText() {
		log.Warn("edited message without text")
		outcome.Note = "message has no text"
	} else {
		conn := w.Connections.Resolve(ctx, msg.BusinessConnectionID)
		switch {
		case !conn.Known():
			outcome.Note = "owner unknown"
		case conn.UserChatID == msg.ChatID():
			outcome.Note = "owner edited own chat"
		default:
			notified, err := w.notifyEdit(ctx, conn.UserChatID, msg)
			if err != nil {
				notifyErr = fmt.Errorf("notifying about edit: %w", err)
			}
			if notified {
				outcome.Kind = e.OutcomeKindEditNotified
				outcome.Note = fmt.Sprintf("notified chat %d", conn.UserChatID)
			}
		}
	}

	err := w.save(ctx, msg)
	if err != nil {
		return outcome, errors.Join(notifyErr, err)
	}

	return outcome, notifyErr
}

func (w *Watcher) notifyEdit(ctx context.Context, chatID int64, msg updates.Message) (bool, error) {
	prior, found, err := w.Messages.GetMessage(ctx, msg.MessageID)
	if err != nil {
		return false, fmt.Errorf("getting stored message: %w", err)
	}

	text := notice.Edit(msg, prior.Text, found, w.Signature)

	err = w.Sender.SendText(ctx, chatID, text)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (w *Watcher) handleDelete(ctx context.Context, batch updates.DeletedBatch) (e.Outcome, error) {
	conn := w.Connections.Resolve(ctx, batch.BusinessConnectionID)
	if !conn.Known() {
		return e.Outcome{Kind: e.OutcomeKindDeleteSkipped, Note: "owner unknown"}, nil
	}

	if conn.UserChatID == batch.ChatID() {
		return e.Outcome{Kind: e.OutcomeKindDeleteSkipped, Note: "owner deleted in own chat"}, nil
	}

	stored, err := w.Messages.GetMessages(ctx, batch.MessageIDs)
	if err != nil {
		return noop, fmt.Errorf("getting stored messages: %w", err)
	}

	known := make(map[int64]string, len(stored))
	for id, msg := range stored {
		known[id] = msg.Text
	}

	err = w.Sender.SendText(ctx, conn.UserChatID, notice.Delete(batch, known, w.Signature))
	if err != nil {
		return noop, fmt.Errorf("notifying about deletion: %w", err)
	}

	return e.Outcome{
		Kind: e.OutcomeKindDeleteNotified,
		Note: fmt.Sprintf("notified chat %d about %d message(s)", conn.UserChatID, len(batch.MessageIDs)),
	}, nil
}

func (w *Watcher) handleNew(ctx context.Context, msg updates.Message) (e.Outcome, error) {
	if msg.MissingText() {
		w.Log.Warn("message without text", "tg_message_id", msg.MessageID, "tg_chat_id", msg.ChatID())
	}

	w.locks.Lock(msg.MessageID)
	defer w.locks.Unlock(msg.MessageID)

	err := w.save(ctx, msg)
	if err != nil {
		return noop, err
	}

	return e.Outcome{Kind: e.OutcomeKindSaved}, nil
}

func (w *Watcher) save(ctx context.Context, msg updates.Message) error {
	err := w.Messages.UpsertMessage(ctx, e.TrackedMessage{
		MessageID:            msg.MessageID,
		SenderUsername:       msg.SenderUsername(),
		SenderFirstName:      msg.SenderFirstName(),
		BusinessConnectionID: msg.BusinessConnectionID,
		ChatID:               msg.ChatID(),
		Text:                 msg.TextOr(e.NonTextPlaceholder),
	}, msg.HasText())
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}

	return nil
}

type MessageStore interface {
	GetMessage(ctx context.Context, messageID int64) (e.TrackedMessage, bool, error)
	GetMessages(ctx context.Context, ids []int64) (map[int64]e.TrackedMessage, error)
	UpsertMessage(ctx context.Context, msg e.TrackedMessage, hasText bool) error
}

type UserStore interface {
	SaveBotUser(ctx context.Context, user e.BotUser) (bool, error)
}

type ConnectionResolver interface {
	Resolve(ctx context.Context, connectionID string) e.BusinessConnection
}

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, caption, photo string) error
}

var noop = e.Outcome{
	Kind: e.OutcomeKindNoop,
	Note: "",
}
