package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	e "nuclight.org/who-update-bot/pkg/entities"
	"nuclight.org/who-update-bot/pkg/logger"
)

// AllowedUpdates are the update types the webhook subscribes to.
var AllowedUpdates = []string{
	"message",
	"edited_message",
	"business_connection",
	"business_message",
	"edited_business_message",
	"deleted_business_messages",
}

// Client is a thin wrapper over the Bot API. Calls are not retried; each one is
// bounded by the HTTP client timeout.
type Client struct {
	Log logger.Logger

	bot *tgbotapi.BotAPI
}

// NewClient creates a client and checks the token with getMe. An empty
// endpoint means the public Bot API.
func NewClient(log logger.Logger, token, endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("creating bot api: %w", err)
	}

	log.Info("bot api created", "username", bot.Self.UserName)

	return &Client{
		Log: log,
		bot: bot,
	}, nil
}

// Username returns the bot username reported by getMe.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := c.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("sending message to chat %d: %w", chatID, err)
	}

	return nil
}

// SendPhoto sends a photo given by file id or URL.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, caption, photo string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewPhoto(chatID, photoFile(photo))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML

	_, err := c.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("sending photo to chat %d: %w", chatID, err)
	}

	return nil
}

// GetBusinessConnection asks the Bot API who owns the business connection.
func (c *Client) GetBusinessConnection(ctx context.Context, connectionID string) (e.BusinessConnection, error) {
	if err := ctx.Err(); err != nil {
		return e.BusinessConnection{}, err
	}

	params := tgbotapi.Params{}
	params.AddNonEmpty("business_connection_id", connectionID)

	resp, err := c.bot.MakeRequest("getBusinessConnection", params)
	if err != nil {
		return e.BusinessConnection{}, fmt.Errorf("getting business connection: %w", err)
	}

	var conn businessConnection
	if err = json.Unmarshal(resp.Result, &conn); err != nil {
		return e.BusinessConnection{}, fmt.Errorf("decoding business connection: %w", err)
	}

	return e.BusinessConnection{
		UserID:     conn.User.ID,
		UserChatID: conn.UserChatID,
	}, nil
}

// SetWebhook points the bot at url and subscribes to AllowedUpdates.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("building webhook config: %w", err)
	}
	wh.AllowedUpdates = AllowedUpdates

	_, err = c.bot.Request(wh)
	if err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}

	c.Log.Info("webhook set", "url", url)

	return nil
}

type businessConnection struct {
	ID         string        `json:"id"`
	User       tgbotapi.User `json:"user"`
	UserChatID int64         `json:"user_chat_id"`
	IsEnabled  bool          `json:"is_enabled"`
}

func photoFile(photo string) tgbotapi.RequestFileData {
	if strings.HasPrefix(photo, "http://") || strings.HasPrefix(photo, "https://") {
		return tgbotapi.FileURL(photo)
	}
	return tgbotapi.FileID(photo)
}
