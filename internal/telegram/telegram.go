// Package telegram wraps the Telegram Bot API for sending intake prompts and
// receiving replies by long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// PollTimeoutSeconds is the long-poll window of each getUpdates call.
const PollTimeoutSeconds = 60

// Message is an inbound text message.
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
	Date      int64
}

// Bot is the surface used by the messaging layer.
type Bot interface {
	SendMessage(ctx context.Context, chatID string, body string) error
	SendKeyboard(ctx context.Context, chatID string, text string, labels []string) error
	Updates(ctx context.Context) <-chan Message
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token       string
	APIEndpoint string // format string with two %s verbs, token then method
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithAPIEndpoint points the client at a different Bot API server.
func WithAPIEndpoint(endpoint string) Option {
	return func(o *Opts) {
		o.APIEndpoint = endpoint
	}
}

// Client is an authorised bot.
type Client struct {
	bot *tgbotapi.BotAPI
}

// NewClient authorises the bot. The token falls back to TELEGRAM_BOT_TOKEN.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{APIEndpoint: tgbotapi.APIEndpoint}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, cfg.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to authorise telegram bot: %w", err)
	}
	slog.Info("telegram.NewClient: authorised", "username", bot.Self.UserName)
	return &Client{bot: bot}, nil
}

// ParseChatID validates a chat identifier.
func ParseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid telegram chat id %q", chatID)
	}
	return id, nil
}

// SendMessage sends body and removes any reply keyboard left by an earlier prompt.
func (c *Client) SendMessage(ctx context.Context, chatID string, body string) error {
	id, err := ParseChatID(chatID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(id, body)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	return c.send(msg)
}

// SendKeyboard sends text with one reply-keyboard button per label.
func (c *Client) SendKeyboard(ctx context.Context, chatID string, text string, labels []string) error {
	id, err := ParseChatID(chatID)
	if err != nil {
		return err
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
	}
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true

	msg := tgbotapi.NewMessage(id, text)
	msg.ReplyMarkup = keyboard
	return c.send(msg)
}

func (c *Client) send(msg tgbotapi.MessageConfig) error {
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	slog.Debug("telegram.Client.send: sent", "chatID", msg.ChatID)
	return nil
}

// Updates long-polls for text messages until ctx is cancelled, then closes the channel.
func (c *Client) Updates(ctx context.Context) <-chan Message {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = PollTimeoutSeconds
	updates := c.bot.GetUpdatesChan(u)

	out := make(chan Message)
	go func() {
		defer close(out)
		defer c.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg, ok := toMessage(update)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// toMessage keeps private text messages; everything else is ignored.
func toMessage(update tgbotapi.Update) (Message, bool) {
	m := update.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return Message{}, false
	}
	return Message{ChatID: m.Chat.ID, MessageID: m.MessageID, Text: m.Text, Date: int64(m.Date)}, true
}

// SentMessage is a message captured by MockClient.
type SentMessage struct {
	ChatID string
	Body   string
	Labels []string
}

// MockClient records sends and replays messages pushed with Push.
type MockClient struct {
	mu       sync.Mutex
	sent     []SentMessage
	incoming chan Message
	Err      error
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{incoming: make(chan Message, 16)}
}

// SendMessage records a plain message.
func (m *MockClient) SendMessage(ctx context.Context, chatID string, body string) error {
	return m.record(SentMessage{ChatID: chatID, Body: body})
}

// SendKeyboard records a message with buttons.
func (m *MockClient) SendKeyboard(ctx context.Context, chatID string, text string, labels []string) error {
	return m.record(SentMessage{ChatID: chatID, Body: text, Labels: labels})
}

func (m *MockClient) record(s SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, s)
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Push queues an inbound message.
func (m *MockClient) Push(msg Message) {
	m.incoming <- msg
}

// Updates forwards pushed messages until ctx is cancelled.
func (m *MockClient) Updates(ctx context.Context) <-chan Message {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-m.incoming:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
