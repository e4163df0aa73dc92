package messaging

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/telegram"
)

// TelegramService implements Service and ChoiceSender over a Telegram bot.
// Recipients are chat IDs; quick replies become a one-time reply keyboard.
type TelegramService struct {
	eventChannels
	client telegram.Bot
}

// NewTelegramService creates a TelegramService using client.
func NewTelegramService(client telegram.Bot) *TelegramService {
	s := &TelegramService{client: client}
	s.initChannels("TelegramService")
	return s
}

// ValidateAndCanonicalizeRecipient checks that recipient is a chat ID.
func (s *TelegramService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	id, err := telegram.ParseChatID(recipient)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// Start polls for updates until ctx is cancelled or the service stops.
func (s *TelegramService) Start(ctx context.Context) error {
	updates := s.client.Updates(ctx)
	go func() {
		for msg := range updates {
			s.emitResponse(models.Response{
				From:      strconv.FormatInt(msg.ChatID, 10),
				Body:      msg.Text,
				Time:      msg.Date,
				MessageID: strconv.FormatInt(msg.ChatID, 10) + ":" + strconv.Itoa(msg.MessageID),
			})
		}
		slog.Debug("TelegramService.Start: update stream ended")
	}()
	slog.Info("TelegramService.Start: polling for updates")
	return nil
}

// Stop closes the event channels.
func (s *TelegramService) Stop() error {
	s.close()
	return nil
}

// SendMessage sends plain text and emits a receipt.
func (s *TelegramService) SendMessage(ctx context.Context, to string, body string) error {
	return s.deliver(to, func(chatID string) error {
		return s.client.SendMessage(ctx, chatID, body)
	})
}

// SendChoices sends msg with its quick-reply labels as keyboard buttons.
func (s *TelegramService) SendChoices(ctx context.Context, to string, msg models.OutboundMessage) error {
	labels := make([]string, 0, len(msg.QuickReplies))
	for _, qr := range msg.QuickReplies {
		labels = append(labels, qr.Label)
	}
	return s.deliver(to, func(chatID string) error {
		return s.client.SendKeyboard(ctx, chatID, msg.Text, labels)
	})
}

func (s *TelegramService) deliver(to string, send func(chatID string) error) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	chatID, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := send(chatID); err != nil {
		slog.Error("TelegramService.deliver: failed", "error", err, "to", chatID)
		s.emitReceipt(models.Receipt{To: chatID, Status: models.MessageStatusFailed, Time: time.Now().Unix()})
		return err
	}
	s.emitReceipt(models.Receipt{To: chatID, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns a channel of receipt events.
func (s *TelegramService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of incoming messages.
func (s *TelegramService) Responses() <-chan models.Response {
	return s.responses
}
