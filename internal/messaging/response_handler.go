package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/store"
	"github.com/BTreeMap/HealthCoach/internal/telemetry"
)

var (
	// ErrDuplicate marks an inbound message whose provider ID was already handled.
	ErrDuplicate = errors.New("duplicate inbound message")
	// ErrEmptySender is returned for inbound messages without a sender.
	ErrEmptySender = errors.New("inbound message has no sender")
)

// Conversation turns one inbound text into ordered replies. *flow.Intake implements it.
type Conversation interface {
	HandleMessage(ctx context.Context, userID, text string) []models.OutboundMessage
}

// MessageLog records message traffic. store.Store implements it.
type MessageLog interface {
	AddReceipt(r models.Receipt) error
	AddResponse(r models.Response) error
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*ResponseHandler)

// WithDedup drops inbound messages whose provider ID was already recorded.
func WithDedup(repo store.DedupRepo) HandlerOption {
	return func(rh *ResponseHandler) {
		rh.dedup = repo
	}
}

// WithMessageLog records inbound messages and delivery receipts.
func WithMessageLog(log MessageLog) HandlerOption {
	return func(rh *ResponseHandler) {
		rh.log = log
	}
}

// WithHandlerMetrics counts inbound and outbound messages.
func WithHandlerMetrics(m *telemetry.Metrics) HandlerOption {
	return func(rh *ResponseHandler) {
		rh.metrics = m
	}
}

// ResponseHandler routes inbound messages to the conversation and sends the replies.
type ResponseHandler struct {
	msgService   Service
	conversation Conversation
	dedup        store.DedupRepo
	log          MessageLog
	metrics      *telemetry.Metrics
	choices      *choiceMemory
}

// NewResponseHandler creates a handler. msgService may be nil when messages only
// arrive through Converse.
func NewResponseHandler(msgService Service, conversation Conversation, opts ...HandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService:   msgService,
		conversation: conversation,
		choices:      newChoiceMemory(),
	}
	for _, opt := range opts {
		opt(rh)
	}
	slog.Debug("messaging.NewResponseHandler: created", "hasService", msgService != nil, "dedup", rh.dedup != nil, "log", rh.log != nil)
	return rh
}

// Converse runs one inbound message through the conversation and returns the replies
// without sending them. response.From must already be canonical. Callers receive the
// quick replies as data, so numeric answers are passed through as typed.
func (rh *ResponseHandler) Converse(ctx context.Context, response models.Response) ([]models.OutboundMessage, error) {
	return rh.converse(ctx, response, false)
}

func (rh *ResponseHandler) converse(ctx context.Context, response models.Response, numbered bool) ([]models.OutboundMessage, error) {
	if response.From == "" {
		return nil, ErrEmptySender
	}

	if rh.dedup != nil && response.MessageID != "" {
		inserted, err := rh.dedup.RecordInbound(response.MessageID, response.From)
		switch {
		case err != nil:
			// Processing twice is better than dropping the user's answer.
			slog.Warn("ResponseHandler.Converse: dedup unavailable", "error", err, "messageID", response.MessageID)
		case !inserted:
			slog.Info("ResponseHandler.Converse: duplicate dropped", "from", response.From, "messageID", response.MessageID)
			return nil, ErrDuplicate
		}
	}

	if rh.log != nil {
		if err := rh.log.AddResponse(response); err != nil {
			slog.Error("ResponseHandler.Converse: failed to log response", "error", err, "from", response.From)
		}
	}
	rh.metrics.IncMessages(telemetry.DirectionInbound, 1)

	text := rh.choices.ResolveChoice(response.From, response.Body, numbered)
	out := rh.conversation.HandleMessage(ctx, response.From, text)
	rh.choices.Remember(response.From, out)
	rh.metrics.IncMessages(telemetry.DirectionOutbound, len(out))

	if rh.dedup != nil && response.MessageID != "" {
		if err := rh.dedup.MarkProcessed(response.MessageID); err != nil {
			slog.Warn("ResponseHandler.Converse: failed to mark processed", "error", err, "messageID", response.MessageID)
		}
	}
	return out, nil
}

// ProcessResponse handles a message from the messaging service and sends every reply in order.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	if rh.msgService == nil {
		return fmt.Errorf("no messaging service configured")
	}
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: invalid sender", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	response.From = canonicalFrom

	// Services without native buttons show choices as a numbered list.
	_, buttons := rh.msgService.(ChoiceSender)
	out, err := rh.converse(ctx, response, !buttons)
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}

	for i, msg := range out {
		if err := rh.send(ctx, canonicalFrom, msg); err != nil {
			slog.Error("ResponseHandler.ProcessResponse: send failed", "error", err, "to", canonicalFrom, "index", i)
			return fmt.Errorf("failed to send reply %d of %d: %w", i+1, len(out), err)
		}
	}
	slog.Debug("ResponseHandler.ProcessResponse: replies sent", "to", canonicalFrom, "count", len(out))
	return nil
}

func (rh *ResponseHandler) send(ctx context.Context, to string, msg models.OutboundMessage) error {
	if cs, ok := rh.msgService.(ChoiceSender); ok && msg.HasChoices() {
		return cs.SendChoices(ctx, to, msg)
	}
	return rh.msgService.SendMessage(ctx, to, RenderText(msg))
}

// Start drains the service's response and receipt channels until both close or ctx ends.
func (rh *ResponseHandler) Start(ctx context.Context) {
	if rh.msgService == nil {
		return
	}
	slog.Info("ResponseHandler.Start: processing inbound messages")

	go func() {
		defer slog.Info("ResponseHandler.Start: stopped")

		responses := rh.msgService.Responses()
		receipts := rh.msgService.Receipts()
		for responses != nil || receipts != nil {
			select {
			case response, ok := <-responses:
				if !ok {
					responses = nil
					continue
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler.Start: failed to process response", "error", err, "from", response.From)
				}
			case receipt, ok := <-receipts:
				if !ok {
					receipts = nil
					continue
				}
				rh.recordReceipt(receipt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (rh *ResponseHandler) recordReceipt(r models.Receipt) {
	if rh.log == nil {
		return
	}
	if err := rh.log.AddReceipt(r); err != nil {
		slog.Error("ResponseHandler.recordReceipt: failed to log receipt", "error", err, "to", r.To)
	}
}
