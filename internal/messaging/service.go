// Package messaging connects chat platforms to the intake flow.
//
// A Service delivers text to one platform and exposes inbound messages and delivery
// receipts as channels. The ResponseHandler drains those channels, runs each inbound
// message through the conversation and sends the replies back.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size of receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an emit waits on a full channel.
	DefaultChannelTimeout = 1 * time.Second
)

// ChoiceSender is implemented by services that can show quick replies natively.
// Other services receive the choices flattened by RenderText.
type ChoiceSender interface {
	SendChoices(ctx context.Context, to string, msg models.OutboundMessage) error
}

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a platform user identifier and
	// returns the canonical form used as the session key.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event subscriptions).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the channels.
	Stop() error

	// Receipts returns a channel of delivery events.
	Receipts() <-chan models.Receipt

	// Responses returns a channel of inbound user messages.
	Responses() <-chan models.Response
}

var phoneNumberRegex = regexp.MustCompile(`\D`)

// canonicalPhone strips everything but digits and requires at least six of them.
func canonicalPhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// eventChannels owns a service's receipt and response channels and closes them once.
type eventChannels struct {
	name      string
	receipts  chan models.Receipt
	responses chan models.Response
	mu        sync.RWMutex
	stopped   bool
}

func (c *eventChannels) initChannels(name string) {
	c.name = name
	c.receipts = make(chan models.Receipt, DefaultChannelBufferSize)
	c.responses = make(chan models.Response, DefaultChannelBufferSize)
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// emitReceipt and emitResponse hold the read lock while sending so that close
// cannot race with a pending send.
func (c *eventChannels) emitReceipt(r models.Receipt) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return
	}
	select {
	case c.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+": receipts channel blocked, dropping receipt", "to", r.To, "status", r.Status)
	}
}

func (c *eventChannels) emitResponse(r models.Response) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn(c.name+": dropping inbound message (service stopped)", "from", r.From)
		return
	}
	select {
	case c.responses <- r:
		slog.Debug(c.name+": inbound message forwarded", "from", r.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+": responses channel blocked, dropping message", "from", r.From)
	}
}

func (c *eventChannels) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.receipts)
	close(c.responses)
	slog.Info(c.name + ": stopped and channels closed")
}
