package messaging

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/whatsapp"
)

func TestWhatsAppService_SendMessage_Receipt(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	ctx := context.Background()

	if err := svc.SendMessage(ctx, "+886 912-345-678", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if sent := mockClient.Sent(); len(sent) != 1 || sent[0].To != "886912345678" {
		t.Fatalf("expected canonical recipient, got %+v", sent)
	}
	select {
	case receipt := <-svc.Receipts():
		if receipt.To != "886912345678" || receipt.Status != models.MessageStatusSent {
			t.Errorf("unexpected receipt %+v", receipt)
		}
	default:
		t.Fatal("expected receipt, got none")
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel to be closed")
	}
	if err := svc.SendMessage(context.Background(), "886912345678", "x"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestWhatsAppService_HandleEvents(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	sender := types.NewJID("886912345678", types.DefaultUserServer)
	now := time.Now()

	svc.handleEvent(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Sender: sender, Chat: sender},
			ID:            "wamid-1",
			Timestamp:     now,
		},
		Message: &waE2E.Message{Conversation: strPtr("男")},
	})
	select {
	case r := <-svc.Responses():
		if r.From != "886912345678" || r.Body != "男" || r.MessageID != "wamid-1" {
			t.Errorf("unexpected response %+v", r)
		}
	default:
		t.Fatal("expected inbound response")
	}

	// Own messages and media are not forwarded.
	svc.handleEvent(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Sender: sender, IsFromMe: true}},
		Message: &waE2E.Message{Conversation: strPtr("echo")},
	})
	svc.handleEvent(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Sender: sender}},
		Message: &waE2E.Message{},
	})
	select {
	case r := <-svc.Responses():
		t.Fatalf("unexpected response %+v", r)
	default:
	}

	svc.handleEvent(&events.Receipt{
		MessageSource: types.MessageSource{Chat: sender},
		Type:          events.ReceiptTypeRead,
		Timestamp:     now,
	})
	select {
	case r := <-svc.Receipts():
		if r.To != "886912345678" || r.Status != models.MessageStatusRead {
			t.Errorf("unexpected receipt %+v", r)
		}
	default:
		t.Fatal("expected read receipt")
	}
}

func strPtr(s string) *string { return &s }
