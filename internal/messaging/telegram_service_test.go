package messaging

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/telegram"
)

func TestTelegramService_Canonicalize(t *testing.T) {
	svc := NewTelegramService(telegram.NewMockClient())
	if got, err := svc.ValidateAndCanonicalizeRecipient("+42"); err != nil || got != "42" {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := svc.ValidateAndCanonicalizeRecipient("whatsapp:+1"); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
}

func TestTelegramService_SendsKeyboardForChoices(t *testing.T) {
	mock := telegram.NewMockClient()
	svc := NewTelegramService(mock)
	conv := &echoConversation{}
	rh := NewResponseHandler(svc, conv)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "42", Body: "choose"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	want := []telegram.SentMessage{
		{ChatID: "42", Body: "ack"},
		{ChatID: "42", Body: "pick one", Labels: []string{"Option A", "Option B"}},
	}
	if got := mock.Sent(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent = %+v, want %+v", got, want)
	}

	// A tapped button arrives as its label.
	if err := rh.ProcessResponse(context.Background(), models.Response{From: "42", Body: "Option B"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	calls := conv.Calls()
	if calls[len(calls)-1] != "42:B" {
		t.Errorf("button label not resolved to payload: %v", calls)
	}

	for i := 0; i < 3; i++ {
		select {
		case r := <-svc.Receipts():
			if r.Status != models.MessageStatusSent || r.To != "42" {
				t.Errorf("unexpected receipt %+v", r)
			}
		default:
			t.Fatalf("expected receipt %d", i)
		}
	}
}

func TestTelegramService_SendFailure(t *testing.T) {
	mock := telegram.NewMockClient()
	mock.Err = errors.New("telegram down")
	svc := NewTelegramService(mock)

	if err := svc.SendChoices(context.Background(), "42", models.ChoiceMessage("q", models.QuickReply{Label: "a", Payload: "a"})); err == nil {
		t.Fatal("expected error")
	}
	if r := <-svc.Receipts(); r.Status != models.MessageStatusFailed {
		t.Errorf("expected failed receipt, got %+v", r)
	}
}

func TestTelegramService_StartForwardsUpdates(t *testing.T) {
	mock := telegram.NewMockClient()
	svc := NewTelegramService(mock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mock.Push(telegram.Message{ChatID: 42, MessageID: 9, Text: "男", Date: 1700000000})

	select {
	case r := <-svc.Responses():
		want := models.Response{From: "42", Body: "男", Time: 1700000000, MessageID: "42:9"}
		if r != want {
			t.Errorf("response = %+v, want %+v", r, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response forwarded")
	}

	cancel()
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "42", "x"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTelegramService_NumbersAreNotChoiceIndexes(t *testing.T) {
	conv := &echoConversation{}
	rh := NewResponseHandler(NewTelegramService(telegram.NewMockClient()), conv)
	ctx := context.Background()

	if err := rh.ProcessResponse(ctx, models.Response{From: "42", Body: "choose"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	// Keyboards never show positions, so "2" is an ordinary answer.
	if err := rh.ProcessResponse(ctx, models.Response{From: "42", Body: "2"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	calls := conv.Calls()
	if calls[len(calls)-1] != "42:2" {
		t.Errorf("numeric reply should pass through, got %v", calls)
	}
}
