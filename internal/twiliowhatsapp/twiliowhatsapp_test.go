package twiliowhatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"sort"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "886912345678", "好的，請問您的年齡是？"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].To != "886912345678" || sent[0].Body != "好的，請問您的年齡是？" {
		t.Errorf("unexpected message: %+v", sent[0])
	}

	mock.Err = errors.New("boom")
	if err := mock.SendMessage(ctx, "886912345678", "x"); err == nil {
		t.Error("expected configured error")
	}
}

func TestWhatsAppAddress(t *testing.T) {
	cases := map[string]string{
		"886912345678":           "whatsapp:+886912345678",
		"+886912345678":          "whatsapp:+886912345678",
		"whatsapp:+886912345678": "whatsapp:+886912345678",
	}
	for in, want := range cases {
		if got := whatsAppAddress(in); got != want {
			t.Errorf("whatsAppAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret")); err == nil {
		t.Error("expected error without sender number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("unexpected sender %q", c.fromWhats)
	}
}

func TestNewClientReadsEnvironment(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_FROM_NUMBER", "whatsapp:+14155238886")

	if _, err := NewClient(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// sign computes the X-Twilio-Signature for url and params.
func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := url
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookValidator(t *testing.T) {
	const token = "12345"
	url := "https://coach.example.com/webhook/twilio"
	params := map[string]string{"From": "whatsapp:+886912345678", "Body": "男", "MessageSid": "SM1"}

	v := NewWebhookValidator(token)
	if !v.Validate(url, params, sign(token, url, params)) {
		t.Error("expected valid signature")
	}
	if v.Validate(url, params, sign("other", url, params)) {
		t.Error("expected signature from another token to fail")
	}
	if v.Validate(url, params, "") {
		t.Error("expected empty signature to fail")
	}
}
