package genai

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/sony/gobreaker/v2"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	calls  int
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.calls++
	m.params = params
	return m.resp, m.err
}

func testClient(chat chatService) *Client {
	return newClient(chat, Opts{Model: "test-model", Temperature: 0.2, Timeout: time.Second})
}

func TestGeneratePrompt_Success(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}
	chat := &mockChatService{resp: mockResp}
	out, err := testClient(chat).GeneratePrompt(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(chat.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(chat.params.Messages))
	}
}

func TestGeneratePrompt_NoSystemPrompt(t *testing.T) {
	chat := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	if _, err := testClient(chat).GeneratePrompt(context.Background(), "", "only user"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chat.params.Messages) != 1 {
		t.Errorf("expected a single user message, got %d", len(chat.params.Messages))
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := testClient(&mockChatService{err: errors.New("service failure")})
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	client := testClient(&mockChatService{resp: openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}})
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGeneratePrompt_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	chat := &mockChatService{err: errors.New("down")}
	client := testClient(chat)
	for i := 0; i < 5; i++ {
		_, _ = client.GeneratePrompt(context.Background(), "sys", "usr")
	}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if chat.calls != 5 {
		t.Errorf("expected the open breaker to short-circuit the call, got %d calls", chat.calls)
	}
}

func TestGeneratePrompt_WritesDebugFile(t *testing.T) {
	dir := t.TempDir()
	chat := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "logged"}}},
	}}
	client := newClient(chat, Opts{Model: "test-model", DebugDir: dir})
	if _, err := client.GeneratePrompt(context.Background(), "sys", "usr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read debug dir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 debug file, got %d", len(files))
	}
	data, _ := os.ReadFile(dir + "/" + files[0].Name())
	if !strings.Contains(string(data), "logged") {
		t.Errorf("debug file missing response: %s", data)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil || cli.model != "gpt-4o" || cli.timeout != 5*time.Second {
		t.Errorf("options not applied: %+v", cli)
	}
}
