// Package genai provides text generation through the OpenAI chat completion API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker/v2"
)

// Defaults for the generation client.
const (
	DefaultModel       = string(openai.ChatModelGPT4oMini)
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
)

var (
	// ErrAPIKeyNotSet is returned by NewClient when no API key is configured.
	ErrAPIKeyNotSet = errors.New("OPENAI_API_KEY not set")
	// ErrNoChoicesReturned is returned when the completion carries no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// ClientInterface is the generation surface consumed by the advice generator.
type ClientInterface interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK's completion service to chatService.
type completionsAdapter struct {
	client openai.Client
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	BaseURL     string
	DebugDir    string // when set, every call is written here as JSON
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) {
		o.Temperature = temp
	}
}

// WithTimeout bounds every generation call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithDebugDir records each request and response under dir.
func WithDebugDir(dir string) Option {
	return func(o *Opts) {
		o.DebugDir = dir
	}
}

// Client wraps the OpenAI chat completion service for generating advice text.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	timeout     time.Duration
	debugDir    string
	breaker     *gobreaker.CircuitBreaker[string]
}

// NewClient initializes a GenAI client. The API key comes from options or OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	slog.Debug("genai.NewClient: options applied", "apiKey_set", cfg.APIKey != "", "model", cfg.Model, "timeout", cfg.Timeout, "baseURL_set", cfg.BaseURL != "")
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	return newClient(completionsAdapter{client: cli}, cfg), nil
}

func newClient(chat chatService, cfg Opts) *Client {
	return &Client{
		chat:        chat,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		debugDir:    cfg.DebugDir,
		breaker:     newBreaker("openai"),
	}
}

// newBreaker opens after five consecutive failures and probes again after a minute.
func newBreaker(name string) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("genai circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// GeneratePrompt sends a system and user prompt and returns the first choice's content.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}

	start := time.Now()
	content, err := c.breaker.Execute(func() (string, error) {
		resp, err := c.chat.Create(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrNoChoicesReturned
		}
		return resp.Choices[0].Message.Content, nil
	})
	c.writeDebug(systemPrompt, userPrompt, content, err, time.Since(start))
	if err != nil {
		slog.Error("genai.GeneratePrompt: completion failed", "error", err, "model", c.model, "elapsed", time.Since(start))
		return "", err
	}
	slog.Debug("genai.GeneratePrompt: completion succeeded", "model", c.model, "length", len(content), "elapsed", time.Since(start))
	return content, nil
}

type debugRecord struct {
	Time     time.Time `json:"time"`
	Model    string    `json:"model"`
	System   string    `json:"system"`
	User     string    `json:"user"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	Elapsed  string    `json:"elapsed"`
}

// writeDebug stores the call transcript when a debug directory is configured.
func (c *Client) writeDebug(system, user, response string, callErr error, elapsed time.Duration) {
	if c.debugDir == "" {
		return
	}
	rec := debugRecord{
		Time:     time.Now(),
		Model:    c.model,
		System:   system,
		User:     user,
		Response: response,
		Elapsed:  elapsed.String(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		slog.Warn("genai.writeDebug: marshal failed", "error", err)
		return
	}
	if err := os.MkdirAll(c.debugDir, 0755); err != nil {
		slog.Warn("genai.writeDebug: failed to create debug dir", "error", err, "dir", c.debugDir)
		return
	}
	name := filepath.Join(c.debugDir, fmt.Sprintf("genai_%d.json", rec.Time.UnixNano()))
	if err := os.WriteFile(name, data, 0644); err != nil {
		slog.Warn("genai.writeDebug: failed to write debug file", "error", err, "file", name)
	}
}
