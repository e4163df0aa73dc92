// Package advice turns an intake profile into narrative health advice using a
// generative text service.
//
// Every failure of the service is absorbed here: step feedback is simply omitted
// and the final recommendation falls back to a fixed message, so callers never
// see an error.
package advice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/HealthCoach/internal/genai"
	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/telemetry"
)

// Service errors, distinguishable for logging and tests. All map to the same
// user-facing behaviour.
var (
	ErrNoCredential  = errors.New("advice service credential not configured")
	ErrCallFailed    = errors.New("advice service call failed")
	ErrEmptyResponse = errors.New("advice service returned no text")
)

// Fixed final-recommendation fallbacks, one per service error.
const (
	FallbackNoCredential = "抱歉，目前無法提供建議。請稍後再試或聯繫管理員。"
	FallbackEmpty        = "抱歉，無法生成建議，請稍後再試。"
	FallbackCallFailed   = "很抱歉，生成建議時發生了問題，請稍後再試。"
)

const (
	kindStep  = "step"
	kindFinal = "final"
)

// Generator builds advice prompts and calls the text service.
type Generator struct {
	client  genai.ClientInterface
	metrics *telemetry.Metrics
}

// NewGenerator creates a Generator. A nil client means no credential is configured;
// every call then resolves to ErrNoCredential.
func NewGenerator(client genai.ClientInterface, metrics *telemetry.Metrics) *Generator {
	slog.Debug("advice.NewGenerator: creating generator", "hasClient", client != nil)
	return &Generator{client: client, metrics: metrics}
}

// Generate performs one call to the text service and classifies its outcome.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.client == nil {
		return "", ErrNoCredential
	}
	text, err := g.client.GeneratePrompt(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCallFailed, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StepFeedback asks for one short encouraging sentence about the field just collected.
// ok is false when the service is unavailable; the caller then omits the message.
func (g *Generator) StepFeedback(ctx context.Context, profile models.Profile, field models.Field) (text string, ok bool) {
	start := time.Now()
	text, err := g.Generate(ctx, stepSystemPrompt, stepUserPrompt(profile, field))
	g.record(kindStep, err, time.Since(start))
	if err != nil {
		slog.Debug("advice.StepFeedback: omitted", "field", field, "reason", err)
		return "", false
	}
	return text, true
}

// FinalRecommendation returns the personalised recommendation for a completed profile,
// or a fixed fallback when the service cannot produce one.
func (g *Generator) FinalRecommendation(ctx context.Context, profile models.Profile) string {
	userPrompt := finalUserPrompt(profile)
	slog.Info("advice.FinalRecommendation: requesting advice", "goal", profile.Goal, "prompt_preview", preview(userPrompt))

	start := time.Now()
	text, err := g.Generate(ctx, finalSystemPrompt, userPrompt)
	g.record(kindFinal, err, time.Since(start))
	if err != nil {
		slog.Error("advice.FinalRecommendation: using fallback", "error", err, "goal", profile.Goal)
		return Fallback(err)
	}
	slog.Info("advice.FinalRecommendation: advice generated", "length", len(text), "response_preview", preview(text))
	return text
}

// Fallback maps a service error to its fixed user-facing message.
func Fallback(err error) string {
	switch {
	case errors.Is(err, ErrNoCredential):
		return FallbackNoCredential
	case errors.Is(err, ErrEmptyResponse):
		return FallbackEmpty
	default:
		return FallbackCallFailed
	}
}

// Outcome names the telemetry outcome for err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, ErrNoCredential):
		return telemetry.OutcomeNoCredential
	case errors.Is(err, ErrEmptyResponse):
		return telemetry.OutcomeEmpty
	default:
		return telemetry.OutcomeCallFailed
	}
}

func (g *Generator) record(kind string, err error, d time.Duration) {
	g.metrics.RecordAdvice(kind, Outcome(err), d)
}

// preview shortens s for log lines.
func preview(s string) string {
	const limit = 200
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
