// Package flow runs the intake conversation: one field per message, in a fixed order,
// ending with the computed metrics and a personalised recommendation.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/HealthCoach/internal/health"
	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/session"
	"github.com/BTreeMap/HealthCoach/internal/telemetry"
)

// Advisor produces the narrative parts of the conversation.
// *advice.Generator is the production implementation.
type Advisor interface {
	StepFeedback(ctx context.Context, profile models.Profile, field models.Field) (string, bool)
	FinalRecommendation(ctx context.Context, profile models.Profile) string
}

// Archive receives every completed assessment. store.Store satisfies it.
type Archive interface {
	SaveAssessment(a models.Assessment) error
}

// Config toggles optional behaviour of the intake flow.
type Config struct {
	// EnableStepFeedback sends a short generated remark after each accepted field
	// from gender through activity level.
	EnableStepFeedback bool
}

// Opts holds optional collaborators for an Intake.
type Opts struct {
	Config  Config
	Archive Archive
	Metrics *telemetry.Metrics
	Clock   func() time.Time
}

// Option configures an Intake.
type Option func(*Opts)

// WithConfig sets the flow configuration.
func WithConfig(cfg Config) Option {
	return func(o *Opts) {
		o.Config = cfg
	}
}

// WithArchive sets where completed assessments are saved.
func WithArchive(a Archive) Option {
	return func(o *Opts) {
		o.Archive = a
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Opts) {
		o.Metrics = m
	}
}

// WithClock overrides the time source used to stamp assessments.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// Intake is the per-user conversational state machine.
type Intake struct {
	sessions *session.Store
	advisor  Advisor
	cfg      Config
	archive  Archive
	metrics  *telemetry.Metrics
	clock    func() time.Time
}

// NewIntake creates an Intake backed by sessions and advisor.
func NewIntake(sessions *session.Store, advisor Advisor, opts ...Option) *Intake {
	cfg := Opts{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("flow.NewIntake: creating intake", "stepFeedback", cfg.Config.EnableStepFeedback, "hasArchive", cfg.Archive != nil)
	return &Intake{
		sessions: sessions,
		advisor:  advisor,
		cfg:      cfg.Config,
		archive:  cfg.Archive,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
	}
}

// HandleMessage consumes one inbound text from userID and returns the replies in send order.
// It never fails: invalid answers produce a re-prompt and advice failures produce fallbacks.
// Messages from the same user are processed one at a time.
func (in *Intake) HandleMessage(ctx context.Context, userID, text string) []models.OutboundMessage {
	unlock := in.sessions.Lock(userID)
	defer unlock()

	text = strings.TrimSpace(text)
	profile, created := in.sessions.GetOrCreate(userID)
	sessionID := in.sessions.SessionID(userID)
	if created {
		slog.Info("flow.Intake.HandleMessage: new session", "userID", userID, "sessionID", sessionID)
		in.metrics.IncSessionStarted()
		return []models.OutboundMessage{welcomeMessage()}
	}

	slog.Debug("flow.Intake.HandleMessage: processing", "userID", userID, "sessionID", sessionID, "stage", profile.Stage)

	var (
		out []models.OutboundMessage
		err error
	)
	switch profile.Stage {
	case models.StageAwaitingGender:
		out, err = in.handleGender(ctx, userID, text)
	case models.StageAwaitingAge:
		out, err = in.handleAge(ctx, userID, text)
	case models.StageAwaitingHeight:
		out, err = in.handleHeight(ctx, userID, text)
	case models.StageAwaitingWeight:
		out, err = in.handleWeight(ctx, userID, text)
	case models.StageAwaitingActivity:
		out, err = in.handleActivity(ctx, userID, text)
	case models.StageAwaitingGoal:
		out, err = in.handleGoal(ctx, userID, text)
	default:
		out = in.handleIdle(userID, text)
	}

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		slog.Debug("flow.Intake.HandleMessage: answer rejected", "userID", userID, "sessionID", sessionID, "field", verr.Field, "reason", verr.Reason)
		in.metrics.IncValidationError(string(verr.Field))
		return []models.OutboundMessage{models.ChoiceMessage(verr.Prompt, choicesFor(verr.Field)...)}
	case errors.Is(err, session.ErrUnknownSession):
		// Evicted between GetOrCreate and Update; treat like the idle state.
		slog.Warn("flow.Intake.HandleMessage: session vanished", "userID", userID)
		return in.handleIdle(userID, text)
	case err != nil:
		slog.Error("flow.Intake.HandleMessage: unexpected error", "userID", userID, "error", err)
		return []models.OutboundMessage{models.TextMessage(msgHelp)}
	}
	return out
}

// accept stores a validated answer and advances the stage.
func (in *Intake) accept(userID string, apply func(p *models.Profile)) (models.Profile, error) {
	var updated models.Profile
	err := in.sessions.Update(userID, func(p *models.Profile) error {
		apply(p)
		p.Stage = p.Stage.Next()
		updated = *p
		return nil
	})
	if err != nil {
		return models.Profile{}, err
	}
	in.metrics.IncStageTransition(string(updated.Stage))
	return updated, nil
}

// withFeedback prepends the optional step remark to next.
func (in *Intake) withFeedback(ctx context.Context, p models.Profile, field models.Field, next models.OutboundMessage) []models.OutboundMessage {
	if !in.cfg.EnableStepFeedback || in.advisor == nil {
		return []models.OutboundMessage{next}
	}
	if text, ok := in.advisor.StepFeedback(ctx, p, field); ok {
		return []models.OutboundMessage{models.TextMessage(text), next}
	}
	return []models.OutboundMessage{next}
}

func (in *Intake) handleGender(ctx context.Context, userID, text string) ([]models.OutboundMessage, error) {
	g, err := parseGender(text)
	if err != nil {
		return nil, err
	}
	p, err := in.accept(userID, func(p *models.Profile) { p.Gender = g })
	if err != nil {
		return nil, err
	}
	return in.withFeedback(ctx, p, models.FieldGender, models.TextMessage(msgAskAge)), nil
}

func (in *Intake) handleAge(ctx context.Context, userID, text string) ([]models.OutboundMessage, error) {
	age, err := parseAge(text)
	if err != nil {
		return nil, err
	}
	p, err := in.accept(userID, func(p *models.Profile) { p.Age = age })
	if err != nil {
		return nil, err
	}
	return in.withFeedback(ctx, p, models.FieldAge, models.TextMessage(msgAskHeight)), nil
}

func (in *Intake) handleHeight(ctx context.Context, userID, text string) ([]models.OutboundMessage, error) {
	h, err := parseHeight(text)
	if err != nil {
		return nil, err
	}
	p, err := in.accept(userID, func(p *models.Profile) { p.HeightCM = h })
	if err != nil {
		return nil, err
	}
	return in.withFeedback(ctx, p, models.FieldHeight, models.TextMessage(msgAskWeight)), nil
}

func (in *Intake) handleWeight(ctx context.Context, userID, text string) ([]models.OutboundMessage, error) {
	w, err := parseWeight(text)
	if err != nil {
		return nil, err
	}
	p, err := in.accept(userID, func(p *models.Profile) { p.WeightKG = w })
	if err != nil {
		return nil, err
	}
	return in.withFeedback(ctx, p, models.FieldWeight, models.ChoiceMessage(msgAskActivity, activityChoices()...)), nil
}

// handleActivity stores the activity level and computes the metrics exactly once.
func (in *Intake) handleActivity(ctx context.Context, userID, text string) ([]models.OutboundMessage, error) {
	a, err := parseActivity(text)
	if err != nil {
		return nil, err
	}
	p, err := in.accept(userID, func(p *models.Profile) {
		p.ActivityLevel = a
		health.Compute(p)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("flow.Intake.handleActivity: metrics computed", "userID", userID, "bmi", p.BMI, "bmr", p.BMR, "tdee", p.TDEE)
	return in.withFeedback(ctx, p, models.FieldActivityLevel, resultsMessage(p)), nil
}

// handleGoal finishes the intake: final advice, archive, then the session is discarded.
func (in *Intake) handleGoal(ctx context.Context, userID, text string) ([]models.OutboundMessage, error) {
	goal, err := parseGoal(text)
	if err != nil {
		return nil, err
	}
	p, err := in.accept(userID, func(p *models.Profile) { p.Goal = goal })
	if err != nil {
		return nil, err
	}

	advice := in.advisor.FinalRecommendation(ctx, p)
	sessionID := in.sessions.SessionID(userID)
	in.sessions.Destroy(userID)
	in.metrics.IncSessionCompleted()
	in.save(userID, sessionID, p, advice)
	return []models.OutboundMessage{models.TextMessage(advice)}, nil
}

// save archives a completed assessment under the ID of the session that produced it.
// Failures are logged and otherwise ignored.
func (in *Intake) save(userID, sessionID string, p models.Profile, advice string) {
	if in.archive == nil {
		return
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	a := models.Assessment{
		ID:        sessionID,
		UserID:    userID,
		Profile:   p,
		Advice:    advice,
		CreatedAt: in.clock().UTC(),
	}
	if err := in.archive.SaveAssessment(a); err != nil {
		slog.Error("flow.Intake.save: failed to archive assessment", "userID", userID, "error", err)
		return
	}
	slog.Debug("flow.Intake.save: assessment archived", "userID", userID, "id", a.ID)
}

// handleIdle answers a user with no intake in progress.
func (in *Intake) handleIdle(userID, text string) []models.OutboundMessage {
	if text != models.ResetKeyword {
		return []models.OutboundMessage{models.TextMessage(msgHelp)}
	}
	in.sessions.Destroy(userID)
	in.sessions.GetOrCreate(userID)
	in.metrics.IncSessionStarted()
	slog.Info("flow.Intake.handleIdle: intake restarted", "userID", userID)
	return []models.OutboundMessage{restartMessage()}
}
