package advice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/telemetry"
)

// fakeClient implements genai.ClientInterface for testing.
type fakeClient struct {
	resp   string
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeClient) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.system = systemPrompt
	f.user = userPrompt
	return f.resp, f.err
}

func completeProfile() models.Profile {
	return models.Profile{
		Stage:         models.StageComplete,
		Gender:        models.GenderMale,
		Age:           30,
		HeightCM:      175,
		WeightKG:      70,
		ActivityLevel: models.ActivitySedentary,
		Goal:          models.GoalMaintain,
		BMI:           22.86,
		BMR:           1648.75,
		TDEE:          1978.5,
	}
}

func TestFinalRecommendation_NoCredentialIsDeterministic(t *testing.T) {
	g := NewGenerator(nil, nil)
	for i := 0; i < 3; i++ {
		if got := g.FinalRecommendation(context.Background(), completeProfile()); got != FallbackNoCredential {
			t.Fatalf("expected fixed fallback, got %q", got)
		}
	}
}

func TestFinalRecommendation_Fallbacks(t *testing.T) {
	cases := []struct {
		name   string
		client *fakeClient
		want   string
	}{
		{"call failed", &fakeClient{err: errors.New("timeout")}, FallbackCallFailed},
		{"empty response", &fakeClient{resp: "   \n"}, FallbackEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGenerator(tc.client, nil)
			if got := g.FinalRecommendation(context.Background(), completeProfile()); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFinalRecommendation_Success(t *testing.T) {
	client := &fakeClient{resp: "  均衡飲食，規律運動。\n"}
	metrics := telemetry.NewMetrics()
	g := NewGenerator(client, metrics)

	got := g.FinalRecommendation(context.Background(), completeProfile())
	if got != "均衡飲食，規律運動。" {
		t.Errorf("expected trimmed advice, got %q", got)
	}
	if client.calls != 1 {
		t.Errorf("expected exactly one service call, got %d", client.calls)
	}
	for _, want := range []string{"性別：男", "年齡：30", "身高：175.0 公分", "體重：70.0 公斤", "BMI：22.86", "BMR：1648.75 大卡", "TDEE：1978.5 大卡", "運動量：久坐", "我的目標是：維持體重"} {
		if !strings.Contains(client.user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, client.user)
		}
	}
	if !strings.Contains(client.system, "markdown") || !strings.Contains(client.system, "諮詢專業醫師或營養師") {
		t.Error("system prompt missing macro table or disclaimer instruction")
	}
	n, err := testutil.GatherAndCount(metrics.Registry, "healthcoach_advice_requests_total")
	if err != nil || n != 1 {
		t.Errorf("expected one advice series, got %d (err=%v)", n, err)
	}
}

func TestStepFeedback(t *testing.T) {
	p := models.Profile{Stage: models.StageAwaitingHeight, Gender: models.GenderFemale, Age: 25}

	client := &fakeClient{resp: " 年輕就是本錢！ "}
	text, ok := NewGenerator(client, nil).StepFeedback(context.Background(), p, models.FieldAge)
	if !ok || text != "年輕就是本錢！" {
		t.Errorf("expected trimmed feedback, got %q (ok=%v)", text, ok)
	}
	if want := "使用者剛輸入了年齡，目前資料：性別：女，年齡：25。"; !strings.HasPrefix(client.user, want) {
		t.Errorf("unexpected step prompt %q", client.user)
	}

	if _, ok := NewGenerator(nil, nil).StepFeedback(context.Background(), p, models.FieldAge); ok {
		t.Error("expected omission without credential")
	}
	if _, ok := NewGenerator(&fakeClient{err: errors.New("boom")}, nil).StepFeedback(context.Background(), p, models.FieldAge); ok {
		t.Error("expected omission on call failure")
	}
	if _, ok := NewGenerator(&fakeClient{resp: ""}, nil).StepFeedback(context.Background(), p, models.FieldAge); ok {
		t.Error("expected omission on empty response")
	}
}

func TestGenerateClassifiesErrors(t *testing.T) {
	cause := errors.New("rate limited")
	_, err := NewGenerator(&fakeClient{err: cause}, nil).Generate(context.Background(), "s", "u")
	if !errors.Is(err, ErrCallFailed) || !errors.Is(err, cause) {
		t.Errorf("expected ErrCallFailed wrapping cause, got %v", err)
	}
	if Outcome(err) != telemetry.OutcomeCallFailed {
		t.Errorf("unexpected outcome %s", Outcome(err))
	}

	_, err = NewGenerator(nil, nil).Generate(context.Background(), "s", "u")
	if !errors.Is(err, ErrNoCredential) || Outcome(err) != telemetry.OutcomeNoCredential {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}

	_, err = NewGenerator(&fakeClient{resp: "\t"}, nil).Generate(context.Background(), "s", "u")
	if !errors.Is(err, ErrEmptyResponse) || Outcome(err) != telemetry.OutcomeEmpty {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}
