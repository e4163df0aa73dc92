// Package testutil provides common test helpers for HealthCoach HTTP and storage tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/store"
)

// AssertHTTPStatus fails the test if actual differs from expected.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the recorder body and checks its status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	status, ok := response["status"].(string)
	switch {
	case !ok:
		t.Errorf("response missing or invalid 'status' field")
	case status != expectedStatus:
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// CreateHTTPRequest builds a request with body encoded as JSON. A nil body sends nothing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// CompletedProfile returns a profile that has passed every intake step.
func CompletedProfile() models.Profile {
	return models.Profile{
		Stage:         models.StageComplete,
		Gender:        models.GenderMale,
		Age:           30,
		HeightCM:      175,
		WeightKG:      70,
		ActivityLevel: models.ActivityModerate,
		BMI:           22.86,
		BMR:           1648.75,
		TDEE:          2555.56,
		Goal:          models.GoalLoseFat,
	}
}

// SeedAssessments archives n assessments for userID, one minute apart starting at base.
func SeedAssessments(t testing.TB, st store.Store, userID string, n int, base time.Time) []models.Assessment {
	t.Helper()
	out := make([]models.Assessment, 0, n)
	for i := 0; i < n; i++ {
		a := models.Assessment{
			ID:        fmt.Sprintf("%s-%d", userID, i),
			UserID:    userID,
			Profile:   CompletedProfile(),
			Advice:    fmt.Sprintf("advice %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute).UTC(),
		}
		if err := st.SaveAssessment(a); err != nil {
			t.Fatalf("failed to seed assessment: %v", err)
		}
		out = append(out, a)
	}
	return out
}

// AssertResponseCount checks how many inbound responses st has logged.
func AssertResponseCount(t testing.TB, st store.Store, expected int, context string) {
	t.Helper()
	responses, err := st.GetResponses()
	if err != nil {
		t.Fatalf("%s: failed to get responses: %v", context, err)
		return
	}
	if len(responses) != expected {
		t.Errorf("%s: expected %d responses, got %d", context, expected, len(responses))
	}
}

// MustMarshalJSON marshals v and fails the test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into target and fails the test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
