package flow

import (
	"fmt"
	"strconv"

	"golang.org/x/text/width"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

// ValidationError describes an answer that could not be accepted for the current field.
// Prompt is the message shown to the user; the session does not advance.
type ValidationError struct {
	Field  models.Field
	Reason string
	Prompt string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

const (
	reasonNotNumber  = "not a number"
	reasonOutOfRange = "out of range"
	reasonUnknown    = "not an accepted token"
)

// Accepted ranges are open intervals.
const (
	minAge    = 0
	maxAge    = 120
	minHeight = 50.0
	maxHeight = 250.0
	minWeight = 20.0
	maxWeight = 300.0
)

func invalid(field models.Field, reason, prompt string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Prompt: prompt}
}

func parseGender(text string) (models.Gender, error) {
	if !models.IsValidGender(text) {
		return "", invalid(models.FieldGender, reasonUnknown, msgInvalidGender)
	}
	return models.Gender(text), nil
}

// narrowDigits folds fullwidth digits and signs (３０, １７５．５) from CJK input methods
// to their ASCII forms before numeric parsing.
func narrowDigits(text string) string {
	return width.Narrow.String(text)
}

func parseAge(text string) (int, error) {
	age, err := strconv.Atoi(narrowDigits(text))
	if err != nil {
		return 0, invalid(models.FieldAge, reasonNotNumber, msgAgeNotNumber)
	}
	if age <= minAge || age >= maxAge {
		return 0, invalid(models.FieldAge, reasonOutOfRange, msgAgeOutOfRange)
	}
	return age, nil
}

// parseMeasure parses a float answer that must lie strictly between lo and hi.
// NaN fails the range check.
func parseMeasure(field models.Field, text string, lo, hi float64, notNumber, outOfRange string) (float64, error) {
	v, err := strconv.ParseFloat(narrowDigits(text), 64)
	if err != nil {
		return 0, invalid(field, reasonNotNumber, notNumber)
	}
	if !(v > lo && v < hi) {
		return 0, invalid(field, reasonOutOfRange, outOfRange)
	}
	return v, nil
}

func parseHeight(text string) (float64, error) {
	return parseMeasure(models.FieldHeight, text, minHeight, maxHeight, msgHeightNotNumber, msgHeightOutOfRange)
}

func parseWeight(text string) (float64, error) {
	return parseMeasure(models.FieldWeight, text, minWeight, maxWeight, msgWeightNotNumber, msgWeightOutOfRange)
}

func parseActivity(text string) (models.ActivityLevel, error) {
	if !models.IsValidActivityLevel(text) {
		return "", invalid(models.FieldActivityLevel, reasonUnknown, msgInvalidActivity)
	}
	return models.ActivityLevel(text), nil
}

func parseGoal(text string) (models.Goal, error) {
	if !models.IsValidGoal(text) {
		return "", invalid(models.FieldGoal, reasonUnknown, msgInvalidGoal)
	}
	return models.Goal(text), nil
}
