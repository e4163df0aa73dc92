package models

import (
	"strconv"
	"strings"
	"time"
)

// Gender is one of the two accepted gender tokens.
type Gender string

// ActivityLevel is one of the five accepted activity tokens.
type ActivityLevel string

// Goal is one of the three accepted goal tokens.
type Goal string

const (
	GenderMale   Gender = "男"
	GenderFemale Gender = "女"
)

const (
	ActivitySedentary ActivityLevel = "久坐"
	ActivityLight     ActivityLevel = "輕度活動"
	ActivityModerate  ActivityLevel = "中度活動"
	ActivityHigh      ActivityLevel = "高度活動"
	ActivityVeryHigh  ActivityLevel = "非常高度活動"
)

const (
	GoalGainMuscle Goal = "增肌"
	GoalLoseFat    Goal = "減脂"
	GoalMaintain   Goal = "維持體重"
)

// ResetKeyword restarts intake when no sequence is in progress.
const ResetKeyword = "開始"

// Genders lists the gender tokens in prompt order.
var Genders = []Gender{GenderMale, GenderFemale}

// ActivityLevels lists the activity tokens in prompt order.
var ActivityLevels = []ActivityLevel{ActivitySedentary, ActivityLight, ActivityModerate, ActivityHigh, ActivityVeryHigh}

// Goals lists the goal tokens in prompt order.
var Goals = []Goal{GoalGainMuscle, GoalLoseFat, GoalMaintain}

// IsValidGender reports whether g is an accepted gender token. Matching is exact.
func IsValidGender(g string) bool {
	for _, v := range Genders {
		if string(v) == g {
			return true
		}
	}
	return false
}

// IsValidActivityLevel reports whether a is an accepted activity token.
func IsValidActivityLevel(a string) bool {
	for _, v := range ActivityLevels {
		if string(v) == a {
			return true
		}
	}
	return false
}

// IsValidGoal reports whether g is an accepted goal token.
func IsValidGoal(g string) bool {
	for _, v := range Goals {
		if string(v) == g {
			return true
		}
	}
	return false
}

// Profile is the accumulating per-user record of intake answers and derived metrics.
// Stage is the first field not yet collected.
type Profile struct {
	Stage         Stage         `json:"stage"`
	Gender        Gender        `json:"gender,omitempty"`
	Age           int           `json:"age,omitempty"`
	HeightCM      float64       `json:"height_cm,omitempty"`
	WeightKG      float64       `json:"weight_kg,omitempty"`
	ActivityLevel ActivityLevel `json:"activity_level,omitempty"`
	Goal          Goal          `json:"goal,omitempty"`
	BMI           float64       `json:"bmi,omitempty"`
	BMR           float64       `json:"bmr,omitempty"`
	TDEE          float64       `json:"tdee,omitempty"`
}

// NewProfile returns an empty profile waiting for the first field.
func NewProfile() *Profile {
	return &Profile{Stage: StageAwaitingGender}
}

// Has reports whether field f has already been collected.
func (p *Profile) Has(f Field) bool {
	return p.Stage.index() > f.stage().index()
}

// HasMetrics reports whether BMI, BMR and TDEE have been computed.
func (p *Profile) HasMetrics() bool {
	return p.Has(FieldActivityLevel)
}

// IsComplete reports whether the goal has been accepted.
func (p *Profile) IsComplete() bool {
	return p.Stage == StageComplete
}

// FieldValue is a collected field paired with its display value.
type FieldValue struct {
	Field Field
	Value string
}

// Fields returns the collected intake fields in collection order.
func (p *Profile) Fields() []FieldValue {
	var out []FieldValue
	for _, f := range AllFields {
		if !p.Has(f) {
			break
		}
		out = append(out, FieldValue{Field: f, Value: p.display(f)})
	}
	return out
}

func (p *Profile) display(f Field) string {
	switch f {
	case FieldGender:
		return string(p.Gender)
	case FieldAge:
		return strconv.Itoa(p.Age)
	case FieldHeight:
		return FormatNumber(p.HeightCM) + " 公分"
	case FieldWeight:
		return FormatNumber(p.WeightKG) + " 公斤"
	case FieldActivityLevel:
		return string(p.ActivityLevel)
	case FieldGoal:
		return string(p.Goal)
	}
	return ""
}

// FormatNumber renders v in its shortest form but always with a fractional part,
// e.g. 22.86, 1978.5 and 1928.0.
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Assessment is the archived outcome of a completed intake.
type Assessment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Profile   Profile   `json:"profile"`
	Advice    string    `json:"advice"`
	CreatedAt time.Time `json:"created_at"`
}
