package models

// Stage is the explicit position of a session in the intake sequence.
type Stage string

const (
	StageAwaitingGender   Stage = "AWAITING_GENDER"
	StageAwaitingAge      Stage = "AWAITING_AGE"
	StageAwaitingHeight   Stage = "AWAITING_HEIGHT"
	StageAwaitingWeight   Stage = "AWAITING_WEIGHT"
	StageAwaitingActivity Stage = "AWAITING_ACTIVITY"
	StageAwaitingGoal     Stage = "AWAITING_GOAL"
	StageComplete         Stage = "COMPLETE"
)

var stageOrder = []Stage{
	StageAwaitingGender,
	StageAwaitingAge,
	StageAwaitingHeight,
	StageAwaitingWeight,
	StageAwaitingActivity,
	StageAwaitingGoal,
	StageComplete,
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s. COMPLETE is terminal and unknown stages map to COMPLETE.
func (s Stage) Next() Stage {
	i := s.index()
	if i < 0 || i >= len(stageOrder)-1 {
		return StageComplete
	}
	return stageOrder[i+1]
}

// Field returns the field collected at stage s; ok is false for COMPLETE.
func (s Stage) Field() (Field, bool) {
	i := s.index()
	if i < 0 || i >= len(AllFields) {
		return "", false
	}
	return AllFields[i], true
}

// Field names a single intake answer.
type Field string

const (
	FieldGender        Field = "gender"
	FieldAge           Field = "age"
	FieldHeight        Field = "height_cm"
	FieldWeight        Field = "weight_kg"
	FieldActivityLevel Field = "activity_level"
	FieldGoal          Field = "goal"
)

// AllFields lists the intake fields in their fixed collection order.
var AllFields = []Field{FieldGender, FieldAge, FieldHeight, FieldWeight, FieldActivityLevel, FieldGoal}

func (f Field) stage() Stage {
	for i, af := range AllFields {
		if af == f {
			return stageOrder[i]
		}
	}
	return StageComplete
}

// Label returns the user-facing name of the field.
func (f Field) Label() string {
	switch f {
	case FieldGender:
		return "性別"
	case FieldAge:
		return "年齡"
	case FieldHeight:
		return "身高"
	case FieldWeight:
		return "體重"
	case FieldActivityLevel:
		return "運動量"
	case FieldGoal:
		return "目標"
	}
	return string(f)
}
