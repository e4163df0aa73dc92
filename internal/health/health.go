// Package health computes the body metrics used by the intake flow: BMI, BMR and TDEE.
//
// All results are rounded to two decimal places.
package health

import (
	"strconv"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

// ActivityFactors maps each activity token to its TDEE multiplier.
var ActivityFactors = map[models.ActivityLevel]float64{
	models.ActivitySedentary: 1.2,
	models.ActivityLight:     1.375,
	models.ActivityModerate:  1.55,
	models.ActivityHigh:      1.725,
	models.ActivityVeryHigh:  1.9,
}

// DefaultActivityFactor applies to unrecognised activity tokens.
const DefaultActivityFactor = 1.2

// Round2 rounds x to two decimal places. Rounding is applied to the exact binary
// value with ties to even, so 20.574999... stays 20.57 and 1618.125 becomes 1618.12.
func Round2(x float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	return v
}

// BMI returns weight / (height in metres)^2.
func BMI(heightCM, weightKG float64) float64 {
	m := heightCM / 100
	return Round2(weightKG / (m * m))
}

// BMR returns the Mifflin-St Jeor basal metabolic rate. Unknown genders yield 0.
func BMR(gender models.Gender, age int, heightCM, weightKG float64) float64 {
	base := 10*weightKG + 6.25*heightCM - 5*float64(age)
	switch gender {
	case models.GenderMale:
		return Round2(base + 5)
	case models.GenderFemale:
		return Round2(base - 161)
	default:
		return 0
	}
}

// Factor returns the multiplier for activity, falling back to DefaultActivityFactor.
func Factor(activity models.ActivityLevel) float64 {
	if f, ok := ActivityFactors[activity]; ok {
		return f
	}
	return DefaultActivityFactor
}

// TDEE scales bmr by the activity factor.
func TDEE(bmr float64, activity models.ActivityLevel) float64 {
	return Round2(bmr * Factor(activity))
}

// Compute fills BMI, BMR and TDEE on p from its collected fields.
func Compute(p *models.Profile) {
	p.BMI = BMI(p.HeightCM, p.WeightKG)
	p.BMR = BMR(p.Gender, p.Age, p.HeightCM, p.WeightKG)
	p.TDEE = TDEE(p.BMR, p.ActivityLevel)
}
