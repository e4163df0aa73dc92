package health

import "github.com/BTreeMap/HealthCoach/internal/models"

// Energy density per gram.
const (
	kcalPerGramCarb    = 4
	kcalPerGramProtein = 4
	kcalPerGramFat     = 9
)

// Macro is one row of a daily macro-nutrient breakdown.
type Macro struct {
	Name  string  // display name
	Kcal  float64 // energy from this source
	Grams float64
}

type ratio struct{ carb, protein, fat float64 }

var goalRatios = map[models.Goal]ratio{
	models.GoalGainMuscle: {carb: 0.45, protein: 0.30, fat: 0.25},
	models.GoalLoseFat:    {carb: 0.40, protein: 0.35, fat: 0.25},
	models.GoalMaintain:   {carb: 0.50, protein: 0.20, fat: 0.30},
}

// MacroSplit returns a reference carbohydrate/protein/fat breakdown of tdee for goal.
// Unknown goals use the maintenance ratio.
func MacroSplit(tdee float64, goal models.Goal) []Macro {
	r, ok := goalRatios[goal]
	if !ok {
		r = goalRatios[models.GoalMaintain]
	}
	carb := Round2(tdee * r.carb)
	protein := Round2(tdee * r.protein)
	fat := Round2(tdee * r.fat)
	return []Macro{
		{Name: "碳水化合物", Kcal: carb, Grams: Round2(carb / kcalPerGramCarb)},
		{Name: "蛋白質", Kcal: protein, Grams: Round2(protein / kcalPerGramProtein)},
		{Name: "脂肪", Kcal: fat, Grams: Round2(fat / kcalPerGramFat)},
	}
}
