package flow

import (
	"fmt"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

const (
	msgWelcome        = "哈囉！我是你的健康顧問，讓我們開始吧！請問您的性別是？ (男/女)"
	msgRestartWelcome = "哈囉！我是你的健康顧問，讓我們重新開始吧！請問您的性別是？ (男/女)"
	msgHelp           = "您好！請問有什麼我可以協助您的嗎？如果您想重新計算，請輸入「開始」。"

	msgAskAge      = "好的，請問您的年齡是？"
	msgAskHeight   = "請問您的身高是幾公分？ (例如：170)"
	msgAskWeight   = "請問您的體重是幾公斤？ (例如：65.5)"
	msgAskActivity = "太棒了！最後，請問您的運動量是？"
	msgAskGoal     = "請問您的目標是？"

	msgInvalidGender    = "請輸入「男」或「女」。"
	msgAgeNotNumber     = "請輸入數字作為年齡。"
	msgAgeOutOfRange    = "請輸入一個合理的年齡。"
	msgHeightNotNumber  = "請輸入數字作為身高。"
	msgHeightOutOfRange = "請輸入一個合理的身高 (公分)。"
	msgWeightNotNumber  = "請輸入數字作為體重。"
	msgWeightOutOfRange = "請輸入一個合理的體重 (公斤)。"
	msgInvalidActivity  = "請從提供的選項中選擇您的運動量。"
	msgInvalidGoal      = "請選擇「增肌」、「減脂」或「維持體重」。"
)

// activityLabels carries the descriptive text shown on each activity button.
var activityLabels = map[models.ActivityLevel]string{
	models.ActivitySedentary: "久坐",
	models.ActivityLight:     "輕度活動 (1-3天/週運動)",
	models.ActivityModerate:  "中度活動 (3-5天/週運動)",
	models.ActivityHigh:      "高度活動 (6-7天/週運動)",
	models.ActivityVeryHigh:  "非常高度活動 (運動員/勞力工作者)",
}

func genderChoices() []models.QuickReply {
	out := make([]models.QuickReply, 0, len(models.Genders))
	for _, g := range models.Genders {
		out = append(out, models.QuickReply{Label: string(g), Payload: string(g)})
	}
	return out
}

func activityChoices() []models.QuickReply {
	out := make([]models.QuickReply, 0, len(models.ActivityLevels))
	for _, a := range models.ActivityLevels {
		out = append(out, models.QuickReply{Label: activityLabels[a], Payload: string(a)})
	}
	return out
}

func goalChoices() []models.QuickReply {
	out := make([]models.QuickReply, 0, len(models.Goals))
	for _, g := range models.Goals {
		out = append(out, models.QuickReply{Label: string(g), Payload: string(g)})
	}
	return out
}

// choicesFor returns the quick replies offered again with a re-prompt for field.
// Numeric fields have none.
func choicesFor(field models.Field) []models.QuickReply {
	switch field {
	case models.FieldGender:
		return genderChoices()
	case models.FieldActivityLevel:
		return activityChoices()
	case models.FieldGoal:
		return goalChoices()
	}
	return nil
}

func welcomeMessage() models.OutboundMessage {
	return models.ChoiceMessage(msgWelcome, genderChoices()...)
}

func restartMessage() models.OutboundMessage {
	return models.ChoiceMessage(msgRestartWelcome, genderChoices()...)
}

// resultsMessage reports the computed metrics and asks for the goal.
func resultsMessage(p models.Profile) models.OutboundMessage {
	text := fmt.Sprintf("您的基本資料已收集完畢！\n🌟 計算結果：\n  - BMI: %s\n  - BMR: %s 大卡\n  - TDEE: %s 大卡\n\n%s",
		models.FormatNumber(p.BMI), models.FormatNumber(p.BMR), models.FormatNumber(p.TDEE), msgAskGoal)
	return models.ChoiceMessage(text, goalChoices()...)
}
