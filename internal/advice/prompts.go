package advice

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/HealthCoach/internal/health"
	"github.com/BTreeMap/HealthCoach/internal/models"
)

const stepSystemPrompt = "你是一位親切且專業的健康顧問，請針對使用者剛輸入的資料，" +
	"給予一句簡短的鼓勵、肯定或健康提醒，語氣正向且溫暖，並用繁體中文回答。" +
	"請勿重複詢問問題，只需針對該步驟給予回饋。"

const finalSystemPrompt = "你現在是一名專業的健康顧問，你的任務是根據使用者提供的個人健康數據和目標，" +
	"提供個人化、具體且實用的飲食、運動和注意事項建議。請保持語氣親切、專業且條列式呈現，所有回覆都需使用繁體中文。" +
	"確保建議是基於科學原理，但以易於理解的方式呈現。" +
	"目標為增肌時，請強調足夠蛋白質攝取和力量訓練的重要性，並提供相關建議。" +
	"目標為減脂時，請強調熱量赤字和有氧運動的策略。" +
	"目標為維持體重時，請強調均衡飲食和規律運動的必要性。" +
	"**請在飲食建議中，為使用者生成一個根據TDEE計算的每日熱量與三大營養素（碳水化合物、蛋白質、脂肪）的建議攝取量表格，" +
	"表格請使用markdown格式，包含「營養素」、「攝取量（大卡）」和「攝取量（公克）」三列。**" +
	"請避免提供醫療診斷或處方，並在建議中明確指出：『這些建議僅供參考，如有特殊健康狀況或疑慮，請務必諮詢專業醫師或營養師。』"

// stepUserPrompt lists everything collected so far and names the field just answered.
func stepUserPrompt(p models.Profile, field models.Field) string {
	var info []string
	for _, fv := range p.Fields() {
		if fv.Field == models.FieldGoal {
			continue
		}
		info = append(info, fmt.Sprintf("%s：%s", fv.Field.Label(), fv.Value))
	}
	return fmt.Sprintf("使用者剛輸入了%s，目前資料：%s。請給一句鼓勵或健康提醒。", field.Label(), strings.Join(info, "，"))
}

// finalUserPrompt dumps every profile field and metric plus a reference macro split.
func finalUserPrompt(p models.Profile) string {
	tdee := models.FormatNumber(p.TDEE)

	var b strings.Builder
	b.WriteString("請根據以下資訊，為我生成健康建議：\n")
	fmt.Fprintf(&b, "性別：%s\n", p.Gender)
	fmt.Fprintf(&b, "年齡：%d\n", p.Age)
	fmt.Fprintf(&b, "身高：%s 公分\n", models.FormatNumber(p.HeightCM))
	fmt.Fprintf(&b, "體重：%s 公斤\n", models.FormatNumber(p.WeightKG))
	fmt.Fprintf(&b, "BMI：%s\n", models.FormatNumber(p.BMI))
	fmt.Fprintf(&b, "BMR：%s 大卡\n", models.FormatNumber(p.BMR))
	fmt.Fprintf(&b, "TDEE：%s 大卡\n", tdee)
	fmt.Fprintf(&b, "運動量：%s\n", p.ActivityLevel)
	fmt.Fprintf(&b, "我的目標是：%s\n", p.Goal)

	b.WriteString("參考分配：")
	for i, m := range health.MacroSplit(p.TDEE, p.Goal) {
		if i > 0 {
			b.WriteString("，")
		}
		fmt.Fprintf(&b, "%s %s 大卡 / %s 公克", m.Name, models.FormatNumber(m.Kcal), models.FormatNumber(m.Grams))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "請根據我的TDEE %s 大卡，以及目標 %s，建議我每日的碳水化合物、蛋白質和脂肪攝取量（大卡與公克）。", tdee, p.Goal)
	return b.String()
}
