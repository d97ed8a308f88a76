package ai

import "strings"

type suggestionBucket struct {
	Name     string
	Keywords []string
	Prompts  []string
}

const defaultBucket = "general"

// suggestionTable is checked in order; the first bucket with a keyword hit wins.
var suggestionTable = []suggestionBucket{
	{
		Name:     "nutrition",
		Keywords: []string{"أكل", "طعام", "غذاء", "تغذية", "وجبة", "رجيم", "فطور", "food", "diet", "meal", "nutrition", "breakfast"},
		Prompts:  []string{"ما هي الوجبات الصحية للفطور؟", "كيف أوازن بين البروتين والكربوهيدرات؟", "ما هي الوجبات الخفيفة الصحية؟"},
	},
	{
		Name:     "sleep",
		Keywords: []string{"نوم", "أرق", "سهر", "نعاس", "sleep", "insomnia", "tired"},
		Prompts:  []string{"كيف أحسن جودة نومي؟", "كم ساعة نوم أحتاج يومياً؟", "ما الذي يسبب الأرق؟"},
	},
	{
		Name:     "pain",
		Keywords: []string{"ألم", "وجع", "صداع", "pain", "ache", "headache"},
		Prompts:  []string{"متى يجب أن أراجع الطبيب بسبب الألم؟", "ما هي طرق تخفيف الصداع طبيعياً؟", "هل تساعد تمارين الإطالة في تخفيف الألم؟"},
	},
	{
		Name:     "stress",
		Keywords: []string{"توتر", "قلق", "ضغط نفسي", "اكتئاب", "stress", "anxiety", "anxious"},
		Prompts:  []string{"ما هي تمارين التنفس للاسترخاء؟", "كيف أتعامل مع القلق اليومي؟", "هل تساعد الرياضة في تقليل التوتر؟"},
	},
	{
		Name:     "weight",
		Keywords: []string{"وزن", "سمنة", "تخسيس", "رشاقة", "weight", "obesity", "slim"},
		Prompts:  []string{"كيف أخسر الوزن بطريقة صحية؟", "ما هو الوزن المثالي لطولي؟", "ما هي أفضل التمارين لحرق الدهون؟"},
	},
	{
		Name:     "fasting",
		Keywords: []string{"صيام", "صوم", "رمضان", "سحور", "إفطار", "fasting", "ramadan"},
		Prompts:  []string{"ما هو أفضل سحور للصائم؟", "كيف أتجنب الجفاف أثناء الصيام؟", "هل الصيام المتقطع مناسب لي؟"},
	},
}

var defaultPrompts = []string{"كيف أبدأ نمط حياة صحي؟", "ما هي نصائح شرب الماء يومياً؟", "كيف أزيد نشاطي البدني؟"}

// suggest returns the bucket name and its follow-up prompts for an exchange.
func suggest(input, output string) (string, []string) {
	text := strings.ToLower(input + " " + output)
	for _, b := range suggestionTable {
		for _, kw := range b.Keywords {
			if strings.Contains(text, kw) {
				return b.Name, append([]string(nil), b.Prompts...)
			}
		}
	}
	return defaultBucket, append([]string(nil), defaultPrompts...)
}
