package conversation

import "strings"

type topicRule struct {
	Topic    string
	Label    string
	Keywords []string
}

// topicTable is matched in order against lowercased user messages.
var topicTable = []topicRule{
	{Topic: "sleep", Label: "النوم", Keywords: []string{"نوم", "أرق", "ارق", "استيقاظ", "نعاس", "sleep", "insomnia", "waking", "drowsy"}},
	{Topic: "nutrition", Label: "التغذية", Keywords: []string{"أكل", "طعام", "غذاء", "تغذية", "رجيم", "diet", "food", "meal", "nutrition"}},
	{Topic: "exercise", Label: "الرياضة", Keywords: []string{"رياضة", "تمارين", "تمرين", "مشي", "exercise", "workout", "gym", "running"}},
	{Topic: "stress", Label: "التوتر", Keywords: []string{"توتر", "قلق", "ضغط نفسي", "اكتئاب", "stress", "anxiety", "anxious", "depressed"}},
	{Topic: "pain", Label: "الألم", Keywords: []string{"ألم", "وجع", "صداع", "pain", "ache", "headache"}},
	{Topic: "weight", Label: "الوزن", Keywords: []string{"وزن", "سمنة", "نحافة", "تخسيس", "weight", "obesity", "slimming"}},
	{Topic: "fasting", Label: "الصيام", Keywords: []string{"صيام", "صوم", "صائم", "fasting"}},
	{Topic: "medication", Label: "الأدوية", Keywords: []string{"دواء", "أدوية", "ادوية", "حبوب", "medication", "medicine", "pills"}},
	{Topic: "heart", Label: "القلب", Keywords: []string{"قلب", "ضغط الدم", "heart", "blood pressure"}},
	{Topic: "diabetes", Label: "السكري", Keywords: []string{"سكري", "السكر", "diabetes", "insulin"}},
}

// DetectTopics returns the topics whose keywords occur in text, in table order.
func DetectTopics(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, rule := range topicTable {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				found = append(found, rule.Topic)
				break
			}
		}
	}
	return found
}

func topicLabel(topic string) string {
	for _, rule := range topicTable {
		if rule.Topic == topic {
			return rule.Label
		}
	}
	return topic
}

// mergeTopics moves detected topics to the front and keeps at most max entries.
func mergeTopics(existing, detected []string, max int) []string {
	if len(detected) == 0 {
		return existing
	}
	out := make([]string, 0, len(existing)+len(detected))
	seen := make(map[string]struct{}, len(existing)+len(detected))
	for _, t := range detected {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range existing {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
