package ai

import (
	"fmt"
	"sort"
	"strings"

	"wellnessgo/internal/models"
)

const systemPrompt = `أنت "رفيق"، مساعد صحي ودود متخصص في العافية ونمط الحياة الصحي.
مجالك: التغذية، النوم، النشاط البدني، إدارة التوتر، الصيام، والعادات اليومية.

قواعد السلامة:
- لا تشخّص أي مرض خطير ولا تؤكد وجود مرض.
- لا تصف أدوية ولا تحدد جرعات.
- في الحالات الطارئة (ألم في الصدر، صعوبة في التنفس، أفكار لإيذاء النفس، نزيف شديد) اطلب من المستخدم الاتصال بالطوارئ فوراً.
- انصح بمراجعة الطبيب عند استمرار الأعراض أو تفاقمها.

أسلوبك: ردود قصيرة وعملية وداعمة، بلغة المستخدم (العربية افتراضياً).`

// buildSystemPrompt appends the request health context and the stored profile to the fixed
// prompt. Empty parts are omitted.
func buildSystemPrompt(requestContext map[string]any, profileContext, userName string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)

	if len(requestContext) > 0 {
		keys := make([]string, 0, len(requestContext))
		for k := range requestContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var lines []string
		for _, k := range keys {
			v := requestContext[k]
			if v == nil || fmt.Sprint(v) == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s: %v", k, v))
		}
		if len(lines) > 0 {
			b.WriteString("\n\nالسياق الصحي الحالي:\n")
			b.WriteString(strings.Join(lines, "\n"))
		}
	}
	if profileContext != "" {
		b.WriteString("\n\n")
		b.WriteString(profileContext)
	}
	if userName != "" && !strings.Contains(profileContext, userName) {
		fmt.Fprintf(&b, "\n\nاسم المستخدم: %s", userName)
	}
	return b.String()
}

// seedHistory keeps the last max well-formed turns of client supplied history.
func seedHistory(history []models.Turn, max int) []models.Turn {
	out := make([]models.Turn, 0, len(history))
	for _, t := range history {
		content := strings.TrimSpace(t.Content)
		if content == "" || (t.Role != models.RoleUser && t.Role != models.RoleAssistant) {
			continue
		}
		out = append(out, models.Turn{Role: t.Role, Content: content})
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
