package healthmem

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wellnessgo/internal/models"
)

var categoryLabels = map[Category]string{
	CategoryConditions:  "الحالات الصحية",
	CategoryMedications: "الأدوية",
	CategoryAllergies:   "الحساسية",
	CategoryGoals:       "الأهداف",
}

const (
	labelName     = "الاسم"
	labelAge      = "العمر"
	labelGender   = "الجنس"
	labelWeight   = "الوزن"
	labelHeight   = "الطول"
	labelBP       = "ضغط الدم"
	labelSleep    = "ساعات النوم"
	labelWater    = "شرب الماء"
	labelInsights = "ملاحظات حديثة"

	labelMetricsUpdate = "تحديث القياسات"
)

// HasContent reports whether p holds anything worth rendering.
func HasContent(p *models.HealthProfile) bool {
	if p == nil {
		return false
	}
	return p.Preferences.Name != "" || p.Preferences.Age > 0 || p.Preferences.Gender != "" ||
		len(p.Conditions) > 0 || len(p.Medications) > 0 || len(p.Allergies) > 0 || len(p.Goals) > 0 ||
		!p.Metrics.Empty() || len(p.Insights) > 0
}

// BuildHealthContext renders the non-empty parts of the profile as a labeled block.
// It returns "" for a profile without content.
func (m *Memory) BuildHealthContext() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RenderContext(m.profile)
}

// RenderContext is BuildHealthContext for a detached profile.
func RenderContext(p *models.HealthProfile) string {
	if !HasContent(p) {
		return ""
	}
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "- %s: %s\n", label, value)
	}

	b.WriteString("معلومات المستخدم الصحية:\n")
	if p.Preferences.Name != "" {
		line(labelName, p.Preferences.Name)
	}
	if p.Preferences.Age > 0 {
		line(labelAge, fmt.Sprintf("%d", p.Preferences.Age))
	}
	if p.Preferences.Gender != "" {
		line(labelGender, p.Preferences.Gender)
	}
	for _, cat := range categoryOrder {
		var list []string
		switch cat {
		case CategoryConditions:
			list = p.Conditions
		case CategoryMedications:
			list = p.Medications
		case CategoryAllergies:
			list = p.Allergies
		case CategoryGoals:
			list = p.Goals
		}
		if len(list) > 0 {
			line(categoryLabels[cat], strings.Join(list, "، "))
		}
	}
	if w := p.Metrics.Weight; w != nil {
		line(labelWeight, fmt.Sprintf("%s كجم (%s)", formatNumber(w.Value), w.Date))
	}
	if h := p.Metrics.Height; h != nil {
		line(labelHeight, fmt.Sprintf("%s سم (%s)", formatNumber(h.Value), h.Date))
	}
	if bp := p.Metrics.BloodPressure; bp != nil {
		line(labelBP, fmt.Sprintf("%d/%d (%s)", bp.Systolic, bp.Diastolic, bp.Date))
	}
	if s := p.Metrics.SleepHours; s != nil {
		line(labelSleep, fmt.Sprintf("%s (%s)", formatNumber(s.Value), s.Date))
	}
	if w := p.Metrics.WaterIntake; w != nil {
		line(labelWater, fmt.Sprintf("%s لتر (%s)", formatNumber(w.Value), w.Date))
	}
	if n := len(p.Insights); n > 0 {
		recent := p.Insights
		if n > ContextInsights {
			recent = recent[n-ContextInsights:]
		}
		b.WriteString(labelInsights + ":\n")
		for _, in := range recent {
			fmt.Fprintf(&b, "  • %s\n", in.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Export serializes the profile as a single flat JSON object.
func (m *Memory) Export() ([]byte, error) {
	p := m.Profile()
	out := map[string]any{
		"conditions":    p.Conditions,
		"medications":   p.Medications,
		"allergies":     p.Allergies,
		"goals":         p.Goals,
		"language":      p.Preferences.Language,
		"responseStyle": p.Preferences.ResponseStyle,
		"insights":      p.Insights,
		"exportedAt":    m.now().UTC().Format(time.RFC3339),
	}
	if !p.UpdatedAt.IsZero() {
		out["updatedAt"] = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if p.Preferences.Name != "" {
		out["name"] = p.Preferences.Name
	}
	if p.Preferences.Age > 0 {
		out["age"] = p.Preferences.Age
	}
	if p.Preferences.Gender != "" {
		out["gender"] = p.Preferences.Gender
	}
	if w := p.Metrics.Weight; w != nil {
		out["weight"], out["weightDate"] = w.Value, w.Date
	}
	if h := p.Metrics.Height; h != nil {
		out["height"], out["heightDate"] = h.Value, h.Date
	}
	if bp := p.Metrics.BloodPressure; bp != nil {
		out["bloodPressure"], out["bloodPressureDate"] = fmt.Sprintf("%d/%d", bp.Systolic, bp.Diastolic), bp.Date
	}
	if s := p.Metrics.SleepHours; s != nil {
		out["sleepHours"], out["sleepHoursDate"] = s.Value, s.Date
	}
	if w := p.Metrics.WaterIntake; w != nil {
		out["waterIntake"], out["waterIntakeDate"] = w.Value, w.Date
	}
	return json.MarshalIndent(out, "", "  ")
}
