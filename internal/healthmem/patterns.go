package healthmem

import (
	"regexp"
	"strings"
)

// Category names one accumulating list of the profile.
type Category string

const (
	CategoryConditions  Category = "conditions"
	CategoryMedications Category = "medications"
	CategoryAllergies   Category = "allergies"
	CategoryGoals       Category = "goals"
)

// categoryOrder fixes the order extraction walks a PatternTable.
var categoryOrder = []Category{CategoryConditions, CategoryMedications, CategoryAllergies, CategoryGoals}

// PatternTable maps a category to the expressions whose first group captures a fact.
type PatternTable map[Category][]*regexp.Regexp

// Merge returns a table holding the patterns of t followed by those of other.
func (t PatternTable) Merge(other PatternTable) PatternTable {
	out := make(PatternTable, len(t)+len(other))
	for c, list := range t {
		out[c] = append(out[c], list...)
	}
	for c, list := range other {
		out[c] = append(out[c], list...)
	}
	return out
}

const (
	arabicSpan  = `([^.,،!؟?؛;:\n]+)`
	englishSpan = `([^.,!?;:\n]+)`
)

func ArabicPatterns() PatternTable {
	return PatternTable{
		CategoryConditions: {
			regexp.MustCompile(`(?:أعاني من|اعاني من|أشكو من|اشكو من|مصاب ب|مصابة ب|مريض ب|مريضة ب)\s*` + arabicSpan),
			regexp.MustCompile(`(?:عندي|لدي|لديّ)\s+(?:مرض\s+)?` + arabicSpan),
			regexp.MustCompile(`(?:تم تشخيصي ب|شخصني الطبيب ب)\s*` + arabicSpan),
		},
		CategoryMedications: {
			regexp.MustCompile(`(?:أتناول|اتناول|آخذ|باخد|أستخدم|استخدم)\s+(?:دواء|دواءً|حبوب|علاج)?\s*` + arabicSpan),
			regexp.MustCompile(`(?:دوائي|علاجي)\s+(?:هو\s+)?` + arabicSpan),
		},
		CategoryAllergies: {
			regexp.MustCompile(`حساسية\s+(?:من|ضد|تجاه|على)\s*` + arabicSpan),
		},
		CategoryGoals: {
			regexp.MustCompile(`(?:أريد أن|اريد ان|أريد|اريد|أرغب في|ارغب في|أود أن|اود ان)\s+` + arabicSpan),
			regexp.MustCompile(`(?:هدفي|هدفي هو)\s+(?:أن\s+|ان\s+)?` + arabicSpan),
		},
	}
}

func EnglishPatterns() PatternTable {
	return PatternTable{
		CategoryConditions: {
			regexp.MustCompile(`(?i)\b(?:i suffer from|i'm suffering from|i am suffering from|i have been diagnosed with|diagnosed with|i have|i've got)\s+` + englishSpan),
		},
		CategoryMedications: {
			regexp.MustCompile(`(?i)\bi(?: am|'m)? (?:taking|take|on)\s+` + englishSpan),
			regexp.MustCompile(`(?i)\bmy (?:medication|medicine|meds) (?:is|are)\s+` + englishSpan),
		},
		CategoryAllergies: {
			regexp.MustCompile(`(?i)\ballergic to\s+` + englishSpan),
			regexp.MustCompile(`(?i)\ballergy to\s+` + englishSpan),
		},
		CategoryGoals: {
			regexp.MustCompile(`(?i)\bi (?:want|would like|need|hope|plan) to\s+` + englishSpan),
			regexp.MustCompile(`(?i)\bmy goal is(?: to)?\s+` + englishSpan),
		},
	}
}

// DefaultPatterns covers Arabic and English.
func DefaultPatterns() PatternTable {
	return ArabicPatterns().Merge(EnglishPatterns())
}

var (
	weightPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:وزني|أزن|ازن)\s*(?:هو\s*|حوالي\s*)?(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)\b(?:i weigh|my weight is|weight is)\s*(?:about\s*|around\s*)?(\d+(?:\.\d+)?)`),
	}
	agePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:عمري|سني)\s*(?:هو\s*)?(\d{1,3})`),
		regexp.MustCompile(`(?i)\b(?:i am|i'm)\s+(\d{1,3})\s*(?:years? old|yo)?\b`),
		regexp.MustCompile(`(?i)\bmy age is\s+(\d{1,3})`),
	}

	femaleHints = []string{"أنا حامل", "انا حامل", "أنا امرأة", "انا امرأة", "أنا بنت", "انا بنت", "الدورة الشهرية", "i'm pregnant", "i am pregnant", "i am a woman", "i'm a woman", "as a woman"}
	maleHints   = []string{"أنا رجل", "انا رجل", "أنا شاب", "انا شاب", "i am a man", "i'm a man", "as a man"}

	// Conjunctions that end a captured fact.
	clauseBreaks = []string{" و", " and ", " but ", " لكن ", " بس ", " ثم "}
)

var digitReplacer = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٫", ".",
)

// normalizeDigits rewrites Eastern Arabic and Persian digits as ASCII.
func normalizeDigits(s string) string {
	return digitReplacer.Replace(s)
}

// clip cuts a captured span at the first clause break and trims it.
func clip(s string) string {
	s = strings.TrimSpace(s) + " "
	cut := len(s)
	for _, br := range clauseBreaks {
		if i := strings.Index(s, br); i > 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(s[:cut])
}

func detectGender(text string) string {
	lower := strings.ToLower(text)
	for _, h := range femaleHints {
		if strings.Contains(lower, h) {
			return "female"
		}
	}
	for _, h := range maleHints {
		if strings.Contains(lower, h) {
			return "male"
		}
	}
	return ""
}
