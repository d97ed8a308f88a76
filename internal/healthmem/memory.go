// Package healthmem mines free-text user messages for durable health facts and keeps
// them in a bounded, per-user profile.
package healthmem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wellnessgo/internal/conversation"
	"wellnessgo/internal/models"
	"wellnessgo/internal/storage"
)

const (
	MaxCategoryEntries = 20
	MaxInsights        = 50
	ContextInsights    = 5

	minFactRunes = 2
	maxFactRunes = 100

	minWeight, maxWeight = 20, 300
	minAge, maxAge       = 5, 120

	dateLayout     = "2006-01-02"
	persistTimeout = 5 * time.Second
)

var ErrInvalidMetric = errors.New("metric value out of range")

// Memory owns the health profile of one user. All methods are safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	kv       storage.KV
	key      string
	patterns PatternTable
	logger   zerolog.Logger
	now      func() time.Time
	profile  *models.HealthProfile
}

// New loads the profile of userID from kv, falling back to defaults.
func New(ctx context.Context, kv storage.KV, userID string, patterns PatternTable, logger zerolog.Logger) *Memory {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	m := &Memory{
		kv:       kv,
		key:      storageKey(userID),
		patterns: patterns,
		logger:   logger.With().Str("component", "healthmem").Logger(),
		now:      time.Now,
		profile:  models.NewHealthProfile(),
	}
	m.load(ctx)
	return m
}

func storageKey(userID string) string {
	return "health_profile:" + userID
}

func (m *Memory) load(ctx context.Context) {
	if m.kv == nil {
		return
	}
	raw, err := m.kv.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Err(err).Str("key", m.key).Msg("load health profile failed, using defaults")
		}
		return
	}
	profile := models.NewHealthProfile()
	if err := json.Unmarshal(raw, profile); err != nil {
		m.logger.Warn().Err(err).Str("key", m.key).Msg("stored health profile unreadable, using defaults")
		return
	}
	normalize(profile)
	m.profile = profile
}

func normalize(p *models.HealthProfile) {
	if p.Conditions == nil {
		p.Conditions = []string{}
	}
	if p.Medications == nil {
		p.Medications = []string{}
	}
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	if p.Goals == nil {
		p.Goals = []string{}
	}
	if p.Insights == nil {
		p.Insights = []models.HealthInsight{}
	}
	if p.Preferences.Language == "" {
		p.Preferences.Language = "ar"
	}
	if p.Preferences.ResponseStyle == "" {
		p.Preferences.ResponseStyle = "friendly"
	}
}

// ExtractFromMessage applies the pattern table and numeric captures to text. It reports
// whether the profile changed.
func (m *Memory) ExtractFromMessage(ctx context.Context, text string) bool {
	if text == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, cat := range categoryOrder {
		for _, re := range m.patterns[cat] {
			for _, match := range re.FindAllStringSubmatch(text, -1) {
				if len(match) < 2 {
					continue
				}
				if fact, ok := m.addFactLocked(cat, clip(match[1])); ok {
					m.addInsightLocked(fmt.Sprintf("%s: %s", categoryLabels[cat], fact), insightCategory(cat), models.SourceChat, models.ConfidenceLow)
					changed = true
				}
			}
		}
	}

	numeric := normalizeDigits(text)
	if w, ok := captureNumber(numeric, weightPatterns); ok && w >= minWeight && w <= maxWeight {
		today := m.now().Format(dateLayout)
		prev := m.profile.Metrics.Weight
		if prev == nil || prev.Value != w || prev.Date != today {
			m.profile.Metrics.Weight = &models.Observation{Value: w, Date: today}
			m.addInsightLocked(fmt.Sprintf("%s: %s", labelWeight, formatNumber(w)), models.InsightProgress, models.SourceChat, models.ConfidenceLow)
			changed = true
		}
	}
	if a, ok := captureNumber(numeric, agePatterns); ok && a >= minAge && a <= maxAge && int(a) != m.profile.Preferences.Age {
		m.profile.Preferences.Age = int(a)
		changed = true
	}
	if g := detectGender(text); g != "" && g != m.profile.Preferences.Gender {
		m.profile.Preferences.Gender = g
		changed = true
	}
	if name := conversation.MatchName(text); name != "" && name != m.profile.Preferences.Name {
		m.profile.Preferences.Name = name
		changed = true
	}

	if changed {
		m.persistLocked(ctx)
	}
	return changed
}

func captureNumber(text string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		if match := re.FindStringSubmatch(text); len(match) > 1 {
			v, err := strconv.ParseFloat(match[1], 64)
			if err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func (m *Memory) addFactLocked(cat Category, fact string) (string, bool) {
	n := utf8.RuneCountInString(fact)
	if n < minFactRunes || n > maxFactRunes {
		return "", false
	}
	list := m.listLocked(cat)
	if list == nil {
		return "", false
	}
	for _, existing := range *list {
		if existing == fact {
			return "", false
		}
	}
	*list = append(*list, fact)
	if over := len(*list) - MaxCategoryEntries; over > 0 {
		*list = append([]string{}, (*list)[over:]...)
	}
	return fact, true
}

func (m *Memory) listLocked(cat Category) *[]string {
	switch cat {
	case CategoryConditions:
		return &m.profile.Conditions
	case CategoryMedications:
		return &m.profile.Medications
	case CategoryAllergies:
		return &m.profile.Allergies
	case CategoryGoals:
		return &m.profile.Goals
	}
	return nil
}

func insightCategory(cat Category) models.InsightCategory {
	switch cat {
	case CategoryGoals:
		return models.InsightGoal
	case CategoryAllergies:
		return models.InsightConcern
	default:
		return models.InsightCondition
	}
}

// AddInsight records a free-text observation, keeping the most recent MaxInsights.
func (m *Memory) AddInsight(ctx context.Context, text string, category models.InsightCategory, source models.InsightSource) models.HealthInsight {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := m.addInsightLocked(text, category, source, "")
	m.persistLocked(ctx)
	return in
}

func (m *Memory) addInsightLocked(text string, category models.InsightCategory, source models.InsightSource, confidence models.Confidence) models.HealthInsight {
	in := models.HealthInsight{
		ID:          uuid.NewString(),
		Text:        text,
		Category:    category,
		ExtractedAt: m.now(),
		Source:      source,
		Confidence:  confidence,
	}
	m.profile.Insights = append(m.profile.Insights, in)
	if over := len(m.profile.Insights) - MaxInsights; over > 0 {
		m.profile.Insights = append([]models.HealthInsight{}, m.profile.Insights[over:]...)
	}
	return in
}

// BloodPressureUpdate is a systolic/diastolic reading.
type BloodPressureUpdate struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// MetricsUpdate carries the metrics to replace; nil fields are left untouched.
type MetricsUpdate struct {
	Weight        *float64             `json:"weight,omitempty"`
	Height        *float64             `json:"height,omitempty"`
	BloodPressure *BloodPressureUpdate `json:"bloodPressure,omitempty"`
	SleepHours    *float64             `json:"sleepHours,omitempty"`
	WaterIntake   *float64             `json:"waterIntake,omitempty"`
}

func (u MetricsUpdate) validate() error {
	check := func(name string, v *float64, lo, hi float64) error {
		if v != nil && (*v < lo || *v > hi) {
			return fmt.Errorf("%s %v: %w", name, *v, ErrInvalidMetric)
		}
		return nil
	}
	if err := check("weight", u.Weight, minWeight, maxWeight); err != nil {
		return err
	}
	if err := check("height", u.Height, 50, 250); err != nil {
		return err
	}
	if err := check("sleepHours", u.SleepHours, 0, 24); err != nil {
		return err
	}
	if err := check("waterIntake", u.WaterIntake, 0, 20); err != nil {
		return err
	}
	if bp := u.BloodPressure; bp != nil {
		if bp.Systolic < 50 || bp.Systolic > 260 || bp.Diastolic < 30 || bp.Diastolic > 180 || bp.Diastolic >= bp.Systolic {
			return fmt.Errorf("bloodPressure %d/%d: %w", bp.Systolic, bp.Diastolic, ErrInvalidMetric)
		}
	}
	return nil
}

// UpdateMetrics replaces the given scalar metrics, stamping each with today's date. An
// update without fields changes nothing.
func (m *Memory) UpdateMetrics(ctx context.Context, u MetricsUpdate) error {
	if err := u.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.now().Format(dateLayout)
	obs := func(v *float64) *models.Observation {
		return &models.Observation{Value: *v, Date: today}
	}
	var changed []string
	metrics := &m.profile.Metrics
	if u.Weight != nil {
		metrics.Weight = obs(u.Weight)
		changed = append(changed, labelWeight+" "+formatNumber(*u.Weight))
	}
	if u.Height != nil {
		metrics.Height = obs(u.Height)
		changed = append(changed, labelHeight+" "+formatNumber(*u.Height))
	}
	if u.BloodPressure != nil {
		metrics.BloodPressure = &models.BloodPressure{Systolic: u.BloodPressure.Systolic, Diastolic: u.BloodPressure.Diastolic, Date: today}
		changed = append(changed, fmt.Sprintf("%s %d/%d", labelBP, u.BloodPressure.Systolic, u.BloodPressure.Diastolic))
	}
	if u.SleepHours != nil {
		metrics.SleepHours = obs(u.SleepHours)
		changed = append(changed, labelSleep+" "+formatNumber(*u.SleepHours))
	}
	if u.WaterIntake != nil {
		metrics.WaterIntake = obs(u.WaterIntake)
		changed = append(changed, labelWater+" "+formatNumber(*u.WaterIntake))
	}
	if len(changed) == 0 {
		return nil
	}
	m.addInsightLocked(labelMetricsUpdate+": "+strings.Join(changed, "، "), models.InsightProgress, models.SourceTracker, models.ConfidenceHigh)
	m.persistLocked(ctx)
	return nil
}

// Profile returns a copy of the current profile.
func (m *Memory) Profile() *models.HealthProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile.Clone()
}

// Clear resets the profile to defaults and removes the stored copy.
func (m *Memory) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = models.NewHealthProfile()
	if m.kv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := m.kv.Delete(ctx, m.key); err != nil {
		m.logger.Error().Err(err).Str("key", m.key).Msg("delete health profile failed")
	}
}

func (m *Memory) persistLocked(ctx context.Context) {
	m.profile.UpdatedAt = m.now()
	if m.kv == nil {
		return
	}
	data, err := json.Marshal(m.profile)
	if err != nil {
		m.logger.Error().Err(err).Msg("marshal health profile failed")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := m.kv.Set(ctx, m.key, data); err != nil {
		m.logger.Error().Err(err).Str("key", m.key).Msg("persist health profile failed")
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
