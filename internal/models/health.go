package models

import "time"

type InsightCategory string

const (
	InsightCondition InsightCategory = "condition"
	InsightSymptom   InsightCategory = "symptom"
	InsightGoal      InsightCategory = "goal"
	InsightProgress  InsightCategory = "progress"
	InsightConcern   InsightCategory = "concern"
)

type InsightSource string

const (
	SourceChat     InsightSource = "chat"
	SourceTracker  InsightSource = "tracker"
	SourceAnalysis InsightSource = "analysis"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// HealthInsight is a free-text observation about the user with its provenance.
type HealthInsight struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	Category    InsightCategory `json:"category"`
	ExtractedAt time.Time       `json:"extractedAt"`
	Source      InsightSource   `json:"source"`
	Confidence  Confidence      `json:"confidence,omitempty"`
}

// Observation is a scalar reading stamped with the day it was observed.
type Observation struct {
	Value float64 `json:"value"`
	Date  string  `json:"date"`
}

// BloodPressure is stored as systolic/diastolic with its observation day.
type BloodPressure struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	Date      string `json:"date"`
}

// HealthMetrics holds the latest snapshot of each scalar metric.
type HealthMetrics struct {
	Weight        *Observation   `json:"weight,omitempty"`
	Height        *Observation   `json:"height,omitempty"`
	BloodPressure *BloodPressure `json:"bloodPressure,omitempty"`
	SleepHours    *Observation   `json:"sleepHours,omitempty"`
	WaterIntake   *Observation   `json:"waterIntake,omitempty"`
}

func (m HealthMetrics) Empty() bool {
	return m.Weight == nil && m.Height == nil && m.BloodPressure == nil && m.SleepHours == nil && m.WaterIntake == nil
}

type Preferences struct {
	Language      string `json:"language"`
	ResponseStyle string `json:"responseStyle"`
	Name          string `json:"name,omitempty"`
	Age           int    `json:"age,omitempty"`
	Gender        string `json:"gender,omitempty"`
}

// HealthProfile is the cumulative record of facts mined for one user.
type HealthProfile struct {
	Conditions  []string        `json:"conditions"`
	Medications []string        `json:"medications"`
	Allergies   []string        `json:"allergies"`
	Goals       []string        `json:"goals"`
	Metrics     HealthMetrics   `json:"metrics"`
	Preferences Preferences     `json:"preferences"`
	Insights    []HealthInsight `json:"insights"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewHealthProfile returns a profile populated with defaults.
func NewHealthProfile() *HealthProfile {
	return &HealthProfile{
		Conditions:  []string{},
		Medications: []string{},
		Allergies:   []string{},
		Goals:       []string{},
		Insights:    []HealthInsight{},
		Preferences: Preferences{Language: "ar", ResponseStyle: "friendly"},
	}
}

// Clone returns a deep copy of the profile.
func (p *HealthProfile) Clone() *HealthProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Conditions = append([]string{}, p.Conditions...)
	out.Medications = append([]string{}, p.Medications...)
	out.Allergies = append([]string{}, p.Allergies...)
	out.Goals = append([]string{}, p.Goals...)
	out.Insights = append([]HealthInsight{}, p.Insights...)
	if p.Metrics.Weight != nil {
		w := *p.Metrics.Weight
		out.Metrics.Weight = &w
	}
	if p.Metrics.Height != nil {
		h := *p.Metrics.Height
		out.Metrics.Height = &h
	}
	if p.Metrics.BloodPressure != nil {
		bp := *p.Metrics.BloodPressure
		out.Metrics.BloodPressure = &bp
	}
	if p.Metrics.SleepHours != nil {
		s := *p.Metrics.SleepHours
		out.Metrics.SleepHours = &s
	}
	if p.Metrics.WaterIntake != nil {
		w := *p.Metrics.WaterIntake
		out.Metrics.WaterIntake = &w
	}
	return &out
}
