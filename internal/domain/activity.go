package domain

import "strings"

// ActivityType enumerates the workout kinds recorded by the activity service.
type ActivityType string

const (
	ActivityRunning        ActivityType = "RUNNING"
	ActivityWalking        ActivityType = "WALKING"
	ActivityCycling        ActivityType = "CYCLING"
	ActivitySwimming       ActivityType = "SWIMMING"
	ActivityWeightTraining ActivityType = "WEIGHT_TRAINING"
	ActivityYoga           ActivityType = "YOGA"
	ActivityHIIT           ActivityType = "HIIT"
	ActivityCardio         ActivityType = "CARDIO"
	ActivityStretching     ActivityType = "STRETCHING"
	ActivityOther          ActivityType = "OTHER"
)

var knownActivityTypes = map[ActivityType]struct{}{
	ActivityRunning: {}, ActivityWalking: {}, ActivityCycling: {}, ActivitySwimming: {},
	ActivityWeightTraining: {}, ActivityYoga: {}, ActivityHIIT: {}, ActivityCardio: {},
	ActivityStretching: {}, ActivityOther: {},
}

// Known reports whether t is one of the enumerated activity types.
func (t ActivityType) Known() bool {
	_, ok := knownActivityTypes[ActivityType(strings.ToUpper(string(t)))]
	return ok
}

func (t ActivityType) String() string { return string(t) }

// ActivityRecord is the activity event delivered to the recommendation pipeline.
// It is read-only for the duration of a pipeline run.
type ActivityRecord struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	Type              ActivityType   `json:"type"`
	Duration          int            `json:"duration"`
	CaloriesBurned    int            `json:"caloriesBurned"`
	StartTime         string         `json:"startTime,omitempty"` // ISO-8601, zone optional
	AdditionalMetrics map[string]any `json:"additionalMetrics,omitempty"`
}
