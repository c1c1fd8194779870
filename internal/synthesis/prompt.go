package synthesis

import (
	"encoding/json"
	"fmt"

	"example.com/recommendation/internal/domain"
)

const promptTemplate = `Analyze this fitness activity and provide detailed recommendations in the following EXACT JSON format:
{
    "analysis":{
        "overall":"Overall analysis here",
        "pace":"Pace analysis here",
        "heartRate":"Heart rate analysis here",
        "caloriesBurned":"Calories analysis here"
    },
    "improvements":[
        {
           "area":"Area to improve",
           "recommendation":"Detailed recommendation"
        }
    ],
    "suggestions":[
        {
           "workout":"Workout name",
           "description":"Detailed Workout description"
        }
    ],
    "safety":[
       "Safety point 1",
       "Safety point 2"
    ]
}

Analyze this activity:
Type: %s
Duration: %d minutes
Calories Burned: %d
Additional Metrics: %s

Provide detailed analysis focusing on performance, improvements, next workout suggestions, and safety tips.
Respond with ONLY the JSON object above; do not include code fences or any extra text.
`

// BuildPrompt renders the completion prompt for an activity.
func BuildPrompt(activity domain.ActivityRecord) string {
	return fmt.Sprintf(promptTemplate,
		activity.Type,
		activity.Duration,
		activity.CaloriesBurned,
		renderMetrics(activity.AdditionalMetrics),
	)
}

// renderMetrics encodes metrics as compact JSON with sorted keys.
func renderMetrics(metrics map[string]any) string {
	if len(metrics) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Sprintf("%v", metrics)
	}
	return string(encoded)
}
