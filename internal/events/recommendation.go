// Package events defines the recommendation event payload and its Kafka publisher.
package events

import "time"

// RecommendationGeneratedType is the event_type header value for RecommendationGenerated.
const RecommendationGeneratedType = "recommendation.generated"

// RecommendationGenerated is emitted after a recommendation has been stored.
type RecommendationGenerated struct {
	RecommendationID string    `json:"recommendation_id"`
	ActivityID       string    `json:"activity_id"`
	UserID           string    `json:"user_id"`
	ActivityType     string    `json:"activity_type"`
	Source           string    `json:"source"`
	Defaulted        bool      `json:"defaulted"`
	CreatedAt        time.Time `json:"created_at"`
}
