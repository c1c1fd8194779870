package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/synthesis"
)

const selectColumns = `recommendation_id, activity_id, user_id, activity_type, recommendation, improvements, suggestions, safety, created_at`

// RecommendationRepository provides Postgres-backed persistence for recommendations.
type RecommendationRepository struct {
	pool *pgxpool.Pool
}

// NewRecommendationRepository constructs a RecommendationRepository.
func NewRecommendationRepository(pool *pgxpool.Pool) *RecommendationRepository {
	return &RecommendationRepository{pool: pool}
}

// Save stores rec, replacing any earlier recommendation for the same activity.
// A stored model recommendation is never replaced by the default one.
func (r *RecommendationRepository) Save(ctx context.Context, rec domain.Recommendation) error {
	rec.Normalize()

	const stmt = `INSERT INTO recommendations (recommendation_id, activity_id, user_id, activity_type, recommendation, improvements, suggestions, safety, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
        ON CONFLICT (activity_id) DO UPDATE SET
            recommendation_id = EXCLUDED.recommendation_id,
            user_id = EXCLUDED.user_id,
            activity_type = EXCLUDED.activity_type,
            recommendation = EXCLUDED.recommendation,
            improvements = EXCLUDED.improvements,
            suggestions = EXCLUDED.suggestions,
            safety = EXCLUDED.safety,
            created_at = EXCLUDED.created_at,
            updated_at = NOW()
        WHERE EXCLUDED.recommendation <> $10 OR recommendations.recommendation = $10`

	tag, err := r.pool.Exec(ctx, stmt,
		rec.ID,
		rec.ActivityID,
		rec.UserID,
		rec.ActivityType,
		rec.Recommendation,
		rec.Improvements,
		rec.Suggestions,
		rec.Safety,
		rec.CreatedAt,
		synthesis.DefaultRecommendationText,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	observability.RecordRecommendationSaved(rec.CreatedAt)
	return nil
}

// FindByUser returns a user's recommendations, newest first.
func (r *RecommendationRepository) FindByUser(ctx context.Context, userID string) ([]domain.Recommendation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM recommendations WHERE user_id=$1 ORDER BY created_at DESC, recommendation_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []domain.Recommendation{}
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// FindByActivity returns the recommendation for an activity, or nil when none exists.
func (r *RecommendationRepository) FindByActivity(ctx context.Context, activityID string) (*domain.Recommendation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM recommendations WHERE activity_id=$1`,
		activityID,
	)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func scanRecommendation(row pgx.Row) (domain.Recommendation, error) {
	var rec domain.Recommendation
	if err := row.Scan(
		&rec.ID,
		&rec.ActivityID,
		&rec.UserID,
		&rec.ActivityType,
		&rec.Recommendation,
		&rec.Improvements,
		&rec.Suggestions,
		&rec.Safety,
		&rec.CreatedAt,
	); err != nil {
		return domain.Recommendation{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Normalize()
	return rec, nil
}
