package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

const reviewColumns = `id, customer_name, rating, comment, order_id, created_at, visible`

func scanReview(row pgx.Row) (*model.Review, error) {
	var rv model.Review
	if err := row.Scan(&rv.ID, &rv.CustomerName, &rv.Rating, &rv.Comment, &rv.OrderID, &rv.CreatedAt, &rv.Visible); err != nil {
		return nil, err
	}
	return &rv, nil
}

// CreateReview сохраняет отзыв.
func (r *PostgresRepository) CreateReview(ctx context.Context, rv *model.Review) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rv.ID, rv.CustomerName, rv.Rating, rv.Comment, rv.OrderID, rv.CreatedAt, rv.Visible,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: review %s", ErrDuplicate, rv.ID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// ListReviews возвращает отзывы, новые первыми. При visibleOnly скрытые отзывы пропускаются.
func (r *PostgresRepository) ListReviews(ctx context.Context, visibleOnly bool) ([]model.Review, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		 WHERE visible OR NOT $1
		 ORDER BY created_at DESC`,
		visibleOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	var res []model.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		res = append(res, *rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// AverageRating считает средний рейтинг видимых отзывов и их количество.
// Без отзывов возвращает 0.
func (r *PostgresRepository) AverageRating(ctx context.Context) (float64, int, error) {
	var (
		avg   float64
		count int
	)
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*) FROM reviews WHERE visible`,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("average rating: %w", err)
	}
	return avg, count, nil
}

// SetReviewVisibility скрывает или показывает отзыв.
func (r *PostgresRepository) SetReviewVisibility(ctx context.Context, id string, visible bool) (*model.Review, error) {
	rv, err := scanReview(r.q(ctx).QueryRow(ctx,
		`UPDATE reviews SET visible = $2 WHERE id = $1 RETURNING `+reviewColumns,
		id, visible,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrReviewNotFound, id)
		}
		return nil, fmt.Errorf("set review visibility: %w", err)
	}
	return rv, nil
}
