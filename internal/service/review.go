package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/validation"
)

type reviewStore interface {
	ReviewRepository
	GetOrder(ctx context.Context, id string) (*model.Order, error)
}

// ReviewAggregator принимает отзывы и считает средний рейтинг.
type ReviewAggregator struct {
	repo reviewStore
	now  func() time.Time
}

// NewReviewAggregator создаёт сервис отзывов.
func NewReviewAggregator(repo reviewStore) *ReviewAggregator {
	return &ReviewAggregator{repo: repo, now: time.Now}
}

// ReviewInput описывает отзыв, отправленный покупателем.
type ReviewInput struct {
	Rating       int
	Comment      string
	CustomerName string
	OrderID      *string
}

// RatingSummary содержит средний рейтинг по видимым отзывам.
type RatingSummary struct {
	Average float64 `json:"averageRating"`
	Count   int     `json:"reviewCount"`
}

// Submit сохраняет отзыв. Если указан заказ, он должен существовать.
func (a *ReviewAggregator) Submit(ctx context.Context, in ReviewInput) (*model.Review, error) {
	if err := validation.ValidateReview(in.Rating, in.Comment, in.CustomerName); err != nil {
		return nil, err
	}

	if in.OrderID != nil {
		if _, err := a.repo.GetOrder(ctx, *in.OrderID); err != nil {
			return nil, err
		}
	}

	rv := &model.Review{
		ID:           uuid.NewString(),
		CustomerName: strings.TrimSpace(in.CustomerName),
		Rating:       in.Rating,
		Comment:      strings.TrimSpace(in.Comment),
		OrderID:      in.OrderID,
		CreatedAt:    a.now(),
		Visible:      true,
	}
	if err := a.repo.CreateReview(ctx, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// AverageRating возвращает средний рейтинг видимых отзывов или ноль, если отзывов нет.
func (a *ReviewAggregator) AverageRating(ctx context.Context) (RatingSummary, error) {
	avg, count, err := a.repo.AverageRating(ctx)
	if err != nil {
		return RatingSummary{}, err
	}
	return RatingSummary{Average: avg, Count: count}, nil
}

// List возвращает отзывы. Скрытые отзывы включаются только при visibleOnly == false.
func (a *ReviewAggregator) List(ctx context.Context, visibleOnly bool) ([]model.Review, error) {
	return a.repo.ListReviews(ctx, visibleOnly)
}

// SetVisibility скрывает или показывает отзыв.
func (a *ReviewAggregator) SetVisibility(ctx context.Context, id string, visible bool) (*model.Review, error) {
	return a.repo.SetReviewVisibility(ctx, id, visible)
}
