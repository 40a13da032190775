package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

type dashboardStore interface {
	OrderStats(ctx context.Context) (model.OrderStats, error)
	ListLowStock(ctx context.Context) ([]model.StockItem, error)
}

// Dashboard собирает сводку для панели администратора.
type Dashboard struct {
	repo    dashboardStore
	reviews *ReviewAggregator
}

// NewDashboard создаёт сервис сводки.
func NewDashboard(repo dashboardStore, reviews *ReviewAggregator) *Dashboard {
	return &Dashboard{repo: repo, reviews: reviews}
}

// Stats возвращает статистику заказов, число позиций на исходе и средний рейтинг.
func (d *Dashboard) Stats(ctx context.Context) (model.Stats, error) {
	var (
		stats  model.Stats
		low    []model.StockItem
		rating RatingSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.Orders, err = d.repo.OrderStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		low, err = d.repo.ListLowStock(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rating, err = d.reviews.AverageRating(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Stats{}, err
	}

	stats.LowStockItems = len(low)
	stats.AverageRating = rating.Average
	stats.ReviewCount = rating.Count
	return stats, nil
}
