// Package service реализует бизнес-логику магазина бинсу: склад, коды меню, заказы,
// программу лояльности и отзывы.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/events"
	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

// Transactor выполняет функцию в одной транзакции хранилища.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockRepository описывает доступ к складским остаткам.
type StockRepository interface {
	GetStockItem(ctx context.Context, category model.Category, name string) (*model.StockItem, error)
	ListStock(ctx context.Context) ([]model.StockItem, error)
	ListLowStock(ctx context.Context) ([]model.StockItem, error)
	IncrementStock(ctx context.Context, category model.Category, name string, amount int, at time.Time) (*model.StockItem, error)
	DecrementStock(ctx context.Context, category model.Category, name string, amount int) (*model.StockItem, error)
	SetStock(ctx context.Context, u model.StockUpdate) (*model.StockItem, error)
	DeleteStock(ctx context.Context, category model.Category, name string) error
}

// MenuCodeRepository описывает доступ к кодам меню.
type MenuCodeRepository interface {
	CreateMenuCode(ctx context.Context, m *model.MenuCode) error
	GetMenuCode(ctx context.Context, code string) (*model.MenuCode, error)
	ListMenuCodes(ctx context.Context) ([]model.MenuCode, error)
	RedeemMenuCode(ctx context.Context, code, orderID string, at time.Time) (*model.MenuCode, error)
	DeleteMenuCode(ctx context.Context, code string) error
	DeleteExpiredUnusedMenuCodes(ctx context.Context, now time.Time) (int64, error)
}

// OrderRepository описывает доступ к заказам.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrderByTrackingCode(ctx context.Context, code string) (*model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, from model.OrderStatus, o *model.Order) error
	UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus) error
	OrderStats(ctx context.Context) (model.OrderStats, error)
}

// UserRepository описывает доступ к пользователям и их счетам лояльности.
type UserRepository interface {
	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	AddLoyaltyStamp(ctx context.Context, userID int64, threshold int) (model.LoyaltyAccount, bool, error)
	AddRewardPoints(ctx context.Context, userID int64, points int) (model.LoyaltyAccount, error)
}

// ReviewRepository описывает доступ к отзывам.
type ReviewRepository interface {
	CreateReview(ctx context.Context, rv *model.Review) error
	ListReviews(ctx context.Context, visibleOnly bool) ([]model.Review, error)
	AverageRating(ctx context.Context) (float64, int, error)
	SetReviewVisibility(ctx context.Context, id string, visible bool) (*model.Review, error)
}

// Repository описывает полный контракт хранилища, используемый сервисом.
type Repository interface {
	Transactor
	StockRepository
	MenuCodeRepository
	OrderRepository
	UserRepository
	ReviewRepository
	Ping(ctx context.Context) error
	Close() error
}

// Options задаёт параметры бизнес-логики, приходящие из конфигурации.
type Options struct {
	MenuCodeTTL      time.Duration
	MenuCodeMaxUsage int
}

// Service объединяет сервисы магазина поверх одного хранилища.
type Service struct {
	repo Repository

	Stock     *StockLedger
	MenuCodes *MenuCodeIssuer
	Orders    *OrderBuilder
	Loyalty   *LoyaltyCounter
	Reviews   *ReviewAggregator
	Accounts  *Accounts
	Dashboard *Dashboard
}

// NewService создаёт сервисы с указанным хранилищем и издателем событий.
func NewService(repo Repository, pub events.Publisher, opts Options, logger *zap.Logger) *Service {
	stock := NewStockLedger(repo)
	codes := NewMenuCodeIssuer(repo, opts.MenuCodeTTL, opts.MenuCodeMaxUsage, logger)
	loyalty := NewLoyaltyCounter(repo)
	reviews := NewReviewAggregator(repo)

	return &Service{
		repo:      repo,
		Stock:     stock,
		MenuCodes: codes,
		Orders:    NewOrderBuilder(repo, codes, loyalty, pub, logger),
		Loyalty:   loyalty,
		Reviews:   reviews,
		Accounts:  NewAccounts(repo),
		Dashboard: NewDashboard(repo, reviews),
	}
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
