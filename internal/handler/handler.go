// Package handler содержит HTTP-обработчики API магазина бинсу.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/middleware"
	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/service"
)

// AccountService регистрирует пользователей и проверяет их учётные данные.
type AccountService interface {
	Register(ctx context.Context, login, password string) (int64, error)
	Authenticate(ctx context.Context, login, password string) (*model.User, error)
	Profile(ctx context.Context, id int64) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
}

// StockService управляет складскими остатками.
type StockService interface {
	List(ctx context.Context) ([]model.StockItem, error)
	ListLow(ctx context.Context) ([]model.StockItem, error)
	SetAbsolute(ctx context.Context, u model.StockUpdate) (*model.StockItem, error)
	Increment(ctx context.Context, category model.Category, name string, amount int) (*model.StockItem, error)
	RestockToThreshold(ctx context.Context, category model.Category, name string) (*model.StockItem, error)
	Delete(ctx context.Context, category model.Category, name string) error
	Availability(ctx context.Context) (service.Availability, error)
}

// MenuCodeService выпускает и проверяет коды меню.
type MenuCodeService interface {
	Generate(ctx context.Context, size model.CupSize, issuedBy int64) (*model.MenuCode, error)
	Validate(ctx context.Context, code string) (model.CodeCheck, error)
	List(ctx context.Context) ([]model.MenuCode, error)
	Delete(ctx context.Context, code string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// OrderService оформляет заказы и ведёт их статусы.
type OrderService interface {
	Create(ctx context.Context, req model.OrderRequest) (*model.Order, error)
	UpdateStatus(ctx context.Context, id string, to model.OrderStatus) (*model.Order, error)
	OverrideStatus(ctx context.Context, id string, to model.OrderStatus) (*model.Order, error)
	UpdatePayment(ctx context.Context, id string, to model.PaymentStatus) (*model.Order, error)
	TrackByCode(ctx context.Context, code string) (*model.Order, error)
	Get(ctx context.Context, id string) (*model.Order, error)
	List(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
	ListForCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
}

// ReviewService принимает отзывы и считает рейтинг.
type ReviewService interface {
	Submit(ctx context.Context, in service.ReviewInput) (*model.Review, error)
	AverageRating(ctx context.Context) (service.RatingSummary, error)
	List(ctx context.Context, visibleOnly bool) ([]model.Review, error)
	SetVisibility(ctx context.Context, id string, visible bool) (*model.Review, error)
}

// StatsService собирает сводку для администратора.
type StatsService interface {
	Stats(ctx context.Context) (model.Stats, error)
}

// HealthChecker проверяет доступность хранилища.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Services объединяет зависимости обработчиков.
type Services struct {
	Accounts  AccountService
	Stock     StockService
	MenuCodes MenuCodeService
	Orders    OrderService
	Reviews   ReviewService
	Stats     StatsService
	Health    HealthChecker
}

// Handler реализует HTTP-обработчики API магазина бинсу.
type Handler struct {
	services       Services
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Services, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		services:       s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON читает тело запроса. При ошибке ответ 400 уже отправлен.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "malformed request body",
			Reason: "malformed_json",
		})
		return false
	}
	return true
}

// Health сообщает, доступно ли хранилище.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Health.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
