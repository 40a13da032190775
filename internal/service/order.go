package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/events"
	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/repository"
	"github.com/mmeshcher/bingsu-order-system/internal/validation"
)

type orderStore interface {
	Transactor
	StockRepository
	OrderRepository
}

// OrderBuilder собирает, оценивает и ведёт заказы.
type OrderBuilder struct {
	repo    orderStore
	codes   *MenuCodeIssuer
	loyalty *LoyaltyCounter
	pub     events.Publisher
	logger  *zap.Logger

	now          func() time.Time
	newID        func() string
	trackingCode func() string
}

// NewOrderBuilder создаёт сервис заказов.
func NewOrderBuilder(repo orderStore, codes *MenuCodeIssuer, loyalty *LoyaltyCounter, pub events.Publisher, logger *zap.Logger) *OrderBuilder {
	return &OrderBuilder{
		repo:         repo,
		codes:        codes,
		loyalty:      loyalty,
		pub:          pub,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		trackingCode: func() string { return validation.TrackingPrefix + randomCode() },
	}
}

// demand описывает, сколько единиц позиции требует заказ.
type demand struct {
	category model.Category
	name     string
	amount   int
}

// demands сворачивает вкус и топпинги в список позиций в порядке первого упоминания.
func demands(flavor model.Selection, toppings []model.Selection) []demand {
	var res []demand
	index := make(map[string]int)

	add := func(category model.Category, name string) {
		key := model.StockKey(category, name)
		if i, ok := index[key]; ok {
			res[i].amount++
			return
		}
		index[key] = len(res)
		res = append(res, demand{category: category, name: name, amount: 1})
	}

	add(model.CategoryFlavor, flavor.Name)
	for _, t := range toppings {
		add(model.CategoryTopping, t.Name)
	}
	return res
}

// lockOrder возвращает позиции, отсортированные по ключу склада. Списание в этом порядке
// не даёт двум транзакциям заблокировать строки остатков навстречу друг другу.
func lockOrder(ds []demand) []demand {
	sorted := slices.Clone(ds)
	slices.SortFunc(sorted, func(a, b demand) int {
		return cmp.Compare(model.StockKey(a.category, a.name), model.StockKey(b.category, b.name))
	})
	return sorted
}

// checkAvailability возвращает *model.ItemUnavailableError со всеми недоступными позициями.
func (b *OrderBuilder) checkAvailability(ctx context.Context, ds []demand) error {
	var unavailable []string
	for _, d := range ds {
		item, err := b.repo.GetStockItem(ctx, d.category, d.name)
		if err != nil {
			if errors.Is(err, model.ErrStockItemNotFound) {
				unavailable = append(unavailable, d.name)
				continue
			}
			return err
		}
		if !item.IsAvailable() || item.Quantity < d.amount {
			unavailable = append(unavailable, d.name)
		}
	}
	if len(unavailable) > 0 {
		return &model.ItemUnavailableError{Names: unavailable}
	}
	return nil
}

// Create оформляет заказ. Списание остатков, погашение кода, учёт лояльности и запись заказа
// выполняются в одной транзакции: при любой ошибке ни одно из изменений не сохраняется.
// Штамп и баллы начисляются при оформлении; отмена или возврат заказа их не списывают.
func (b *OrderBuilder) Create(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	req.MenuCode = validation.NormalizeMenuCode(req.MenuCode)
	req.Flavor.Name = strings.TrimSpace(req.Flavor.Name)
	req.Toppings = append([]model.Selection{}, req.Toppings...)
	for i := range req.Toppings {
		req.Toppings[i].Name = strings.TrimSpace(req.Toppings[i].Name)
	}

	if err := validation.ValidateOrderRequest(req); err != nil {
		return nil, err
	}

	if _, err := b.codes.Validate(ctx, req.MenuCode); err != nil {
		return nil, err
	}

	ds := demands(req.Flavor, req.Toppings)
	if err := b.checkAvailability(ctx, ds); err != nil {
		return nil, err
	}

	orderID := b.newID()
	var order *model.Order

	err := b.repo.InTx(ctx, func(ctx context.Context) error {
		missing := make(map[string]bool)
		for _, d := range lockOrder(ds) {
			_, err := b.repo.DecrementStock(ctx, d.category, d.name, d.amount)
			if errors.Is(err, model.ErrInsufficientStock) || errors.Is(err, model.ErrStockItemNotFound) {
				missing[model.StockKey(d.category, d.name)] = true
				continue
			}
			if err != nil {
				return err
			}
		}
		if len(missing) > 0 {
			var unavailable []string
			for _, d := range ds {
				if missing[model.StockKey(d.category, d.name)] {
					unavailable = append(unavailable, d.name)
				}
			}
			return &model.ItemUnavailableError{Names: unavailable}
		}

		code, err := b.codes.Redeem(ctx, req.MenuCode, orderID)
		if err != nil {
			return err
		}

		pricing := model.QuotePrice(code.CupSize, len(req.Toppings), false)
		free := false
		if customerID, ok := req.Owner.CustomerID(); ok {
			res, err := b.loyalty.RecordPaidOrder(ctx, customerID, pricing.Total)
			switch {
			case errors.Is(err, repository.ErrUserNotFound):
				// Подписанная cookie пережила удалённого пользователя: оформляем как гостевой заказ.
				b.logger.Warn("order owner not found, placing as guest", zap.Int64("customer_id", customerID))
				req.Owner = model.Guest()
			case err != nil:
				return err
			default:
				free = res.EarnedFree
			}
		}
		if free {
			pricing = model.QuotePrice(code.CupSize, len(req.Toppings), true)
		}

		now := b.now()
		o := &model.Order{
			ID:                  orderID,
			Owner:               req.Owner,
			MenuCode:            code.Code,
			CupSize:             code.CupSize,
			Flavor:              req.Flavor,
			Toppings:            req.Toppings,
			Pricing:             pricing,
			Status:              model.OrderStatusPending,
			PaymentStatus:       model.PaymentUnpaid,
			SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
			Timestamps:          model.StatusTimestamps{Ordered: now},
			IsFreeRedemption:    free,
		}
		if free {
			o.PaymentStatus = model.PaymentPaid
		}

		if err := b.insertWithTrackingCode(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.publish(ctx, events.OrderCreated, order)
	return order, nil
}

// insertWithTrackingCode подбирает свободный код отслеживания и сохраняет заказ.
func (b *OrderBuilder) insertWithTrackingCode(ctx context.Context, o *model.Order) error {
	for range maxGenerateAttempts {
		o.TrackingCode = b.trackingCode()
		err := b.repo.CreateOrder(ctx, o)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: tracking code after %d attempts", model.ErrCodeSpaceExhausted, maxGenerateAttempts)
}

// UpdateStatus переводит заказ в следующий статус по порядку приготовления или отменяет его.
func (b *OrderBuilder) UpdateStatus(ctx context.Context, id string, to model.OrderStatus) (*model.Order, error) {
	return b.changeStatus(ctx, id, func(o model.Order, at time.Time) (model.Order, error) {
		return o.Transition(to, at)
	})
}

// OverrideStatus выставляет любой известный статус в обход порядка переходов.
func (b *OrderBuilder) OverrideStatus(ctx context.Context, id string, to model.OrderStatus) (*model.Order, error) {
	return b.changeStatus(ctx, id, func(o model.Order, at time.Time) (model.Order, error) {
		return o.Override(to, at)
	})
}

func (b *OrderBuilder) changeStatus(ctx context.Context, id string, apply func(model.Order, time.Time) (model.Order, error)) (*model.Order, error) {
	o, err := b.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := apply(*o, b.now())
	if err != nil {
		return nil, err
	}
	if err := b.repo.UpdateOrderStatus(ctx, o.Status, &next); err != nil {
		return nil, err
	}

	b.publish(ctx, events.OrderStatusChanged, &next)
	return &next, nil
}

// UpdatePayment меняет статус оплаты: Unpaid → Paid или Paid → Refunded.
func (b *OrderBuilder) UpdatePayment(ctx context.Context, id string, to model.PaymentStatus) (*model.Order, error) {
	o, err := b.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := o.SetPayment(to)
	if err != nil {
		return nil, err
	}
	if err := b.repo.UpdatePaymentStatus(ctx, id, o.PaymentStatus, to); err != nil {
		return nil, err
	}

	b.publish(ctx, events.OrderPaymentChanged, &next)
	return &next, nil
}

// TrackByCode ищет заказ по коду отслеживания. Регистр и ведущий "#" не важны.
func (b *OrderBuilder) TrackByCode(ctx context.Context, code string) (*model.Order, error) {
	code = validation.NormalizeTrackingCode(code)
	if !validation.IsValidMenuCode(strings.TrimPrefix(code, validation.TrackingPrefix)) {
		return nil, fmt.Errorf("%w: %s", model.ErrOrderNotFound, code)
	}
	return b.repo.GetOrderByTrackingCode(ctx, code)
}

// Get возвращает заказ по идентификатору.
func (b *OrderBuilder) Get(ctx context.Context, id string) (*model.Order, error) {
	return b.repo.GetOrder(ctx, id)
}

// List возвращает заказы для панели администратора.
func (b *OrderBuilder) List(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	return b.repo.ListOrders(ctx, f)
}

// ListForCustomer возвращает заказы покупателя.
func (b *OrderBuilder) ListForCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return b.repo.ListOrdersByCustomer(ctx, customerID)
}

// publish отправляет событие после фиксации изменений. Ошибка отправки только логируется.
func (b *OrderBuilder) publish(ctx context.Context, eventType string, o *model.Order) {
	if err := b.pub.Publish(ctx, events.NewOrderEvent(eventType, o, b.now())); err != nil {
		b.logger.Warn("publish order event",
			zap.String("type", eventType),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}
