package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/validation"
)

// StockLedger ведёт остатки вкусов и топпингов.
type StockLedger struct {
	repo StockRepository
	now  func() time.Time
}

// NewStockLedger создаёт сервис склада.
func NewStockLedger(repo StockRepository) *StockLedger {
	return &StockLedger{repo: repo, now: time.Now}
}

func positiveAmount(amount int) error {
	if amount <= 0 {
		verr := &model.ValidationError{}
		verr.Add("amount", "must be positive")
		return verr
	}
	return nil
}

// Decrement списывает amount единиц. Проверка и списание выполняются хранилищем атомарно.
func (s *StockLedger) Decrement(ctx context.Context, category model.Category, name string, amount int) (*model.StockItem, error) {
	if err := validation.ValidateStockRef(category, name); err != nil {
		return nil, err
	}
	if err := positiveAmount(amount); err != nil {
		return nil, err
	}
	return s.repo.DecrementStock(ctx, category, name, amount)
}

// Increment добавляет amount единиц, создавая позицию при отсутствии.
func (s *StockLedger) Increment(ctx context.Context, category model.Category, name string, amount int) (*model.StockItem, error) {
	if err := validation.ValidateStockRef(category, name); err != nil {
		return nil, err
	}
	if err := positiveAmount(amount); err != nil {
		return nil, err
	}
	return s.repo.IncrementStock(ctx, category, name, amount, s.now())
}

// SetAbsolute записывает точные значения позиции.
func (s *StockLedger) SetAbsolute(ctx context.Context, u model.StockUpdate) (*model.StockItem, error) {
	verr := &model.ValidationError{}
	if err := validation.ValidateStockRef(u.Category, u.Name); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			verr.Fields = append(verr.Fields, ve.Fields...)
		}
	}
	if u.Quantity < 0 {
		verr.Add("quantity", "must not be negative")
	}
	if u.ReorderThreshold != nil && *u.ReorderThreshold < 0 {
		verr.Add("reorderThreshold", "must not be negative")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return s.repo.SetStock(ctx, u)
}

// List возвращает все позиции склада.
func (s *StockLedger) List(ctx context.Context) ([]model.StockItem, error) {
	return s.repo.ListStock(ctx)
}

// ListLow возвращает позиции с остатком строго ниже порога дозаказа.
func (s *StockLedger) ListLow(ctx context.Context) ([]model.StockItem, error) {
	return s.repo.ListLowStock(ctx)
}

// IsAvailable сообщает, что позиция существует, активна и есть в наличии.
func (s *StockLedger) IsAvailable(ctx context.Context, category model.Category, name string) (bool, error) {
	item, err := s.repo.GetStockItem(ctx, category, name)
	if err != nil {
		if errors.Is(err, model.ErrStockItemNotFound) {
			return false, nil
		}
		return false, err
	}
	return item.IsAvailable(), nil
}

// RestockToThreshold добавляет ровно reorderThreshold единиц к текущему остатку.
func (s *StockLedger) RestockToThreshold(ctx context.Context, category model.Category, name string) (*model.StockItem, error) {
	item, err := s.repo.GetStockItem(ctx, category, name)
	if err != nil {
		return nil, err
	}
	if item.ReorderThreshold <= 0 {
		verr := &model.ValidationError{}
		verr.Add("reorderThreshold", "is zero, nothing to restock")
		return nil, verr
	}
	return s.repo.IncrementStock(ctx, category, name, item.ReorderThreshold, s.now())
}

// Delete удаляет позицию.
func (s *StockLedger) Delete(ctx context.Context, category model.Category, name string) error {
	if err := validation.ValidateStockRef(category, name); err != nil {
		return err
	}
	if err := s.repo.DeleteStock(ctx, category, name); err != nil {
		return fmt.Errorf("delete %s: %w", model.StockKey(category, name), err)
	}
	return nil
}

// Availability перечисляет позиции, которые покупатель может выбрать прямо сейчас.
type Availability struct {
	Flavors  []model.StockItem `json:"flavors"`
	Toppings []model.StockItem `json:"toppings"`
}

// Availability возвращает доступные для заказа вкусы и топпинги.
func (s *StockLedger) Availability(ctx context.Context) (Availability, error) {
	items, err := s.repo.ListStock(ctx)
	if err != nil {
		return Availability{}, err
	}

	res := Availability{
		Flavors:  []model.StockItem{},
		Toppings: []model.StockItem{},
	}
	for _, item := range items {
		if !item.IsAvailable() {
			continue
		}
		switch item.Category {
		case model.CategoryFlavor:
			res.Flavors = append(res.Flavors, item)
		case model.CategoryTopping:
			res.Toppings = append(res.Toppings, item)
		}
	}
	return res, nil
}
