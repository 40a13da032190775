package model

import (
	"fmt"
	"time"
)

// Category описывает тип складской позиции.
type Category string

const (
	CategoryFlavor  Category = "flavor"
	CategoryTopping Category = "topping"
)

// Valid сообщает, известна ли категория.
func (c Category) Valid() bool {
	return c == CategoryFlavor || c == CategoryTopping
}

// StockItem описывает остаток вкуса или топпинга. Пара (Category, Name) уникальна.
type StockItem struct {
	Category         Category   `json:"category"`
	Name             string     `json:"name"`
	Quantity         int        `json:"quantity"`
	ReorderThreshold int        `json:"reorderThreshold"`
	Active           bool       `json:"active"`
	LastRestockedAt  *time.Time `json:"lastRestockedAt,omitempty"`
}

// Key возвращает идентификатор позиции вида "topping:Mango".
func (s StockItem) Key() string {
	return StockKey(s.Category, s.Name)
}

// StockKey строит идентификатор позиции по категории и названию.
func StockKey(category Category, name string) string {
	return string(category) + ":" + name
}

// Decrement возвращает позицию с уменьшенным остатком. Остаток никогда не уходит в минус.
func (s StockItem) Decrement(amount int) (StockItem, error) {
	if amount <= 0 {
		return s, fmt.Errorf("decrement amount must be positive, got %d", amount)
	}
	if s.Quantity < amount {
		return s, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, s.Name, s.Quantity, amount)
	}
	s.Quantity -= amount
	return s, nil
}

// Increment возвращает позицию с увеличенным остатком и отметкой пополнения.
func (s StockItem) Increment(amount int, at time.Time) (StockItem, error) {
	if amount <= 0 {
		return s, fmt.Errorf("increment amount must be positive, got %d", amount)
	}
	s.Quantity += amount
	s.LastRestockedAt = &at
	return s, nil
}

// IsLow сообщает, что остаток строго ниже порога дозаказа.
func (s StockItem) IsLow() bool {
	return s.Quantity < s.ReorderThreshold
}

// IsAvailable сообщает, что позицию можно выбрать в заказе.
func (s StockItem) IsAvailable() bool {
	return s.Active && s.Quantity > 0
}

// StockUpdate задаёт точные значения позиции при редактировании администратором.
// Nil-поля оставляют текущее значение (или значение по умолчанию для новой позиции).
type StockUpdate struct {
	Category         Category
	Name             string
	Quantity         int
	ReorderThreshold *int
	Active           *bool
}

// Apply применяет обновление к существующей позиции или создаёт новую.
func (u StockUpdate) Apply(existing *StockItem) StockItem {
	item := StockItem{
		Category: u.Category,
		Name:     u.Name,
		Active:   true,
	}
	if existing != nil {
		item = *existing
	}
	item.Quantity = u.Quantity
	if u.ReorderThreshold != nil {
		item.ReorderThreshold = *u.ReorderThreshold
	}
	if u.Active != nil {
		item.Active = *u.Active
	}
	return item
}
