package model

import (
	"fmt"
	"time"
)

// OrderStatus описывает стадию приготовления заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPreparing OrderStatus = "Preparing"
	OrderStatusReady     OrderStatus = "Ready"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusPreparing: 1,
	OrderStatusReady:     2,
	OrderStatusCompleted: 3,
}

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusRank[s]
	return ok || s == OrderStatusCancelled
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransition разрешает только шаг вперёд Pending → Preparing → Ready → Completed
// и отмену из любого нетерминального статуса.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s.Terminal() || !to.Valid() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	return orderStatusRank[to] == orderStatusRank[s]+1
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "Unpaid"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentRefunded PaymentStatus = "Refunded"
)

// CanTransition разрешает Unpaid → Paid и Paid → Refunded.
func (p PaymentStatus) CanTransition(to PaymentStatus) bool {
	switch p {
	case PaymentUnpaid:
		return to == PaymentPaid
	case PaymentPaid:
		return to == PaymentRefunded
	}
	return false
}

// OrderOwner определяет владельца заказа: гостя или авторизованного покупателя.
type OrderOwner struct {
	customerID int64
	customer   bool
}

// Guest возвращает владельца для гостевого заказа.
func Guest() OrderOwner {
	return OrderOwner{}
}

// Customer возвращает владельца для заказа авторизованного покупателя.
func Customer(id int64) OrderOwner {
	return OrderOwner{customerID: id, customer: true}
}

// CustomerID возвращает идентификатор покупателя и false для гостя.
func (o OrderOwner) CustomerID() (int64, bool) {
	return o.customerID, o.customer
}

// IsGuest сообщает, что заказ гостевой.
func (o OrderOwner) IsGuest() bool {
	return !o.customer
}

// Selection описывает выбранный вкус или топпинг.
type Selection struct {
	Name   string `json:"name"`
	Weight int    `json:"weight,omitempty"`
}

// StatusTimestamps хранит время перехода в каждый статус.
type StatusTimestamps struct {
	Ordered   time.Time  `json:"ordered"`
	Prepared  *time.Time `json:"prepared,omitempty"`
	Ready     *time.Time `json:"ready,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
	Cancelled *time.Time `json:"cancelled,omitempty"`
}

// Order описывает заказ бинсу.
type Order struct {
	ID                  string           `json:"orderId"`
	Owner               OrderOwner       `json:"-"`
	TrackingCode        string           `json:"trackingCode"`
	MenuCode            string           `json:"menuCode"`
	CupSize             CupSize          `json:"cupSize"`
	Flavor              Selection        `json:"flavor"`
	Toppings            []Selection      `json:"toppings"`
	Pricing             Pricing          `json:"pricing"`
	Status              OrderStatus      `json:"status"`
	PaymentStatus       PaymentStatus    `json:"paymentStatus"`
	SpecialInstructions string           `json:"specialInstructions,omitempty"`
	Timestamps          StatusTimestamps `json:"statusTimestamps"`
	IsFreeRedemption    bool             `json:"isFreeRedemption"`
}

// Transition возвращает заказ в новом статусе с отметкой времени перехода.
func (o Order) Transition(to OrderStatus, at time.Time) (Order, error) {
	if !o.Status.CanTransition(to) {
		return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	return o.stamp(to, at), nil
}

// Override переводит заказ в любой известный статус в обход порядка переходов.
func (o Order) Override(to OrderStatus, at time.Time) (Order, error) {
	if !to.Valid() {
		return o, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	return o.stamp(to, at), nil
}

func (o Order) stamp(to OrderStatus, at time.Time) Order {
	o.Status = to
	switch to {
	case OrderStatusPreparing:
		o.Timestamps.Prepared = &at
	case OrderStatusReady:
		o.Timestamps.Ready = &at
	case OrderStatusCompleted:
		o.Timestamps.Completed = &at
	case OrderStatusCancelled:
		o.Timestamps.Cancelled = &at
	}
	return o
}

// SetPayment возвращает заказ с новым статусом оплаты.
func (o Order) SetPayment(to PaymentStatus) (Order, error) {
	if !o.PaymentStatus.CanTransition(to) {
		return o, fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentTransition, o.PaymentStatus, to)
	}
	o.PaymentStatus = to
	return o, nil
}

// OrderFilter задаёт условия выборки заказов для панели администратора.
type OrderFilter struct {
	Status *OrderStatus
	Limit  int
	Offset int
}

// OrderStats содержит агрегированную статистику по заказам.
type OrderStats struct {
	ByStatus        map[OrderStatus]int `json:"byStatus"`
	TotalOrders     int                 `json:"totalOrders"`
	PaidRevenue     int                 `json:"paidRevenue"`
	FreeRedemptions int                 `json:"freeRedemptions"`
}

// OrderRequest содержит выбор покупателя, из которого собирается заказ.
type OrderRequest struct {
	MenuCode            string
	Flavor              Selection
	Toppings            []Selection
	SpecialInstructions string
	Owner               OrderOwner
}
