// Package model содержит доменные сущности магазина бинсу и чистые функции переходов их состояний.
package model

import "time"

// Role определяет права пользователя.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User представляет зарегистрированного покупателя или администратора.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	Loyalty      LoyaltyAccount
	CreatedAt    time.Time
}

// LoyaltyAccount хранит штампы программы лояльности покупателя.
type LoyaltyAccount struct {
	StampCount           int `json:"stampCount"`
	TotalFreeRedemptions int `json:"totalFreeRedemptions"`
	RewardPoints         int `json:"rewardPoints"`
}

// Stamp добавляет один штамп. При достижении порога счётчик обнуляется,
// а покупатель получает бесплатный заказ.
func (a LoyaltyAccount) Stamp(threshold int) (LoyaltyAccount, bool) {
	a.StampCount++
	if a.StampCount >= threshold {
		a.StampCount = 0
		a.TotalFreeRedemptions++
		return a, true
	}
	return a, false
}

// RewardPointsFor возвращает баллы за оплаченную сумму: по одному за каждые 10.
func RewardPointsFor(total int) int {
	if total <= 0 {
		return 0
	}
	return total / 10
}

// Review описывает отзыв покупателя.
type Review struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customerName"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	OrderID      *string   `json:"orderId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Visible      bool      `json:"visible"`
}

// Stats содержит сводку для панели администратора.
type Stats struct {
	Orders        OrderStats `json:"orders"`
	LowStockItems int        `json:"lowStockItems"`
	AverageRating float64    `json:"averageRating"`
	ReviewCount   int        `json:"reviewCount"`
}
