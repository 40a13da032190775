package model

import "time"

// CupSize описывает размер стакана, к которому привязан код меню.
type CupSize string

const (
	CupSizeS CupSize = "S"
	CupSizeM CupSize = "M"
	CupSizeL CupSize = "L"
)

// Valid сообщает, известен ли размер.
func (c CupSize) Valid() bool {
	switch c {
	case CupSizeS, CupSizeM, CupSizeL:
		return true
	}
	return false
}

// CodeUsage фиксирует одно погашение кода меню.
type CodeUsage struct {
	OrderID string    `json:"orderId"`
	UsedAt  time.Time `json:"usedAt"`
}

// MenuCode описывает многоразовый код, который персонал выдаёт покупателю.
type MenuCode struct {
	Code       string      `json:"code"`
	CupSize    CupSize     `json:"cupSize"`
	UsageCount int         `json:"usageCount"`
	MaxUsage   int         `json:"maxUsage"`
	CreatedBy  int64       `json:"createdBy"`
	UsedBy     []CodeUsage `json:"usedBy"`
	ExpiresAt  time.Time   `json:"expiresAt"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Check проверяет, что код можно погасить в момент now.
func (m MenuCode) Check(now time.Time) error {
	if !now.Before(m.ExpiresAt) {
		return ErrCodeExpired
	}
	if m.UsageCount >= m.MaxUsage {
		return ErrUsageLimitReached
	}
	return nil
}

// RemainingUses возвращает число оставшихся погашений.
func (m MenuCode) RemainingUses() int {
	if m.UsageCount >= m.MaxUsage {
		return 0
	}
	return m.MaxUsage - m.UsageCount
}

// Redeem возвращает код после одного погашения заказом orderID.
func (m MenuCode) Redeem(orderID string, at time.Time) (MenuCode, error) {
	if err := m.Check(at); err != nil {
		return m, err
	}
	m.UsageCount++
	used := make([]CodeUsage, len(m.UsedBy), len(m.UsedBy)+1)
	copy(used, m.UsedBy)
	m.UsedBy = append(used, CodeUsage{OrderID: orderID, UsedAt: at})
	return m, nil
}

// IsCleanupCandidate сообщает, что код просрочен и ни разу не использовался.
// Использованные коды хранятся ради истории заказов.
func (m MenuCode) IsCleanupCandidate(now time.Time) bool {
	return m.UsageCount == 0 && !now.Before(m.ExpiresAt)
}

// CodeCheck содержит результат проверки кода без его погашения.
type CodeCheck struct {
	Code          string  `json:"code"`
	CupSize       CupSize `json:"cupSize"`
	RemainingUses int     `json:"remainingUses"`
}
