package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

// LoyaltyCounter начисляет штампы и баллы за оплаченные заказы.
type LoyaltyCounter struct {
	repo      UserRepository
	threshold int
}

// NewLoyaltyCounter создаёт счётчик с порогом model.LoyaltyThreshold.
func NewLoyaltyCounter(repo UserRepository) *LoyaltyCounter {
	return &LoyaltyCounter{repo: repo, threshold: model.LoyaltyThreshold}
}

// LoyaltyResult содержит итог учёта одного заказа.
type LoyaltyResult struct {
	Account       model.LoyaltyAccount
	EarnedFree    bool
	PointsAwarded int
}

// RecordPaidOrder ставит штамп за заказ на сумму orderTotal. Если штамп достиг порога,
// заказ становится бесплатным и баллы за него не начисляются. Вызывается не больше одного раза на заказ.
func (l *LoyaltyCounter) RecordPaidOrder(ctx context.Context, customerID int64, orderTotal int) (LoyaltyResult, error) {
	acct, earned, err := l.repo.AddLoyaltyStamp(ctx, customerID, l.threshold)
	if err != nil {
		return LoyaltyResult{}, fmt.Errorf("add loyalty stamp: %w", err)
	}

	res := LoyaltyResult{Account: acct, EarnedFree: earned}
	if earned {
		return res, nil
	}

	points := model.RewardPointsFor(orderTotal)
	if points == 0 {
		return res, nil
	}
	acct, err = l.repo.AddRewardPoints(ctx, customerID, points)
	if err != nil {
		return LoyaltyResult{}, fmt.Errorf("add reward points: %w", err)
	}
	res.Account = acct
	res.PointsAwarded = points
	return res, nil
}

// Account возвращает текущее состояние счёта лояльности покупателя.
func (l *LoyaltyCounter) Account(ctx context.Context, customerID int64) (model.LoyaltyAccount, error) {
	u, err := l.repo.GetUser(ctx, customerID)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return u.Loyalty, nil
}
