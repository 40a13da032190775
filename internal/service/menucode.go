package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/repository"
	"github.com/mmeshcher/bingsu-order-system/internal/validation"
)

// maxGenerateAttempts ограничивает число попыток подобрать свободный код.
const maxGenerateAttempts = 100

// randomCode возвращает CodeLength случайных символов из CodeAlphabet.
func randomCode() string {
	b := make([]byte, validation.CodeLength)
	for i := range b {
		b[i] = validation.CodeAlphabet[rand.IntN(len(validation.CodeAlphabet))]
	}
	return string(b)
}

// MenuCodeIssuer выпускает, проверяет и погашает коды меню.
type MenuCodeIssuer struct {
	repo     MenuCodeRepository
	ttl      time.Duration
	maxUsage int
	logger   *zap.Logger

	now      func() time.Time
	generate func() string
}

// NewMenuCodeIssuer создаёт сервис кодов меню. Срок действия и лимит погашений задаются конфигурацией.
func NewMenuCodeIssuer(repo MenuCodeRepository, ttl time.Duration, maxUsage int, logger *zap.Logger) *MenuCodeIssuer {
	return &MenuCodeIssuer{
		repo:     repo,
		ttl:      ttl,
		maxUsage: maxUsage,
		logger:   logger,
		now:      time.Now,
		generate: randomCode,
	}
}

// Generate выпускает новый код для размера стакана. Совпавшие коды перегенерируются,
// после maxGenerateAttempts неудач возвращается model.ErrCodeSpaceExhausted.
func (s *MenuCodeIssuer) Generate(ctx context.Context, size model.CupSize, issuedBy int64) (*model.MenuCode, error) {
	if !size.Valid() {
		verr := &model.ValidationError{}
		verr.Add("cupSize", "must be S, M or L")
		return nil, verr
	}

	now := s.now()
	for range maxGenerateAttempts {
		m := &model.MenuCode{
			Code:      s.generate(),
			CupSize:   size,
			MaxUsage:  s.maxUsage,
			CreatedBy: issuedBy,
			UsedBy:    []model.CodeUsage{},
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}

		err := s.repo.CreateMenuCode(ctx, m)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create menu code: %w", err)
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %d attempts", model.ErrCodeSpaceExhausted, maxGenerateAttempts)
}

// Validate проверяет код без погашения и возвращает размер стакана и остаток погашений.
func (s *MenuCodeIssuer) Validate(ctx context.Context, code string) (model.CodeCheck, error) {
	code = validation.NormalizeMenuCode(code)
	if !validation.IsValidMenuCode(code) {
		return model.CodeCheck{}, fmt.Errorf("%w: %q", model.ErrInvalidCode, code)
	}

	m, err := s.repo.GetMenuCode(ctx, code)
	if err != nil {
		return model.CodeCheck{}, err
	}
	if err := m.Check(s.now()); err != nil {
		return model.CodeCheck{}, err
	}

	return model.CodeCheck{
		Code:          m.Code,
		CupSize:       m.CupSize,
		RemainingUses: m.RemainingUses(),
	}, nil
}

// Redeem погашает одно использование кода заказом orderID.
func (s *MenuCodeIssuer) Redeem(ctx context.Context, code, orderID string) (*model.MenuCode, error) {
	code = validation.NormalizeMenuCode(code)
	if !validation.IsValidMenuCode(code) {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidCode, code)
	}
	return s.repo.RedeemMenuCode(ctx, code, orderID, s.now())
}

// List возвращает все коды.
func (s *MenuCodeIssuer) List(ctx context.Context) ([]model.MenuCode, error) {
	return s.repo.ListMenuCodes(ctx)
}

// Delete удаляет код.
func (s *MenuCodeIssuer) Delete(ctx context.Context, code string) error {
	return s.repo.DeleteMenuCode(ctx, validation.NormalizeMenuCode(code))
}

// CleanupExpired удаляет просроченные неиспользованные коды и возвращает их количество.
func (s *MenuCodeIssuer) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredUnusedMenuCodes(ctx, s.now())
}

// StartCleanup запускает фоновую очистку просроченных кодов с периодом interval.
func (s *MenuCodeIssuer) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.CleanupExpired(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Error("menu code cleanup failed", zap.Error(err))
					}
					continue
				}
				if n > 0 {
					s.logger.Info("expired menu codes removed", zap.Int64("count", n))
				}
			}
		}
	}()
}
