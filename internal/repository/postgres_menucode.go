package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

const menuCodeColumns = `code, cup_size, usage_count, max_usage, created_by, expires_at, created_at`

func scanMenuCode(row pgx.Row) (*model.MenuCode, error) {
	var (
		m    model.MenuCode
		size string
	)
	if err := row.Scan(&m.Code, &size, &m.UsageCount, &m.MaxUsage, &m.CreatedBy, &m.ExpiresAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CupSize = model.CupSize(size)
	m.UsedBy = []model.CodeUsage{}
	return &m, nil
}

// CreateMenuCode сохраняет новый код. При совпадении кода возвращается ErrDuplicate.
func (r *PostgresRepository) CreateMenuCode(ctx context.Context, m *model.MenuCode) error {
	return r.savepoint(ctx, func(q querier) error {
		_, err := q.Exec(ctx,
			`INSERT INTO menu_codes (code, cup_size, usage_count, max_usage, created_by, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.Code, string(m.CupSize), m.UsageCount, m.MaxUsage, m.CreatedBy, m.ExpiresAt, m.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: menu code %s", ErrDuplicate, m.Code)
			}
			return fmt.Errorf("insert menu code: %w", err)
		}
		return nil
	})
}

// GetMenuCode возвращает код вместе с историей погашений.
func (r *PostgresRepository) GetMenuCode(ctx context.Context, code string) (*model.MenuCode, error) {
	m, err := scanMenuCode(r.q(ctx).QueryRow(ctx,
		`SELECT `+menuCodeColumns+` FROM menu_codes WHERE code = $1`,
		code,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrInvalidCode, code)
		}
		return nil, fmt.Errorf("get menu code: %w", err)
	}

	usages, err := r.listUsages(ctx, code)
	if err != nil {
		return nil, err
	}
	if u, ok := usages[m.Code]; ok {
		m.UsedBy = u
	}
	return m, nil
}

// listUsages возвращает погашения кода или, при пустом code, всех кодов.
func (r *PostgresRepository) listUsages(ctx context.Context, code string) (map[string][]model.CodeUsage, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT code, order_id, used_at FROM menu_code_usages
		 WHERE $1::text = '' OR code = $1::text
		 ORDER BY used_at, id`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("select menu code usages: %w", err)
	}
	defer rows.Close()

	res := make(map[string][]model.CodeUsage)
	for rows.Next() {
		var (
			c string
			u model.CodeUsage
		)
		if err := rows.Scan(&c, &u.OrderID, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan menu code usage: %w", err)
		}
		res[c] = append(res[c], u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ListMenuCodes возвращает все коды, новые первыми.
func (r *PostgresRepository) ListMenuCodes(ctx context.Context) ([]model.MenuCode, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT `+menuCodeColumns+` FROM menu_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select menu codes: %w", err)
	}
	defer rows.Close()

	var res []model.MenuCode
	for rows.Next() {
		m, err := scanMenuCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan menu code: %w", err)
		}
		res = append(res, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	usages, err := r.listUsages(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range res {
		if u, ok := usages[res[i].Code]; ok {
			res[i].UsedBy = u
		}
	}
	return res, nil
}

// RedeemMenuCode погашает код одним условным обновлением, защищённым условием
// usage_count < max_usage, и записывает погашение в историю.
func (r *PostgresRepository) RedeemMenuCode(ctx context.Context, code, orderID string, at time.Time) (*model.MenuCode, error) {
	var redeemed *model.MenuCode

	err := r.InTx(ctx, func(ctx context.Context) error {
		m, err := scanMenuCode(r.q(ctx).QueryRow(ctx,
			`UPDATE menu_codes SET usage_count = usage_count + 1
			 WHERE code = $1 AND usage_count < max_usage AND expires_at > $2
			 RETURNING `+menuCodeColumns,
			code, at,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.redeemFailure(ctx, code, at)
		}
		if err != nil {
			return fmt.Errorf("redeem menu code: %w", err)
		}

		_, err = r.q(ctx).Exec(ctx,
			`INSERT INTO menu_code_usages (code, order_id, used_at) VALUES ($1, $2, $3)`,
			code, orderID, at,
		)
		if err != nil {
			return fmt.Errorf("insert menu code usage: %w", err)
		}

		usages, err := r.listUsages(ctx, code)
		if err != nil {
			return err
		}
		m.UsedBy = usages[m.Code]
		redeemed = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

// redeemFailure определяет причину, по которой условное обновление не затронуло код.
func (r *PostgresRepository) redeemFailure(ctx context.Context, code string, at time.Time) error {
	m, err := r.GetMenuCode(ctx, code)
	if err != nil {
		return err
	}
	if err := m.Check(at); err != nil {
		return err
	}
	return model.ErrUsageLimitReached
}

// DeleteMenuCode удаляет код вместе с историей погашений.
func (r *PostgresRepository) DeleteMenuCode(ctx context.Context, code string) error {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM menu_codes WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete menu code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrInvalidCode, code)
	}
	return nil
}

// DeleteExpiredUnusedMenuCodes удаляет просроченные коды, которые ни разу не погашались.
func (r *PostgresRepository) DeleteExpiredUnusedMenuCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q(ctx).Exec(ctx,
		`DELETE FROM menu_codes WHERE usage_count = 0 AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired menu codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
