package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

const stockColumns = `category, name, quantity, reorder_threshold, active, last_restocked_at`

func scanStockItem(row pgx.Row) (*model.StockItem, error) {
	var (
		item     model.StockItem
		category string
	)
	if err := row.Scan(&category, &item.Name, &item.Quantity, &item.ReorderThreshold, &item.Active, &item.LastRestockedAt); err != nil {
		return nil, err
	}
	item.Category = model.Category(category)
	return &item, nil
}

func (r *PostgresRepository) queryStock(ctx context.Context, sql string, args ...any) ([]model.StockItem, error) {
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select stock: %w", err)
	}
	defer rows.Close()

	var res []model.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		res = append(res, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetStockItem возвращает складскую позицию.
func (r *PostgresRepository) GetStockItem(ctx context.Context, category model.Category, name string) (*model.StockItem, error) {
	item, err := scanStockItem(r.q(ctx).QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stock_items WHERE category = $1 AND name = $2`,
		string(category), name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrStockItemNotFound, model.StockKey(category, name))
		}
		return nil, fmt.Errorf("get stock item: %w", err)
	}
	return item, nil
}

// ListStock возвращает все складские позиции.
func (r *PostgresRepository) ListStock(ctx context.Context) ([]model.StockItem, error) {
	return r.queryStock(ctx, `SELECT `+stockColumns+` FROM stock_items ORDER BY category, name`)
}

// ListLowStock возвращает позиции с остатком строго ниже порога дозаказа.
func (r *PostgresRepository) ListLowStock(ctx context.Context) ([]model.StockItem, error) {
	return r.queryStock(ctx,
		`SELECT `+stockColumns+` FROM stock_items WHERE quantity < reorder_threshold ORDER BY category, name`)
}

// IncrementStock увеличивает остаток или создаёт позицию с указанным количеством.
func (r *PostgresRepository) IncrementStock(ctx context.Context, category model.Category, name string, amount int, at time.Time) (*model.StockItem, error) {
	item, err := scanStockItem(r.q(ctx).QueryRow(ctx,
		`INSERT INTO stock_items (category, name, quantity, last_restocked_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (category, name) DO UPDATE
		   SET quantity = stock_items.quantity + EXCLUDED.quantity,
		       last_restocked_at = EXCLUDED.last_restocked_at
		 RETURNING `+stockColumns,
		string(category), name, amount, at,
	))
	if err != nil {
		return nil, fmt.Errorf("increment stock: %w", err)
	}
	return item, nil
}

// DecrementStock списывает остаток одним условным обновлением, поэтому
// параллельные заказы не могут увести количество в минус.
func (r *PostgresRepository) DecrementStock(ctx context.Context, category model.Category, name string, amount int) (*model.StockItem, error) {
	item, err := scanStockItem(r.q(ctx).QueryRow(ctx,
		`UPDATE stock_items SET quantity = quantity - $3
		 WHERE category = $1 AND name = $2 AND quantity >= $3
		 RETURNING `+stockColumns,
		string(category), name, amount,
	))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	current, err := r.GetStockItem(ctx, category, name)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s has %d, need %d", model.ErrInsufficientStock, name, current.Quantity, amount)
}

// SetStock записывает точные значения позиции, создавая её при отсутствии.
func (r *PostgresRepository) SetStock(ctx context.Context, u model.StockUpdate) (*model.StockItem, error) {
	item, err := scanStockItem(r.q(ctx).QueryRow(ctx,
		`INSERT INTO stock_items (category, name, quantity, reorder_threshold, active)
		 VALUES ($1, $2, $3, COALESCE($4::integer, 0), COALESCE($5::boolean, TRUE))
		 ON CONFLICT (category, name) DO UPDATE
		   SET quantity = EXCLUDED.quantity,
		       reorder_threshold = COALESCE($4::integer, stock_items.reorder_threshold),
		       active = COALESCE($5::boolean, stock_items.active)
		 RETURNING `+stockColumns,
		string(u.Category), u.Name, u.Quantity, u.ReorderThreshold, u.Active,
	))
	if err != nil {
		return nil, fmt.Errorf("set stock: %w", err)
	}
	return item, nil
}

// DeleteStock удаляет позицию.
func (r *PostgresRepository) DeleteStock(ctx context.Context, category model.Category, name string) error {
	tag, err := r.q(ctx).Exec(ctx,
		`DELETE FROM stock_items WHERE category = $1 AND name = $2`,
		string(category), name,
	)
	if err != nil {
		return fmt.Errorf("delete stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrStockItemNotFound, model.StockKey(category, name))
	}
	return nil
}
