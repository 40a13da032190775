package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

const orderColumns = `id, customer_id, tracking_code, menu_code, cup_size, flavor_name, flavor_weight, toppings,
	base_price, size_surcharge, toppings_surcharge, total, status, payment_status, special_instructions,
	is_free_redemption, ordered_at, prepared_at, ready_at, completed_at, cancelled_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o          model.Order
		customerID *int64
		cupSize    string
		status     string
		payment    string
	)
	err := row.Scan(
		&o.ID, &customerID, &o.TrackingCode, &o.MenuCode, &cupSize, &o.Flavor.Name, &o.Flavor.Weight, &o.Toppings,
		&o.Pricing.BasePrice, &o.Pricing.SizeSurcharge, &o.Pricing.ToppingsSurcharge, &o.Pricing.Total,
		&status, &payment, &o.SpecialInstructions, &o.IsFreeRedemption,
		&o.Timestamps.Ordered, &o.Timestamps.Prepared, &o.Timestamps.Ready, &o.Timestamps.Completed, &o.Timestamps.Cancelled,
	)
	if err != nil {
		return nil, err
	}

	o.Owner = model.Guest()
	if customerID != nil {
		o.Owner = model.Customer(*customerID)
	}
	o.CupSize = model.CupSize(cupSize)
	o.Status = model.OrderStatus(status)
	o.PaymentStatus = model.PaymentStatus(payment)
	if o.Toppings == nil {
		o.Toppings = []model.Selection{}
	}
	return &o, nil
}

func (r *PostgresRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateOrder сохраняет заказ. Совпадение идентификатора или кода отслеживания даёт ErrDuplicate,
// не прерывая внешнюю транзакцию.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	var customerID *int64
	if id, ok := o.Owner.CustomerID(); ok {
		customerID = &id
	}
	toppings := o.Toppings
	if toppings == nil {
		toppings = []model.Selection{}
	}

	return r.savepoint(ctx, func(q querier) error {
		_, err := q.Exec(ctx,
			`INSERT INTO orders (`+orderColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			o.ID, customerID, o.TrackingCode, o.MenuCode, string(o.CupSize), o.Flavor.Name, o.Flavor.Weight, toppings,
			o.Pricing.BasePrice, o.Pricing.SizeSurcharge, o.Pricing.ToppingsSurcharge, o.Pricing.Total,
			string(o.Status), string(o.PaymentStatus), o.SpecialInstructions, o.IsFreeRedemption,
			o.Timestamps.Ordered, o.Timestamps.Prepared, o.Timestamps.Ready, o.Timestamps.Completed, o.Timestamps.Cancelled,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: order %s", ErrDuplicate, o.TrackingCode)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(r.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrderByTrackingCode возвращает заказ по коду отслеживания в каноническом виде.
func (r *PostgresRepository) GetOrderByTrackingCode(ctx context.Context, code string) (*model.Order, error) {
	o, err := scanOrder(r.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tracking_code = $1`,
		code,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrOrderNotFound, code)
		}
		return nil, fmt.Errorf("get order by tracking code: %w", err)
	}
	return o, nil
}

// ListOrders возвращает заказы, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE $1::text IS NULL OR status = $1::text
		 ORDER BY ordered_at DESC
		 LIMIT $2 OFFSET $3`,
		status, limit, f.Offset,
	)
}

// ListOrdersByCustomer возвращает заказы покупателя, новые первыми.
func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY ordered_at DESC`,
		customerID,
	)
}

// UpdateOrderStatus записывает новый статус, если текущий статус всё ещё равен from.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, from model.OrderStatus, o *model.Order) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE orders
		 SET status = $3, prepared_at = $4, ready_at = $5, completed_at = $6, cancelled_at = $7
		 WHERE id = $1 AND status = $2`,
		o.ID, string(from), string(o.Status),
		o.Timestamps.Prepared, o.Timestamps.Ready, o.Timestamps.Completed, o.Timestamps.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s is no longer %s", ErrConflict, o.ID, from)
	}
	return nil
}

// UpdatePaymentStatus записывает новый статус оплаты, если текущий всё ещё равен from.
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE orders SET payment_status = $3 WHERE id = $1 AND payment_status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s payment is no longer %s", ErrConflict, id, from)
	}
	return nil
}

// OrderStats агрегирует заказы по статусам и считает выручку оплаченных заказов.
func (r *PostgresRepository) OrderStats(ctx context.Context) (model.OrderStats, error) {
	stats := model.OrderStats{ByStatus: make(map[model.OrderStatus]int)}

	rows, err := r.q(ctx).Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("select order counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan order count: %w", err)
		}
		stats.ByStatus[model.OrderStatus(status)] = count
		stats.TotalOrders += count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("rows error: %w", err)
	}

	err = r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(total) FILTER (WHERE payment_status = $1), 0),
		        COUNT(*) FILTER (WHERE is_free_redemption)
		 FROM orders`,
		string(model.PaymentPaid),
	).Scan(&stats.PaidRevenue, &stats.FreeRedemptions)
	if err != nil {
		return stats, fmt.Errorf("sum revenue: %w", err)
	}

	return stats, nil
}
