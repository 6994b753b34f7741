package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pharmago/internal/models"
	"pharmago/internal/status"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create order: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO orders (
			id, establishment_id, client_id, address_id, payment_method_id,
			status, subtotal, delivery_fee, total, placed_at, last_updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.EstablishmentID, o.ClientID, o.AddressID, o.PaymentMethodID,
		string(o.Status), o.Subtotal, o.DeliveryFee, o.Total, o.PlacedAt, o.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO order_items (
				order_id, catalog_item_id, name, unit_price, quantity
			) VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.CatalogItemID, it.Name, it.UnitPrice, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create order: commit: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT
			id, establishment_id, client_id, address_id, payment_method_id,
			status, subtotal, delivery_fee, total, placed_at, last_updated_at
		FROM orders WHERE id=$1`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) ListByEstablishment(ctx context.Context, establishmentID string) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
			id, establishment_id, client_id, address_id, payment_method_id,
			status, subtotal, delivery_fee, total, placed_at, last_updated_at
		FROM orders WHERE establishment_id=$1 ORDER BY placed_at DESC`, establishmentID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var res []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	for i := range res {
		if err := r.loadItems(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *OrderRepository) Transition(ctx context.Context, id string, target models.OrderStatus) (*models.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("transition order: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT
			id, establishment_id, client_id, address_id, payment_method_id,
			status, subtotal, delivery_fee, total, placed_at, last_updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}

	moved, err := status.Transition(*o, target, time.Now())
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE orders SET status=$1, last_updated_at=$2 WHERE id=$3`,
		string(moved.Status), moved.LastUpdatedAt, moved.ID)
	if err != nil {
		return nil, fmt.Errorf("transition order: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transition order: commit: %w", err)
	}
	if err := r.loadItems(ctx, &moved); err != nil {
		return nil, err
	}
	return &moved, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := r.db.QueryContext(ctx, `SELECT catalog_item_id, name, unit_price, quantity
		FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	o.Items = nil
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.CatalogItemID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var st string
	err := row.Scan(
		&o.ID, &o.EstablishmentID, &o.ClientID, &o.AddressID, &o.PaymentMethodID,
		&st, &o.Subtotal, &o.DeliveryFee, &o.Total, &o.PlacedAt, &o.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(st)
	return o, nil
}
