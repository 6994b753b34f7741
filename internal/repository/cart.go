package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pharmago/internal/models"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) GetByClient(ctx context.Context, clientID string) (*models.Cart, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, client_id, establishment_id
		FROM carts WHERE client_id=$1`, clientID)
	return r.scanCart(ctx, row)
}

func (r *CartRepository) GetByID(ctx context.Context, cartID string) (*models.Cart, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, client_id, establishment_id
		FROM carts WHERE id=$1`, cartID)
	return r.scanCart(ctx, row)
}

func (r *CartRepository) scanCart(ctx context.Context, row *sql.Row) (*models.Cart, error) {
	c := &models.Cart{}
	err := row.Scan(&c.ID, &c.ClientID, &c.EstablishmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	// Raw lines only: the aggregator resolves the current unit price from
	// the catalog at read time.
	rows, err := r.db.QueryContext(ctx, `SELECT ci.catalog_item_id, i.name, ci.quantity
		FROM cart_items ci JOIN catalog_items i ON i.id = ci.catalog_item_id
		WHERE ci.cart_id=$1`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.CatalogItemID, &l.Name, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		l.EstablishmentID = c.EstablishmentID
		c.Lines = append(c.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	return c, nil
}

func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ItemsFor(ctx context.Context, establishmentID string) (map[string]models.CatalogItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, establishment_id, name, unit_price, active
		FROM catalog_items WHERE establishment_id=$1 AND active`, establishmentID)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	items := make(map[string]models.CatalogItem)
	for rows.Next() {
		var it models.CatalogItem
		if err := rows.Scan(&it.ID, &it.EstablishmentID, &it.Name, &it.UnitPrice, &it.Active); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return items, nil
}
