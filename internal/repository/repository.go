package repository

import (
	"context"

	"pharmago/internal/models"
)

// Orders persists order snapshots and guards status changes behind the
// lifecycle table.
type Orders interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByEstablishment(ctx context.Context, establishmentID string) ([]models.Order, error)
	// Transition re-reads the order, validates the move against the
	// lifecycle table and persists it atomically, so a stale client cannot
	// skip a state.
	Transition(ctx context.Context, id string, target models.OrderStatus) (*models.Order, error)
}

type Establishments interface {
	GetByID(ctx context.Context, id string) (*models.Establishment, error)
	// ReplaceHours swaps the whole week in one transaction; business hours
	// are never partially updated.
	ReplaceHours(ctx context.Context, id string, week models.WeeklySchedule) error
}

type Carts interface {
	GetByClient(ctx context.Context, clientID string) (*models.Cart, error)
	GetByID(ctx context.Context, cartID string) (*models.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

type Catalog interface {
	ItemsFor(ctx context.Context, establishmentID string) (map[string]models.CatalogItem, error)
}
