package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pharmago/internal/audit"
	"pharmago/internal/cache"
	"pharmago/internal/cart"
	"pharmago/internal/dashboard"
	"pharmago/internal/models"
	"pharmago/internal/pricing"
	"pharmago/internal/repository"
	"pharmago/internal/schedule"
	"pharmago/internal/session"
	"pharmago/internal/status"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrEmptyCart = errors.New("cart is empty")
	ErrForbidden = errors.New("cart belongs to another client")
)

type OrderService struct {
	orders         repository.Orders
	establishments repository.Establishments
	carts          repository.Carts
	catalog        repository.Catalog
	live           *cache.LiveOrdersCache
	delivered      *cache.DeliveredCache
	auditPool      *audit.WorkerPool
}

func NewOrderService(
	orders repository.Orders,
	establishments repository.Establishments,
	carts repository.Carts,
	catalog repository.Catalog,
	live *cache.LiveOrdersCache,
	delivered *cache.DeliveredCache,
	auditPool *audit.WorkerPool,
) *OrderService {
	return &OrderService{
		orders:         orders,
		establishments: establishments,
		carts:          carts,
		catalog:        catalog,
		live:           live,
		delivered:      delivered,
		auditPool:      auditPool,
	}
}

// catalogMap adapts a repository item map to the aggregator's lookup.
type catalogMap map[string]models.CatalogItem

func (m catalogMap) UnitPrice(catalogItemID string) (decimal.Decimal, bool) {
	it, ok := m[catalogItemID]
	return it.UnitPrice, ok
}

// PricedCart returns the client's cart with line prices resolved from the
// catalog and the computed breakdown. A client without a cart gets an empty
// cart and a zeroed breakdown; the screen always renders some total.
func (s *OrderService) PricedCart(ctx context.Context, clientID string) (*models.Cart, models.PriceBreakdown, error) {
	c, err := s.carts.GetByClient(ctx, clientID)
	if err != nil {
		return nil, models.PriceBreakdown{}, err
	}
	if c == nil {
		return &models.Cart{ClientID: clientID}, models.PriceBreakdown{}, nil
	}
	lines, breakdown, err := s.priceCart(ctx, c)
	if err != nil {
		return nil, models.PriceBreakdown{}, err
	}
	c.Lines = lines
	return c, breakdown, nil
}

func (s *OrderService) priceCart(ctx context.Context, c *models.Cart) ([]models.CartLine, models.PriceBreakdown, error) {
	est, err := s.establishments.GetByID(ctx, c.EstablishmentID)
	if err != nil {
		return nil, models.PriceBreakdown{}, err
	}
	if est == nil {
		return nil, models.PriceBreakdown{}, fmt.Errorf("establishment %s: %w", c.EstablishmentID, ErrNotFound)
	}

	items, err := s.catalog.ItemsFor(ctx, c.EstablishmentID)
	if err != nil {
		return nil, models.PriceBreakdown{}, err
	}
	lines, missing := cart.ToLineItems(*c, catalogMap(items))
	for _, id := range missing {
		log.Printf("cart %s: item %s no longer in catalog, dropped", c.ID, id)
	}

	breakdown, err := pricing.ComputeTotals(lines, est.Delivery)
	if err != nil {
		return nil, models.PriceBreakdown{}, err
	}
	return lines, breakdown, nil
}

type CheckoutRequest struct {
	CartID          string
	AddressID       string
	PaymentMethodID string
}

// Checkout snapshots the cart into a new order in AwaitingPayment and clears
// the cart. Line items are copied, so later cart mutations cannot touch the
// order.
func (s *OrderService) Checkout(ctx context.Context, sess session.Session, req CheckoutRequest) (*models.Order, error) {
	c, err := s.carts.GetByID(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("cart %s: %w", req.CartID, ErrNotFound)
	}
	if c.ClientID != sess.UserID {
		return nil, ErrForbidden
	}

	lines, breakdown, err := s.priceCart(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	now := time.Now().UTC()
	o := &models.Order{
		ID:              uuid.NewString(),
		EstablishmentID: c.EstablishmentID,
		ClientID:        c.ClientID,
		AddressID:       req.AddressID,
		PaymentMethodID: req.PaymentMethodID,
		Status:          models.OrderStatusAwaitingPayment,
		Subtotal:        breakdown.Subtotal,
		DeliveryFee:     breakdown.DeliveryFee,
		Total:           breakdown.Total,
		PlacedAt:        now,
		LastUpdatedAt:   now,
	}
	for _, l := range lines {
		o.Items = append(o.Items, models.OrderItem{
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			UnitPrice:     l.UnitPrice,
			Quantity:      l.Quantity,
		})
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		log.Printf("order %s: failed to clear cart %s: %v", o.ID, c.ID, err)
	}
	s.live.Invalidate(o.EstablishmentID)
	s.auditPool.Log(audit.Record{
		Timestamp: now,
		OrderID:   o.ID,
		NewStatus: string(o.Status),
		Message:   "order placed",
	})
	return o, nil
}

// Transition moves the order to the status named by the upstream label. The
// move is pre-validated against the lifecycle table inside the repository
// transaction; an illegal move leaves the order untouched.
func (s *OrderService) Transition(ctx context.Context, orderID, label string) (*models.Order, error) {
	target, ok := models.StatusFromLabel(label)
	if !ok {
		log.Printf("order %s: unrecognized status label %q, treating as %s", orderID, label, target)
	}

	before, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}

	moved, err := s.orders.Transition(ctx, orderID, target)
	if err != nil {
		return nil, err
	}
	if moved == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}

	s.live.Invalidate(moved.EstablishmentID)
	s.auditPool.Log(audit.Record{
		Timestamp: moved.LastUpdatedAt,
		OrderID:   moved.ID,
		OldStatus: string(before.Status),
		NewStatus: string(moved.Status),
		Message:   "status changed",
	})
	return moved, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListOrders returns the establishment's orders; with live=true only today's
// orders are returned, and none at all while the store is closed.
func (s *OrderService) ListOrders(ctx context.Context, establishmentID string, live bool) ([]models.Order, error) {
	est, err := s.establishments.GetByID(ctx, establishmentID)
	if err != nil {
		return nil, err
	}
	if est == nil {
		return nil, fmt.Errorf("establishment %s: %w", establishmentID, ErrNotFound)
	}

	orders, ok := s.live.Get(establishmentID)
	if !ok {
		orders, err = s.orders.ListByEstablishment(ctx, establishmentID)
		if err != nil {
			return nil, err
		}
		s.live.Set(establishmentID, orders)
	}
	if !live {
		return orders, nil
	}

	today := time.Now().In(est.Location())
	if _, warns := schedule.IsOpen(est.Hours, today); len(warns) > 0 {
		for _, w := range warns {
			log.Printf("establishment %s: %s", establishmentID, w)
		}
	}
	return dashboard.VisibleOrders(orders, est.Hours, today), nil
}

// HandlingStats reports the average handling time over delivered orders.
func (s *OrderService) HandlingStats(ctx context.Context, establishmentID string) (time.Duration, int, error) {
	delivered, ok := s.delivered.Get(establishmentID)
	if !ok {
		if err := s.delivered.Refresh(ctx, s.orders, establishmentID); err != nil {
			return 0, 0, err
		}
		delivered, _ = s.delivered.Get(establishmentID)
	}
	avg, ok := status.AverageHandlingTime(delivered)
	if !ok {
		return 0, 0, nil
	}
	return avg, len(delivered), nil
}

// EstablishmentStatus loads the establishment and evaluates availability at
// `now` in its own timezone. Schedule warnings are logged, never returned as
// errors; the caller always gets a definite open/closed answer.
func (s *OrderService) EstablishmentStatus(ctx context.Context, id string, now time.Time) (*models.Establishment, bool, error) {
	est, err := s.establishments.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if est == nil {
		return nil, false, fmt.Errorf("establishment %s: %w", id, ErrNotFound)
	}
	open, warns := schedule.IsOpen(est.Hours, now.In(est.Location()))
	for _, w := range warns {
		log.Printf("establishment %s: %s", id, w)
	}
	return est, open, nil
}

// SaveHours bulk-replaces the week after checking the one-entry-per-weekday
// invariant.
func (s *OrderService) SaveHours(ctx context.Context, id string, week models.WeeklySchedule) error {
	if err := week.Validate(); err != nil {
		return err
	}
	est, err := s.establishments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if est == nil {
		return fmt.Errorf("establishment %s: %w", id, ErrNotFound)
	}
	return s.establishments.ReplaceHours(ctx, id, week)
}
