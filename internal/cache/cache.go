package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"pharmago/internal/models"
	"pharmago/internal/repository"
)

// LiveOrdersCache keeps each establishment's recent orders so dashboard
// polling does not hit the database on every tick. Availability itself is
// never cached; only the order rows are.
type LiveOrdersCache struct {
	mu     sync.RWMutex
	orders map[string][]models.Order
}

func NewLiveOrdersCache() *LiveOrdersCache {
	return &LiveOrdersCache{
		orders: make(map[string][]models.Order),
	}
}

func (c *LiveOrdersCache) Get(establishmentID string) ([]models.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	orders, ok := c.orders[establishmentID]
	return orders, ok
}

func (c *LiveOrdersCache) Set(establishmentID string, orders []models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[establishmentID] = orders
}

// Invalidate drops the establishment's entry after a write (new order or a
// status change).
func (c *LiveOrdersCache) Invalidate(establishmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, establishmentID)
}

// DeliveredCache holds the delivered-order history used by the handling-time
// statistic; it refreshes in the background rather than per request.
type DeliveredCache struct {
	mu     sync.RWMutex
	orders map[string][]models.Order
}

func NewDeliveredCache() *DeliveredCache {
	return &DeliveredCache{
		orders: make(map[string][]models.Order),
	}
}

func (c *DeliveredCache) Get(establishmentID string) ([]models.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	orders, ok := c.orders[establishmentID]
	return orders, ok
}

func (c *DeliveredCache) Refresh(ctx context.Context, repo repository.Orders, establishmentID string) error {
	all, err := repo.ListByEstablishment(ctx, establishmentID)
	if err != nil {
		return err
	}
	delivered := make([]models.Order, 0, len(all))
	for _, o := range all {
		if o.Status == models.OrderStatusDelivered {
			delivered = append(delivered, o)
		}
	}
	c.mu.Lock()
	c.orders[establishmentID] = delivered
	c.mu.Unlock()
	return nil
}

// StartAutoRefresh refreshes every tracked establishment on a fixed interval
// until ctx is cancelled.
func (c *DeliveredCache) StartAutoRefresh(ctx context.Context, repo repository.Orders, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.RLock()
			ids := make([]string, 0, len(c.orders))
			for id := range c.orders {
				ids = append(ids, id)
			}
			c.mu.RUnlock()
			// A failed refresh keeps the previous snapshot; the next tick
			// tries again.
			for _, id := range ids {
				if err := c.Refresh(ctx, repo, id); err != nil {
					log.Printf("stats cache: refresh %s failed: %v", id, err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
