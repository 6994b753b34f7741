// Package dashboard selects the orders an establishment operator sees on the
// live queue.
package dashboard

import (
	"time"

	"pharmago/internal/models"
	"pharmago/internal/schedule"
)

// VisibleOrders returns today's orders, or nothing at all while the store is
// closed. Hiding the live queue outside business hours is a business rule:
// it does not cancel orders or remove them from historical views. An order is
// "today's" when its PlacedAt shares the calendar date with `today` in the
// same location, not a rolling 24h window.
func VisibleOrders(all []models.Order, week models.WeeklySchedule, today time.Time) []models.Order {
	open, _ := schedule.IsOpen(week, today)
	if !open {
		return []models.Order{}
	}

	visible := make([]models.Order, 0, len(all))
	for _, o := range all {
		if sameLocalDay(o.PlacedAt.In(today.Location()), today) {
			visible = append(visible, o)
		}
	}
	return visible
}

func sameLocalDay(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}
