// Package status owns the order lifecycle: which transitions are legal and
// the handling-time statistic derived from delivered orders.
//
// The progression is AwaitingPayment -> InPreparation -> InTransit -> Delivered,
// with Cancelled reachable only before the order leaves the pharmacy.
// Delivered and Cancelled are terminal.
package status

import (
	"errors"
	"fmt"
	"time"

	"pharmago/internal/models"
)

// ErrIllegalTransition rejects a status change outside the transition table.
// The order is left untouched; the operator action surfaces the rejection.
var ErrIllegalTransition = errors.New("illegal status transition")

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusAwaitingPayment: {models.OrderStatusInPreparation, models.OrderStatusCancelled},
	models.OrderStatusInPreparation:   {models.OrderStatusInTransit, models.OrderStatusCancelled},
	models.OrderStatusInTransit:       {models.OrderStatusDelivered},
	models.OrderStatusDelivered:       {},
	models.OrderStatusCancelled:       {},
}

// IsTerminal reports whether no further transition is permitted.
func IsTerminal(s models.OrderStatus) bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to appears in the transition table.
func CanTransition(from, to models.OrderStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the legal next statuses for the given state.
func AllowedTargets(from models.OrderStatus) []models.OrderStatus {
	targets := transitions[from]
	out := make([]models.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// Transition returns a copy of the order moved to target with its
// LastUpdatedAt refreshed, or ErrIllegalTransition. The input order is never
// mutated.
func Transition(o models.Order, target models.OrderStatus, now time.Time) (models.Order, error) {
	if !CanTransition(o.Status, target) {
		return models.Order{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, target)
	}
	moved := o
	moved.Status = target
	moved.LastUpdatedAt = now.UTC()
	return moved, nil
}

// AverageHandlingTime is the mean of LastUpdatedAt - PlacedAt over orders
// that reached Delivered. Orders with missing or inverted timestamps are
// excluded from the average, not counted as zero. The second return is false
// when no order qualifies.
func AverageHandlingTime(orders []models.Order) (time.Duration, bool) {
	var total time.Duration
	var n int
	for _, o := range orders {
		if o.Status != models.OrderStatusDelivered {
			continue
		}
		if o.PlacedAt.IsZero() || o.LastUpdatedAt.IsZero() || o.LastUpdatedAt.Before(o.PlacedAt) {
			continue
		}
		total += o.LastUpdatedAt.Sub(o.PlacedAt)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / time.Duration(n), true
}
