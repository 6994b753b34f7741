package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmago/internal/models"
	"pharmago/internal/repository"
	"pharmago/internal/status"
)

func newOrder(id string) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		ID:              id,
		EstablishmentID: "est1",
		ClientID:        "client1",
		Status:          models.OrderStatusAwaitingPayment,
		Subtotal:        decimal.RequireFromString("29.20"),
		DeliveryFee:     decimal.RequireFromString("10"),
		Total:           decimal.RequireFromString("39.20"),
		PlacedAt:        now,
		LastUpdatedAt:   now,
	}
}

func TestMemoryStoreOrders(t *testing.T) {
	st, err := repository.NewMemoryStore("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newOrder("o1")))
	assert.Error(t, st.Create(ctx, newOrder("o1")), "duplicate IDs are rejected")

	got, err := st.GetByID(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.OrderStatusAwaitingPayment, got.Status)

	missing, err := st.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := st.ListByEstablishment(ctx, "est1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStoreTransition(t *testing.T) {
	st, err := repository.NewMemoryStore("")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, newOrder("o1")))

	moved, err := st.Transition(ctx, "o1", models.OrderStatusInPreparation)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusInPreparation, moved.Status)

	// Illegal move: the stored order is untouched.
	_, err = st.Transition(ctx, "o1", models.OrderStatusDelivered)
	assert.ErrorIs(t, err, status.ErrIllegalTransition)
	got, err := st.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusInPreparation, got.Status)

	unknown, err := st.Transition(ctx, "nope", models.OrderStatusInPreparation)
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestMemoryStorePersistsToFile(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "orders.json")

	st, err := repository.NewMemoryStore(dataFile)
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), newOrder("o1")))

	reopened, err := repository.NewMemoryStore(dataFile)
	require.NoError(t, err)
	got, err := reopened.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("39.20")))

	_, err = os.Stat(dataFile)
	assert.NoError(t, err)
}
