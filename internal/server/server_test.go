package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmago/internal/audit"
	"pharmago/internal/cache"
	"pharmago/internal/config"
	"pharmago/internal/idempotency"
	"pharmago/internal/middleware"
	"pharmago/internal/models"
	"pharmago/internal/repository"
	"pharmago/internal/server"
	"pharmago/internal/service"
)

const testSecret = "test-secret"

func bearer(t *testing.T, userID, establishmentID string, roles ...string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID:          userID,
		EstablishmentID: establishmentID,
		Roles:           roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func alwaysOpenWeek() models.WeeklySchedule {
	week := make(models.WeeklySchedule, 0, 7)
	for d := 0; d < 7; d++ {
		week = append(week, models.DaySchedule{Weekday: d, OpenTime: "00:00", CloseTime: "23:59"})
	}
	return week
}

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryStore) {
	t.Helper()
	store, err := repository.NewMemoryStore("")
	require.NoError(t, err)

	store.SeedEstablishment(models.Establishment{
		ID:    "est1",
		Name:  "Farmácia Central",
		Hours: alwaysOpenWeek(),
		Delivery: models.DeliveryPolicy{
			FeeAmount:     decimal.RequireFromString("10"),
			FreeThreshold: decimal.RequireFromString("50"),
		},
	})
	store.SeedCatalogItem(models.CatalogItem{
		ID: "dipirona", EstablishmentID: "est1", Name: "Dipirona 500mg",
		UnitPrice: decimal.RequireFromString("12.50"), Active: true,
	})
	store.SeedCatalogItem(models.CatalogItem{
		ID: "soro", EstablishmentID: "est1", Name: "Soro fisiológico",
		UnitPrice: decimal.RequireFromString("4.20"), Active: true,
	})
	store.SeedCart(models.Cart{
		ID: "cart1", ClientID: "client1", EstablishmentID: "est1",
		Lines: []models.CartLine{
			{CatalogItemID: "dipirona", Name: "Dipirona 500mg", Quantity: 2},
			{CatalogItemID: "soro", Name: "Soro fisiológico", Quantity: 1},
		},
	})

	pool := audit.NewWorkerPool(audit.PoolConfig{BatchSize: 8, Timeout: time.Second, ChannelSize: 64},
		&audit.StdoutProcessor{})
	svc := service.NewOrderService(
		store, store.AsEstablishments(), store.AsCarts(), store,
		cache.NewLiveOrdersCache(), cache.NewDeliveredCache(), pool,
	)
	cfg := &config.Config{HTTPPort: "0", JWTSecret: testSecret}
	srv := server.NewServer(svc, idempotency.NewStore(""), pool, cfg)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, store
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestGetEstablishment(t *testing.T) {
	ts, _ := newTestServer(t)
	token := bearer(t, "client1", "")

	resp := doJSON(t, http.MethodGet, ts.URL+"/establishments/est1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		ID    string                `json:"id"`
		Open  bool                  `json:"aberto"`
		Hours models.WeeklySchedule `json:"business_hours"`
	}
	decodeInto(t, resp, &got)
	assert.Equal(t, "est1", got.ID)
	assert.True(t, got.Open)
	assert.Len(t, got.Hours, 7)
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/establishments/est1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/establishments/est1", "Bearer not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestGetUnknownEstablishment(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/establishments/nope", bearer(t, "client1", ""), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestReplaceHours(t *testing.T) {
	ts, store := newTestServer(t)
	token := bearer(t, "op1", "est1")

	short := map[string]any{"business_hours": models.WeeklySchedule{
		{Weekday: 0, Closed: true},
	}}
	resp := doJSON(t, http.MethodPatch, ts.URL+"/establishments/est1/hours", token, short)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	week := alwaysOpenWeek()
	week[0].Closed = true
	resp = doJSON(t, http.MethodPatch, ts.URL+"/establishments/est1/hours", token,
		map[string]any{"business_hours": week})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	est, err := store.GetEstablishment(nil, "est1")
	require.NoError(t, err)
	day, ok := est.Hours.ByWeekday(0)
	require.True(t, ok)
	assert.True(t, day.Closed)
}

func TestGetCartPricesFromCatalog(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/cart/client1", bearer(t, "client1", ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Lines []models.CartLine `json:"itens"`
		models.PriceBreakdown
	}
	decodeInto(t, resp, &got)
	require.Len(t, got.Lines, 2)
	// 2*12.50 + 4.20 = 29.20; below the 50 threshold, fee applies.
	assert.Equal(t, "29.20", got.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", got.DeliveryFee.StringFixed(2))
	assert.Equal(t, "39.20", got.Total.StringFixed(2))
}

func TestGetCartForbiddenForOtherClient(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/cart/client1", bearer(t, "client2", ""), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestCheckoutCreatesOrderSnapshot(t *testing.T) {
	ts, store := newTestServer(t)
	token := bearer(t, "client1", "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", token, map[string]string{
		"carrinho_id":        "cart1",
		"endereco_id":        "addr1",
		"forma_pagamento_id": "pix",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var o models.Order
	decodeInto(t, resp, &o)
	assert.Equal(t, models.OrderStatusAwaitingPayment, o.Status)
	assert.Equal(t, "est1", o.EstablishmentID)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "39.20", o.Total.StringFixed(2))

	// The cart is cleared: a second checkout has nothing to snapshot.
	cart, err := store.GetCartByID(nil, "cart1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	resp = doJSON(t, http.MethodPost, ts.URL+"/orders", token, map[string]string{
		"carrinho_id": "cart1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCheckoutForbiddenForOtherClientsCart(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", bearer(t, "client2", ""), map[string]string{
		"carrinho_id": "cart1",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestTransitionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	clientToken := bearer(t, "client1", "")
	opToken := bearer(t, "op1", "est1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", clientToken, map[string]string{
		"carrinho_id": "cart1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var o models.Order
	decodeInto(t, resp, &o)

	put := func(label string) *http.Response {
		return doJSON(t, http.MethodPut, ts.URL+"/orders/"+o.ID, opToken, map[string]string{"status": label})
	}

	resp = put("Em preparação")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &o)
	assert.Equal(t, models.OrderStatusInPreparation, o.Status)

	resp = put("Em trânsito")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Cancelling an order already out for delivery is blocked.
	resp = put("Cancelado")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = put("Entregue")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Terminal: nothing else is accepted.
	resp = put("Em preparação")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestTransitionUnknownLabelRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", bearer(t, "client1", ""), map[string]string{
		"carrinho_id": "cart1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var o models.Order
	decodeInto(t, resp, &o)

	// An unrecognized label decodes to the initial state, which is never a
	// legal transition target.
	resp = doJSON(t, http.MethodPut, ts.URL+"/orders/"+o.ID, bearer(t, "op1", "est1"),
		map[string]string{"status": "Status misterioso"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestOrderListScopedToOwnEstablishment(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", bearer(t, "client1", ""), map[string]string{
		"carrinho_id": "cart1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// An operator of another pharmacy sees nothing here.
	otherOp := bearer(t, "op9", "est9")
	resp = doJSON(t, http.MethodGet, ts.URL+"/orders/est1", otherOp, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/orders/est1/stats", otherOp, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Admins cross establishment boundaries.
	resp = doJSON(t, http.MethodGet, ts.URL+"/orders/est1", bearer(t, "root", "", "admin"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestTransitionScopedToOwnEstablishment(t *testing.T) {
	ts, store := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", bearer(t, "client1", ""), map[string]string{
		"carrinho_id": "cart1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var o models.Order
	decodeInto(t, resp, &o)

	resp = doJSON(t, http.MethodPut, ts.URL+"/orders/"+o.ID, bearer(t, "op9", "est9"),
		map[string]string{"status": "Em preparação"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// The order did not move.
	stored, err := store.GetByID(nil, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAwaitingPayment, stored.Status)
}

func TestListOrdersLiveFilter(t *testing.T) {
	ts, store := newTestServer(t)
	opToken := bearer(t, "op1", "est1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", bearer(t, "client1", ""), map[string]string{
		"carrinho_id": "cart1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// A week-old order shows in the full list but not on the live queue.
	old := time.Now().UTC().Add(-7 * 24 * time.Hour)
	require.NoError(t, store.Create(nil, &models.Order{
		ID: "old1", EstablishmentID: "est1", ClientID: "client9",
		Status: models.OrderStatusDelivered, PlacedAt: old, LastUpdatedAt: old.Add(time.Hour),
	}))

	resp = doJSON(t, http.MethodGet, ts.URL+"/orders/est1", opToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []models.Order
	decodeInto(t, resp, &all)
	assert.Len(t, all, 2)

	resp = doJSON(t, http.MethodGet, ts.URL+"/orders/est1?live=true", opToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var live []models.Order
	decodeInto(t, resp, &live)
	require.Len(t, live, 1)
	assert.NotEqual(t, "old1", live[0].ID)
}

func TestListOrdersLiveEmptyWhileClosed(t *testing.T) {
	ts, store := newTestServer(t)
	opToken := bearer(t, "op1", "est1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/orders", bearer(t, "client1", ""), map[string]string{
		"carrinho_id": "cart1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	closed := alwaysOpenWeek()
	for i := range closed {
		closed[i].Closed = true
	}
	require.NoError(t, store.ReplaceHours(nil, "est1", closed))

	resp = doJSON(t, http.MethodGet, ts.URL+"/orders/est1?live=true", opToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var live []models.Order
	decodeInto(t, resp, &live)
	assert.Empty(t, live)
}

func TestHandlingStats(t *testing.T) {
	ts, store := newTestServer(t)

	base := time.Now().UTC().Add(-48 * time.Hour)
	for i, d := range []time.Duration{30 * time.Minute, 90 * time.Minute} {
		require.NoError(t, store.Create(nil, &models.Order{
			ID: "done" + string(rune('1'+i)), EstablishmentID: "est1", ClientID: "client9",
			Status: models.OrderStatusDelivered, PlacedAt: base, LastUpdatedAt: base.Add(d),
		}))
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/orders/est1/stats", bearer(t, "op1", "est1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		AvgMinutes float64 `json:"tempo_medio_minutos"`
		Deliveries int     `json:"entregas"`
	}
	decodeInto(t, resp, &got)
	assert.InDelta(t, 60.0, got.AvgMinutes, 0.01)
	assert.Equal(t, 2, got.Deliveries)
}

func TestHealthNoAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
