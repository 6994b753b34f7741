package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusInPreparation   OrderStatus = "in_preparation"
	OrderStatusInTransit       OrderStatus = "in_transit"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Wire labels are the human-readable status strings the upstream API speaks.
var statusLabels = map[OrderStatus]string{
	OrderStatusAwaitingPayment: "Aguardando pagamento",
	OrderStatusInPreparation:   "Em preparação",
	OrderStatusInTransit:       "Em trânsito",
	OrderStatusDelivered:       "Entregue",
	OrderStatusCancelled:       "Cancelado",
}

var labelStatuses = func() map[string]OrderStatus {
	m := make(map[string]OrderStatus, len(statusLabels))
	for s, l := range statusLabels {
		m[l] = s
	}
	return m
}()

func (s OrderStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return statusLabels[OrderStatusAwaitingPayment]
}

// StatusFromLabel decodes an upstream status string. The second return is
// false for unrecognized labels, in which case the status defaults to
// OrderStatusAwaitingPayment; the caller decides whether to log.
func StatusFromLabel(label string) (OrderStatus, bool) {
	if s, ok := labelStatuses[label]; ok {
		return s, true
	}
	return OrderStatusAwaitingPayment, false
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.Label() + `"`), nil
}

func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	label := string(b)
	if len(label) >= 2 && label[0] == '"' {
		label = label[1 : len(label)-1]
	}
	decoded, _ := StatusFromLabel(label)
	*s = decoded
	return nil
}

// DaySchedule is one weekday's opening window. Weekday 0 is Sunday.
// Times are wall-clock "HH:MM", optionally "HH:MM:SS" on the wire.
type DaySchedule struct {
	Weekday   int    `json:"dia"`
	Closed    bool   `json:"fechado"`
	OpenTime  string `json:"horario_abertura"`
	CloseTime string `json:"horario_fechamento"`
}

// WeeklySchedule holds one DaySchedule per weekday. An empty schedule means
// the establishment has not configured business hours yet.
type WeeklySchedule []DaySchedule

// ByWeekday returns the entry for the given weekday, if configured.
func (w WeeklySchedule) ByWeekday(weekday int) (DaySchedule, bool) {
	for _, d := range w {
		if d.Weekday == weekday {
			return d, true
		}
	}
	return DaySchedule{}, false
}

// Validate checks the full-week invariant: exactly one entry per weekday
// 0..6. Saves always replace the whole week, never a partial update.
func (w WeeklySchedule) Validate() error {
	if len(w) != 7 {
		return ErrIncompleteWeek
	}
	var seen [7]bool
	for _, d := range w {
		if d.Weekday < 0 || d.Weekday > 6 || seen[d.Weekday] {
			return ErrIncompleteWeek
		}
		seen[d.Weekday] = true
	}
	return nil
}

type DeliveryPolicy struct {
	FeeAmount     decimal.Decimal `json:"taxa_entrega"`
	FreeThreshold decimal.Decimal `json:"valor_minimo_entrega"`
}

type Establishment struct {
	ID       string         `json:"id"`
	Name     string         `json:"nome"`
	Timezone string         `json:"timezone,omitempty"`
	Hours    WeeklySchedule `json:"business_hours"`
	Delivery DeliveryPolicy `json:"politica_entrega"`
}

// Location resolves the establishment's IANA timezone, falling back to the
// server's local zone when unset or unknown.
func (e *Establishment) Location() *time.Location {
	if e.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type CatalogItem struct {
	ID              string          `json:"id"`
	EstablishmentID string          `json:"estabelecimento_id"`
	Name            string          `json:"nome"`
	UnitPrice       decimal.Decimal `json:"preco_unitario"`
	Active          bool            `json:"ativo"`
}

// CartLine is a priced cart entry, the pricing input shape.
type CartLine struct {
	CatalogItemID   string          `json:"item_id"`
	Name            string          `json:"nome"`
	UnitPrice       decimal.Decimal `json:"preco_unitario"`
	Quantity        int             `json:"quantidade"`
	EstablishmentID string          `json:"estabelecimento_id"`
}

// Cart is scoped to a single establishment; every line shares EstablishmentID.
type Cart struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"cliente_id"`
	EstablishmentID string     `json:"estabelecimento_id"`
	Lines           []CartLine `json:"itens"`
}

type PriceBreakdown struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"taxa_entrega"`
	Total       decimal.Decimal `json:"valor_total"`
}

type OrderItem struct {
	CatalogItemID string          `json:"item_id"`
	Name          string          `json:"nome"`
	UnitPrice     decimal.Decimal `json:"preco_unitario"`
	Quantity      int             `json:"quantidade"`
}

// Order is a checkout-time snapshot of a cart. Items are copied, never
// referenced: the cart may mutate or be cleared independently.
type Order struct {
	ID              string          `json:"id"`
	EstablishmentID string          `json:"estabelecimento_id"`
	ClientID        string          `json:"cliente_id"`
	AddressID       string          `json:"endereco_id"`
	PaymentMethodID string          `json:"forma_pagamento_id"`
	Items           []OrderItem     `json:"itens"`
	Status          OrderStatus     `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DeliveryFee     decimal.Decimal `json:"taxa_entrega"`
	Total           decimal.Decimal `json:"valor_total"`
	PlacedAt        time.Time       `json:"criado_em"`
	LastUpdatedAt   time.Time       `json:"atualizado_em"`
}
