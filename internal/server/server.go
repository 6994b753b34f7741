package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"pharmago/internal/audit"
	"pharmago/internal/config"
	"pharmago/internal/idempotency"
	"pharmago/internal/middleware"
	"pharmago/internal/models"
	"pharmago/internal/pricing"
	"pharmago/internal/service"
	"pharmago/internal/session"
	"pharmago/internal/status"
)

type Server struct {
	svc       *service.OrderService
	idem      *idempotency.Store
	auditPool *audit.WorkerPool
	limiter   *middleware.RateLimiter
	jwtSecret []byte
	addr      string
}

func NewServer(svc *service.OrderService, idem *idempotency.Store, auditPool *audit.WorkerPool, cfg *config.Config) *Server {
	return &Server{
		svc:       svc,
		idem:      idem,
		auditPool: auditPool,
		limiter:   middleware.NewRateLimiter(20, 40),
		jwtSecret: []byte(cfg.JWTSecret),
		addr:      cfg.Addr(),
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)

	s.handleWith(mux, "/establishments/", s.handleEstablishments,
		[]string{"GET", "PATCH"}, []string{"GET", "PATCH"},
	)

	s.handleWith(mux, "/cart/", s.handleCart,
		[]string{"GET"}, []string{"GET"},
	)

	s.handleWith(mux, "/orders", s.handleOrders,
		[]string{"POST"}, []string{"POST"},
	)

	s.handleWith(mux, "/orders/", s.handleOrderOne,
		[]string{"GET", "PUT"}, []string{"GET", "PUT"},
	)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.limiter.Limit(mux)
}

func (s *Server) Run(handler http.Handler) error {
	log.Printf("server listening on %s...", s.addr)
	return http.ListenAndServe(s.addr, handler)
}

func (s *Server) handleWith(mux *http.ServeMux, path string,
	handlerFunc http.HandlerFunc,
	logMethods []string, authMethods []string,
) {
	finalHandler := middleware.LogMiddleware(s.auditPool, logMethods...)(
		middleware.Authenticate(s.jwtSecret, authMethods...)(
			handlerFunc,
		),
	)
	mux.Handle(path, finalHandler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEstablishments(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/establishments/")
	if rest == "" {
		http.Error(w, "missing ID", http.StatusBadRequest)
		return
	}
	switch {
	case r.Method == http.MethodGet:
		s.handleGetEstablishment(w, r, rest)
	case r.Method == http.MethodPatch && strings.HasSuffix(rest, "/hours"):
		s.handleReplaceHours(w, r, strings.TrimSuffix(rest, "/hours"))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type establishmentResponse struct {
	*models.Establishment
	Open bool `json:"aberto"`
}

func (s *Server) handleGetEstablishment(w http.ResponseWriter, r *http.Request, id string) {
	est, open, err := s.svc.EstablishmentStatus(r.Context(), id, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, establishmentResponse{Establishment: est, Open: open})
}

func (s *Server) handleReplaceHours(w http.ResponseWriter, r *http.Request, id string) {
	var payload struct {
		Hours models.WeeklySchedule `json:"business_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if err := s.svc.SaveHours(r.Context(), id, payload.Hours); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartResponse struct {
	*models.Cart
	models.PriceBreakdown
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := strings.TrimPrefix(r.URL.Path, "/cart/")
	if clientID == "" {
		http.Error(w, "missing client ID", http.StatusBadRequest)
		return
	}
	sess, _ := session.FromContext(r.Context())
	if sess.UserID != clientID && !sess.HasRole("admin") {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	c, breakdown, err := s.svc.PricedCart(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Cart: c, PriceBreakdown: breakdown})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var payload struct {
		CartID          string `json:"carrinho_id"`
		AddressID       string `json:"endereco_id"`
		PaymentMethodID string `json:"forma_pagamento_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.CartID == "" {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = idempotency.RequestHash(r.Method, r.URL.Path, sess.UserID, bytes.TrimSpace(body))
	}
	if existingID, err := s.idem.Claim(r.Context(), key); errors.Is(err, idempotency.ErrInFlight) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	} else if err != nil {
		log.Printf("idempotency claim error: %v", err)
	} else if existingID != "" {
		existing, err := s.svc.GetOrder(r.Context(), existingID)
		if err == nil && existing != nil {
			writeJSON(w, http.StatusOK, existing)
			return
		}
	}

	o, err := s.svc.Checkout(r.Context(), sess, service.CheckoutRequest{
		CartID:          payload.CartID,
		AddressID:       payload.AddressID,
		PaymentMethodID: payload.PaymentMethodID,
	})
	if err != nil {
		if relErr := s.idem.Release(r.Context(), key); relErr != nil {
			log.Printf("idempotency release error: %v", relErr)
		}
		writeError(w, err)
		return
	}
	if err := s.idem.Complete(r.Context(), key, o.ID); err != nil {
		log.Printf("idempotency complete error: %v", err)
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleOrderOne(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/orders/")
	if rest == "" {
		http.Error(w, "missing ID", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if strings.HasSuffix(rest, "/stats") {
			s.handleStats(w, r, strings.TrimSuffix(rest, "/stats"))
			return
		}
		s.handleListOrders(w, r, rest)
	case http.MethodPut:
		s.handleTransition(w, r, rest)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// establishmentAllowed gates the dashboard endpoints: a bearer only sees its
// own establishment unless it carries the admin role.
func establishmentAllowed(r *http.Request, establishmentID string) bool {
	sess, _ := session.FromContext(r.Context())
	return sess.EstablishmentID == establishmentID || sess.HasRole("admin")
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, establishmentID string) {
	if !establishmentAllowed(r, establishmentID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	live := r.URL.Query().Get("live") == "true"
	orders, err := s.svc.ListOrders(r.Context(), establishmentID, live)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, establishmentID string) {
	if !establishmentAllowed(r, establishmentID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	avg, delivered, err := s.svc.HandlingStats(r.Context(), establishmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tempo_medio_minutos": avg.Minutes(),
		"entregas":            delivered,
	})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, orderID string) {
	existing, err := s.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil && !establishmentAllowed(r, existing.EstablishmentID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	o, err := s.svc.Transition(r.Context(), orderID, payload.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, status.ErrIllegalTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, pricing.ErrInvalidLineItem), errors.Is(err, service.ErrEmptyCart):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrIncompleteWeek):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
