package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"pharmago/internal/models"
	"pharmago/internal/status"
)

// MemoryStore is a file-backed store used in dev mode (empty APP_DSN) and in
// tests. It implements the same interfaces as the Postgres repositories;
// every mutation is flushed to the data file so restarts keep state.
type MemoryStore struct {
	mu             sync.RWMutex
	dataFile       string
	Establishments map[string]*models.Establishment `json:"establishments"`
	CatalogItems   map[string]*models.CatalogItem   `json:"catalog_items"`
	Carts          map[string]*models.Cart          `json:"carts"`
	Orders         map[string]*models.Order         `json:"orders"`
}

func NewMemoryStore(dataFile string) (*MemoryStore, error) {
	st := &MemoryStore{
		dataFile:       dataFile,
		Establishments: make(map[string]*models.Establishment),
		CatalogItems:   make(map[string]*models.CatalogItem),
		Carts:          make(map[string]*models.Cart),
		Orders:         make(map[string]*models.Order),
	}
	if dataFile != "" {
		if err := st.loadFromFile(); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (st *MemoryStore) loadFromFile() error {
	file, err := os.OpenFile(st.dataFile, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return nil
	}
	if err := json.NewDecoder(file).Decode(st); err != nil {
		return fmt.Errorf("decode data file: %w", err)
	}
	return nil
}

func (st *MemoryStore) saveToFile() error {
	if st.dataFile == "" {
		return nil
	}
	file, err := os.OpenFile(st.dataFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func (st *MemoryStore) Create(_ context.Context, o *models.Order) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.Orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	cp := *o
	st.Orders[o.ID] = &cp
	return st.saveToFile()
}

func (st *MemoryStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	o, ok := st.Orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (st *MemoryStore) ListByEstablishment(_ context.Context, establishmentID string) ([]models.Order, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var res []models.Order
	for _, o := range st.Orders {
		if o.EstablishmentID == establishmentID {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (st *MemoryStore) Transition(_ context.Context, id string, target models.OrderStatus) (*models.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.Orders[id]
	if !ok {
		return nil, nil
	}
	moved, err := status.Transition(*o, target, time.Now())
	if err != nil {
		return nil, err
	}
	st.Orders[id] = &moved
	if err := st.saveToFile(); err != nil {
		return nil, err
	}
	cp := moved
	return &cp, nil
}

func (st *MemoryStore) GetEstablishment(_ context.Context, id string) (*models.Establishment, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.Establishments[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (st *MemoryStore) ReplaceHours(_ context.Context, id string, week models.WeeklySchedule) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.Establishments[id]
	if !ok {
		return fmt.Errorf("establishment %s not found", id)
	}
	e.Hours = append(models.WeeklySchedule(nil), week...)
	return st.saveToFile()
}

func (st *MemoryStore) GetCartByClient(_ context.Context, clientID string) (*models.Cart, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, c := range st.Carts {
		if c.ClientID == clientID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (st *MemoryStore) GetCartByID(_ context.Context, cartID string) (*models.Cart, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	c, ok := st.Carts[cartID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (st *MemoryStore) ClearCart(_ context.Context, cartID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if c, ok := st.Carts[cartID]; ok {
		c.Lines = nil
	}
	return st.saveToFile()
}

func (st *MemoryStore) ItemsFor(_ context.Context, establishmentID string) (map[string]models.CatalogItem, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	items := make(map[string]models.CatalogItem)
	for _, it := range st.CatalogItems {
		if it.EstablishmentID == establishmentID && it.Active {
			items[it.ID] = *it
		}
	}
	return items, nil
}

// Adapters reconciling the MemoryStore method set with the repository
// interfaces (the Postgres types use the same names for different records).

type memoryEstablishments struct{ *MemoryStore }

func (m memoryEstablishments) GetByID(ctx context.Context, id string) (*models.Establishment, error) {
	return m.GetEstablishment(ctx, id)
}

type memoryCarts struct{ *MemoryStore }

func (m memoryCarts) GetByClient(ctx context.Context, clientID string) (*models.Cart, error) {
	return m.GetCartByClient(ctx, clientID)
}

func (m memoryCarts) GetByID(ctx context.Context, cartID string) (*models.Cart, error) {
	return m.GetCartByID(ctx, cartID)
}

func (m memoryCarts) Clear(ctx context.Context, cartID string) error {
	return m.ClearCart(ctx, cartID)
}

func (st *MemoryStore) AsEstablishments() Establishments { return memoryEstablishments{st} }
func (st *MemoryStore) AsCarts() Carts                   { return memoryCarts{st} }

// SeedEstablishment and SeedCatalogItem exist for dev mode and tests.
func (st *MemoryStore) SeedEstablishment(e models.Establishment) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Establishments[e.ID] = &e
	_ = st.saveToFile()
}

func (st *MemoryStore) SeedCatalogItem(it models.CatalogItem) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.CatalogItems[it.ID] = &it
	_ = st.saveToFile()
}

func (st *MemoryStore) SeedCart(c models.Cart) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Carts[c.ID] = &c
	_ = st.saveToFile()
}
