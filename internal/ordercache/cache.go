// Package ordercache is the read-side mirror of the order collection.
//
// Every successful mutation made through the cache is followed by a full
// re-fetch of all orders; the snapshot is replaced wholesale, never patched.
// A failed mutation never triggers a reload. If the reload after a
// successful mutation fails, the snapshot is marked stale and the next read
// re-fetches before answering, so a read never misses an acknowledged write.
package ordercache

import (
	"context"
	"fmt"
	"sync"

	"github.com/RaikyD/reptile-orders-service/internal/application"
	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/RaikyD/reptile-orders-service/internal/logger"
	"github.com/RaikyD/reptile-orders-service/internal/metrics"
)

// OrderAPI is the order service as seen by the cache.
type OrderAPI interface {
	CreateOrder(ctx context.Context, in application.CreateOrderInput) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	UpdateItems(ctx context.Context, id string, items []domain.OrderItem) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.Order, error)
	UpdatePaymentVerification(ctx context.Context, id string, status domain.VerificationStatus, reason string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

type Cache struct {
	api     OrderAPI
	metrics *metrics.Metrics

	// reloadMu serializes fetch+swap so an older fetch cannot land last.
	reloadMu sync.Mutex

	mu     sync.RWMutex
	orders []domain.Order
	byID   map[string]int
	fresh  bool
}

func New(api OrderAPI, m *metrics.Metrics) *Cache {
	return &Cache{api: api, metrics: m, byID: map[string]int{}}
}

// Reload re-fetches the whole collection and replaces the snapshot.
func (c *Cache) Reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	orders, err := c.api.ListOrders(ctx)
	c.metrics.ObserveReload(err)
	if err != nil {
		c.mu.Lock()
		c.fresh = false
		c.mu.Unlock()
		return err
	}

	byID := make(map[string]int, len(orders))
	for i := range orders {
		byID[orders[i].ID] = i
	}

	c.mu.Lock()
	c.orders = orders
	c.byID = byID
	c.fresh = true
	c.mu.Unlock()
	return nil
}

func (c *Cache) List(ctx context.Context) ([]domain.Order, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Order, len(c.orders))
	for i := range c.orders {
		out[i] = copyOrder(c.orders[i])
	}
	return out, nil
}

func (c *Cache) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	o := copyOrder(c.orders[i])
	return &o, nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.orders)
}

func (c *Cache) Create(ctx context.Context, in application.CreateOrderInput) (*domain.Order, error) {
	o, err := c.api.CreateOrder(ctx, in)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return o, nil
}

func (c *Cache) UpdateItems(ctx context.Context, id string, items []domain.OrderItem) (*domain.Order, error) {
	o, err := c.api.UpdateItems(ctx, id, items)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return o, nil
}

func (c *Cache) UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.Order, error) {
	o, err := c.api.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return o, nil
}

func (c *Cache) UpdatePaymentVerification(ctx context.Context, id string, status domain.VerificationStatus, reason string) (*domain.Order, error) {
	o, err := c.api.UpdatePaymentVerification(ctx, id, status, reason)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return o, nil
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.api.DeleteOrder(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// invalidate runs after an acknowledged mutation. A failed reload leaves the
// cache marked stale rather than failing the mutation.
func (c *Cache) invalidate(ctx context.Context) {
	if err := c.Reload(ctx); err != nil {
		logger.Warn("order cache reload failed, marked stale", "err", err)
	}
}

func (c *Cache) ensureFresh(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.fresh
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.Reload(ctx)
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}
