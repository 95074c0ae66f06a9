package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/usecase"
)

// MemoryStore backs the service in tests and local development. All
// methods copy on the way in and out so callers never share state with
// the store.
type MemoryStore struct {
	mu            sync.RWMutex
	orders        map[string]*domain.Order
	payments      map[string]*domain.Payment // keyed by intent id
	notifications map[string]*domain.Notification
	carts         map[string][]domain.CartItem
	products      map[string]*domain.Product
	variants      map[string]*domain.Variant
	users         map[string]*domain.User
	events        map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:        make(map[string]*domain.Order),
		payments:      make(map[string]*domain.Payment),
		notifications: make(map[string]*domain.Notification),
		carts:         make(map[string][]domain.CartItem),
		products:      make(map[string]*domain.Product),
		variants:      make(map[string]*domain.Variant),
		users:         make(map[string]*domain.User),
		events:        make(map[string]string),
	}
}

func (m *MemoryStore) CreateOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*domain.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, true
}

func (m *MemoryStore) ListOrdersByUser(_ context.Context, userID string, page, pageSize int) ([]domain.Order, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			cp.Items = append([]domain.OrderItem(nil), o.Items...)
			all = append(all, cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}

func (m *MemoryStore) UpdateOrderStatus(_ context.Context, id string, st domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = st
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryStore) UpdateOrderPaymentState(_ context.Context, id string, ps domain.PaymentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.PaymentStatus = ps
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryStore) CreatePayment(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.IntentID] = &cp
	return nil
}

func (m *MemoryStore) GetPaymentByIntent(_ context.Context, intentID string) (*domain.Payment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[intentID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (m *MemoryStore) TransitionPayment(_ context.Context, intentID string, from []domain.PaymentStatus, to domain.PaymentStatus, providerResponse string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[intentID]
	if !ok {
		return false, nil
	}
	eligible := false
	for _, s := range from {
		if p.Status == s {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}
	now := time.Now().UTC()
	p.Status = to
	p.ProviderResponse = providerResponse
	p.UpdatedAt = now
	if to.Terminal() {
		p.ProcessedAt = &now
	}
	return true, nil
}

func (m *MemoryStore) RecordEvent(_ context.Context, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; ok {
		return false, nil
	}
	m.events[eventID] = eventType
	return true, nil
}

func (m *MemoryStore) CreateNotification(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) GetNotification(_ context.Context, id string) (*domain.Notification, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

func (m *MemoryStore) ListNotifications(_ context.Context, userID string, f usecase.NotificationFilter) ([]domain.Notification, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []domain.Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if f.Type != "" && string(n.Type) != f.Type {
			continue
		}
		if f.Unread != nil && n.Read == *f.Unread {
			continue
		}
		all = append(all, *n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (f.Page - 1) * f.PageSize
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}

func (m *MemoryStore) SetNotificationRead(_ context.Context, id, userID string, read bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	n.Read = read
	n.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) DeleteNotification(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	delete(m.notifications, id)
	return true, nil
}

func (m *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			n.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) DeleteNotifications(_ context.Context, userID string, onlyRead bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if onlyRead && !n.Read {
			continue
		}
		delete(m.notifications, id)
		count++
	}
	return count, nil
}

func (m *MemoryStore) ListCartItems(_ context.Context, userID string) ([]domain.CartItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.CartItem(nil), m.carts[userID]...), nil
}

func (m *MemoryStore) ClearCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

// AddCartItem seeds a cart; used by tests and local fixtures.
func (m *MemoryStore) AddCartItem(it domain.CartItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[it.UserID] = append(m.carts[it.UserID], it)
}

func (m *MemoryStore) GetProduct(_ context.Context, id string) (*domain.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (m *MemoryStore) GetVariant(_ context.Context, id string) (*domain.Variant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.variants[id]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// PutProduct and PutVariant seed the catalog; used by tests and local
// fixtures.
func (m *MemoryStore) PutProduct(p *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
}

func (m *MemoryStore) PutVariant(v *domain.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.variants[v.ID] = &cp
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*domain.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (m *MemoryStore) PutUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.UserID] = &cp
	return nil
}
