// Package notifications fans post-commit domain events out to in-process
// subscribers and, optionally, to other instances through Redis.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/enums"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/metrics"
)

const defaultBuffer = 64

// Notification is one emitted event. Origin is empty for events emitted in
// this process and holds the emitting instance id for relayed ones.
type Notification struct {
	TenantID  uuid.UUID
	Event     enums.NotificationEvent
	Payload   any
	EmittedAt time.Time
	Origin    string
}

// HubOptions tune subscriber buffering.
type HubOptions struct {
	Buffer int
	Now    func() time.Time
}

// Hub delivers events at most once to each subscriber. Emit never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]map[*Subscription]struct{}
	all     map[*Subscription]struct{}
	closed  bool

	buffer  int
	now     func() time.Time
	logg    *logger.Logger
	metrics *metrics.NotificationMetrics
}

// Subscription receives events on C until Close is called or the hub closes.
type Subscription struct {
	C <-chan Notification

	ch       chan Notification
	hub      *Hub
	tenantID uuid.UUID
	once     sync.Once
}

func NewHub(opts HubOptions, logg *logger.Logger, m *metrics.NotificationMetrics) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Hub{
		tenants: map[uuid.UUID]map[*Subscription]struct{}{},
		all:     map[*Subscription]struct{}{},
		buffer:  opts.Buffer,
		now:     opts.Now,
		logg:    logg,
		metrics: m,
	}
}

// Subscribe registers a subscriber for one tenant's events. uuid.Nil
// subscribes to every tenant.
func (h *Hub) Subscribe(tenantID uuid.UUID) *Subscription {
	ch := make(chan Notification, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, tenantID: tenantID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	if tenantID == uuid.Nil {
		h.all[sub] = struct{}{}
		return sub
	}
	subs, ok := h.tenants[tenantID]
	if !ok {
		subs = map[*Subscription]struct{}{}
		h.tenants[tenantID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// SubscribeAll registers a subscriber for every tenant.
func (h *Hub) SubscribeAll() *Subscription {
	return h.Subscribe(uuid.Nil)
}

// Close unregisters the subscription and closes C. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.remove(s)
}

// remove requires h.mu.
func (h *Hub) remove(s *Subscription) {
	if s.tenantID == uuid.Nil {
		delete(h.all, s)
	} else if subs, ok := h.tenants[s.tenantID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.tenants, s.tenantID)
		}
	}
	s.once.Do(func() { close(s.ch) })
}

// Emit publishes event for tenantID. A nil hub discards events.
func (h *Hub) Emit(ctx context.Context, tenantID uuid.UUID, event enums.NotificationEvent, payload any) {
	if h == nil {
		return
	}
	h.Publish(ctx, Notification{
		TenantID:  tenantID,
		Event:     event,
		Payload:   payload,
		EmittedAt: h.now().UTC(),
	})
}

// Publish delivers n to the tenant's subscribers and the all-tenant
// subscribers.
func (h *Hub) Publish(ctx context.Context, n Notification) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.tenants[n.TenantID] {
		h.deliver(ctx, sub, n)
	}
	for sub := range h.all {
		h.deliver(ctx, sub, n)
	}
}

func (h *Hub) deliver(ctx context.Context, sub *Subscription, n Notification) {
	select {
	case sub.ch <- n:
		h.metrics.Inc(string(n.Event), metrics.NotificationDelivered)
	default:
		h.metrics.Inc(string(n.Event), metrics.NotificationDropped)
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
			"tenant_id": n.TenantID.String(),
			"event":     string(n.Event),
		}), "notification dropped: subscriber buffer full")
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := len(h.all)
	for _, subs := range h.tenants {
		total += len(subs)
	}
	return total
}

// Close closes every subscription. Later emits are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.all {
		h.remove(sub)
	}
	for _, subs := range h.tenants {
		for sub := range subs {
			h.remove(sub)
		}
	}
}
