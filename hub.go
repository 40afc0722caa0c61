package zenify

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Resolver looks up the current value for a key so the hub can hand it to
// listeners. Absent values are reported as (nil, false).
type Resolver func(key Key) (any, bool)

// Hub is a notification registry that multiplexes change events by
// (type, optional tag) keys. Producers call NotifyListeners after mutating
// a bound value; every listener registered for the key runs synchronously
// on the notifying goroutine.
//
// A listener that panics is caught, counted, and logged; it never stops
// sibling listeners in the same round and never reaches the notifier.
type Hub struct {
	logger     *zap.Logger
	resolve    Resolver
	sweepEvery uint64

	mu          sync.RWMutex
	listeners   map[Key][]*Subscription
	maxObserved int

	notifications  atomic.Uint64
	listenerErrors atomic.Uint64
	sweeps         atomic.Uint64
}

// defaultSweepInterval triggers a maintenance sweep every N notifications.
const defaultSweepInterval = 1024

// NewHub creates a hub. Without WithResolver, listeners always observe nil
// as the current value.
func NewHub(opts ...HubOption) *Hub {
	cfg := hubConfig{sweepEvery: defaultSweepInterval}
	for _, opt := range opts {
		if opt != nil {
			opt.applyHub(&cfg)
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		logger:     logger,
		resolve:    cfg.resolver,
		sweepEvery: cfg.sweepEvery,
		listeners:  make(map[Key][]*Subscription),
	}
}

// Subscription is a disposable handle for one registered listener.
// Closing it removes the listener; when the key's last listener goes,
// the key itself is dropped from the hub.
type Subscription struct {
	hub      *Hub
	key      Key
	fn       func(value any)
	disposed int32
}

// Key returns the key this subscription listens on.
func (sub *Subscription) Key() Key {
	return sub.key
}

// IsDisposed reports whether Close has been called.
func (sub *Subscription) IsDisposed() bool {
	return atomic.LoadInt32(&sub.disposed) != 0
}

// Close removes the listener from the hub. Idempotent.
func (sub *Subscription) Close() error {
	if !atomic.CompareAndSwapInt32(&sub.disposed, 0, 1) {
		return nil
	}
	sub.hub.remove(sub)
	return nil
}

// Listen registers fn under key and returns its subscription handle.
// The callback is invoked once immediately with the currently resolved
// value (nil when nothing is bound yet) so subscribers start consistent.
func (h *Hub) Listen(key Key, fn func(value any)) *Subscription {
	sub := &Subscription{hub: h, key: key, fn: fn}
	if fn == nil {
		sub.disposed = 1
		return sub
	}

	h.mu.Lock()
	subs := append(h.listeners[key], sub)
	h.listeners[key] = subs
	if len(subs) > h.maxObserved {
		h.maxObserved = len(subs)
	}
	h.mu.Unlock()

	h.invoke(sub, h.currentValue(key))
	return sub
}

// NotifyListeners dispatches a change notification for key. Zero
// listeners is a cheap no-op; a single listener is invoked directly; many
// listeners are iterated in place without a defensive copy (removal
// replaces the slice, so an in-flight round keeps a stable view).
func (h *Hub) NotifyListeners(key Key) {
	count := h.notifications.Add(1)
	if h.sweepEvery > 0 && count%h.sweepEvery == 0 {
		h.sweep()
	}

	h.mu.RLock()
	subs := h.listeners[key]
	h.mu.RUnlock()

	switch len(subs) {
	case 0:
		return
	case 1:
		h.invoke(subs[0], h.currentValue(key))
	default:
		value := h.currentValue(key)
		for _, sub := range subs {
			h.invoke(sub, value)
		}
	}
}

// ClearListeners drops every listener for key and returns how many were
// removed.
func (h *Hub) ClearListeners(key Key) int {
	h.mu.Lock()
	subs := h.listeners[key]
	delete(h.listeners, key)
	h.mu.Unlock()

	for _, sub := range subs {
		atomic.StoreInt32(&sub.disposed, 1)
	}
	return len(subs)
}

// GetMemoryStats returns hub bookkeeping counters. Observability only;
// calling it never changes dispatch behavior.
func (h *Hub) GetMemoryStats() HubMemoryStats {
	h.mu.RLock()
	totalKeys := len(h.listeners)
	totalListeners := 0
	maxPerKey := 0
	for _, subs := range h.listeners {
		totalListeners += len(subs)
		if len(subs) > maxPerKey {
			maxPerKey = len(subs)
		}
	}
	maxObserved := h.maxObserved
	h.mu.RUnlock()

	return HubMemoryStats{
		TotalKeys:            totalKeys,
		TotalListeners:       totalListeners,
		MaxListenersPerKey:   maxPerKey,
		MaxObservedListeners: maxObserved,
		Notifications:        h.notifications.Load(),
		ListenerErrors:       h.listenerErrors.Load(),
		Sweeps:               h.sweeps.Load(),
	}
}

// HubMemoryStats contains hub bookkeeping counters.
type HubMemoryStats struct {
	TotalKeys            int
	TotalListeners       int
	MaxListenersPerKey   int
	MaxObservedListeners int
	Notifications        uint64
	ListenerErrors       uint64
	Sweeps               uint64
}

// Pressure thresholds for GetHealthStatus.
const (
	healthMaxListenersWarn     = 64
	healthMaxListenersCritical = 256
	healthTotalListenersWarn   = 512
	healthTotalListenersCrit   = 2048
)

// HubHealth reports the hub's memory-pressure assessment.
type HubHealth struct {
	Status   string // "ok", "warning", or "critical"
	Stats    HubMemoryStats
	Messages []string
}

// GetHealthStatus assesses listener-count pressure against fixed
// thresholds. Observability only.
func (h *Hub) GetHealthStatus() HubHealth {
	stats := h.GetMemoryStats()
	health := HubHealth{Status: "ok", Stats: stats}

	check := func(status, msg string) {
		health.Messages = append(health.Messages, msg)
		if status == "critical" || health.Status != "critical" && status == "warning" {
			health.Status = status
		}
	}

	if stats.MaxListenersPerKey >= healthMaxListenersCritical {
		check("critical", fmt.Sprintf("%d listeners on a single key", stats.MaxListenersPerKey))
	} else if stats.MaxListenersPerKey >= healthMaxListenersWarn {
		check("warning", fmt.Sprintf("%d listeners on a single key", stats.MaxListenersPerKey))
	}

	if stats.TotalListeners >= healthTotalListenersCrit {
		check("critical", fmt.Sprintf("%d listeners total", stats.TotalListeners))
	} else if stats.TotalListeners >= healthTotalListenersWarn {
		check("warning", fmt.Sprintf("%d listeners total", stats.TotalListeners))
	}

	return health
}

// DumpListeners renders the registered keys and their listener counts,
// sorted by key, for debugging. Observability only.
func (h *Hub) DumpListeners() string {
	h.mu.RLock()
	lines := make([]string, 0, len(h.listeners))
	for key, subs := range h.listeners {
		lines = append(lines, fmt.Sprintf("%s: %d", key, len(subs)))
	}
	h.mu.RUnlock()

	sort.Strings(lines)

	var b strings.Builder
	fmt.Fprintf(&b, "hub listeners (%d keys):\n", len(lines))
	for _, line := range lines {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (h *Hub) currentValue(key Key) any {
	if h.resolve == nil {
		return nil
	}
	v, ok := h.resolve(key)
	if !ok {
		return nil
	}
	return v
}

// invoke runs one listener, containing panics at the hub boundary.
func (h *Hub) invoke(sub *Subscription, value any) {
	if sub.IsDisposed() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.listenerErrors.Add(1)
			h.logger.Error("listener panicked",
				zap.Stringer("key", sub.key),
				zap.Any("panic", r))
		}
	}()

	sub.fn(value)
}

// remove drops a subscription. The key's slice is replaced, not mutated,
// and the key is deleted outright when its last listener goes.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.listeners[sub.key]
	for i, candidate := range subs {
		if candidate == sub {
			if len(subs) == 1 {
				delete(h.listeners, sub.key)
				return
			}
			replacement := make([]*Subscription, 0, len(subs)-1)
			replacement = append(replacement, subs[:i]...)
			replacement = append(replacement, subs[i+1:]...)
			h.listeners[sub.key] = replacement
			return
		}
	}
}

// sweep removes keys whose listeners are all disposed. Eager cleanup in
// Close keeps these rare; the sweep is the backstop.
func (h *Hub) sweep() {
	h.sweeps.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()

	for key, subs := range h.listeners {
		live := 0
		for _, sub := range subs {
			if !sub.IsDisposed() {
				live++
			}
		}
		if live == 0 {
			delete(h.listeners, key)
			continue
		}
		if live < len(subs) {
			replacement := make([]*Subscription, 0, live)
			for _, sub := range subs {
				if !sub.IsDisposed() {
					replacement = append(replacement, sub)
				}
			}
			h.listeners[key] = replacement
		}
	}
}
