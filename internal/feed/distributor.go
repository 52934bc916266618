package feed

import (
	"strings"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/pkg/exception"
)

// Distributor fans normalized ticks out to every attached subscriber queue.
// Delivery is non-blocking: a saturated subscriber loses the tick, the others
// still receive it.
type Distributor struct {
	registry *model.Registry

	mu   sync.RWMutex
	subs map[string]*Queue
}

func NewDistributor(registry *model.Registry) *Distributor {
	return &Distributor{
		registry: registry,
		subs:     make(map[string]*Queue),
	}
}

// Attach registers a named subscriber and returns its queue. Attaching the
// same name twice replaces the previous queue.
func (d *Distributor) Attach(name string, capacity int) *Queue {
	q := NewQueue(capacity)
	d.mu.Lock()
	if old, ok := d.subs[name]; ok {
		old.Close()
	}
	d.subs[name] = q
	d.mu.Unlock()
	return q
}

// Publish validates a tick and delivers it to every subscriber. Unknown
// symbols are rejected before fan-out.
func (d *Distributor) Publish(t model.PriceTick) error {
	if t.Symbol == "" || t.Bid.IsZero() && t.Ask.IsZero() {
		return exception.ErrFeedInvalidPayload
	}
	if !d.registry.Has(t.Symbol) {
		return exception.ErrFeedUnknownSymbol
	}
	t.Symbol = strings.ToUpper(t.Symbol)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for name, q := range d.subs {
		if err := q.TryPublish(t); err != nil {
			logs.Warnf("drop tick for subscriber %s, err: %+v", name, err)
		}
	}
	return nil
}

// Close shuts every subscriber queue down.
func (d *Distributor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, q := range d.subs {
		q.Close()
	}
	d.subs = make(map[string]*Queue)
}
