package pm

import (
	"sync"
	"sync/atomic"
)

// LinkStatus describes how binding a supplier/consumer link is for
// transition ordering. Only dormant links are ignored by the dependency
// waiter.
type LinkStatus int32

const (
	// LinkDormant links impose no ordering.
	LinkDormant LinkStatus = iota

	// LinkAvailable links are established but the consumer is not bound.
	LinkAvailable

	// LinkConsumerProbe links have a consumer in the middle of binding.
	LinkConsumerProbe

	// LinkActive links have a bound, operational consumer.
	LinkActive
)

// Link is a functional dependency edge from a supplier device to a consumer
// device, independent of the parent/child tree. During suspend the consumer
// must finish before the supplier; during resume the supplier must finish
// before the consumer.
type Link struct {
	Supplier *Device
	Consumer *Device

	status atomic.Int32
}

// Status returns the link's current status. Safe to call while a
// transition is running.
func (l *Link) Status() LinkStatus { return LinkStatus(l.status.Load()) }

// SetStatus updates the link's status. Status changes mid-transition are
// observed by at most one phase boundary late; the waiter tolerates this
// because waiting on a dormant dependency is merely wasted time, never a
// correctness problem.
func (l *Link) SetStatus(s LinkStatus) { l.status.Store(int32(s)) }

// linkGraph indexes links both ways so the waiter can walk a device's
// suppliers or consumers without scanning every link.
type linkGraph struct {
	mu sync.RWMutex

	// byConsumer maps a consumer to the links supplying it.
	byConsumer map[*Device][]*Link

	// bySupplier maps a supplier to the links it feeds.
	bySupplier map[*Device][]*Link
}

func newLinkGraph() *linkGraph {
	return &linkGraph{
		byConsumer: make(map[*Device][]*Link),
		bySupplier: make(map[*Device][]*Link),
	}
}

// add inserts a link into both indexes.
func (g *linkGraph) add(l *Link) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byConsumer[l.Consumer] = append(g.byConsumer[l.Consumer], l)
	g.bySupplier[l.Supplier] = append(g.bySupplier[l.Supplier], l)
}

// removeAll drops every link touching the device, in either role.
func (g *linkGraph) removeAll(dev *Device) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, l := range g.byConsumer[dev] {
		g.bySupplier[l.Supplier] = without(g.bySupplier[l.Supplier], l)
	}
	delete(g.byConsumer, dev)
	for _, l := range g.bySupplier[dev] {
		g.byConsumer[l.Consumer] = without(g.byConsumer[l.Consumer], l)
	}
	delete(g.bySupplier, dev)
}

// suppliersOf returns a snapshot of the links feeding dev.
func (g *linkGraph) suppliersOf(dev *Device) []*Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Link, len(g.byConsumer[dev]))
	copy(out, g.byConsumer[dev])
	return out
}

// consumersOf returns a snapshot of the links fed by dev.
func (g *linkGraph) consumersOf(dev *Device) []*Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Link, len(g.bySupplier[dev]))
	copy(out, g.bySupplier[dev])
	return out
}

func without(links []*Link, drop *Link) []*Link {
	for i, l := range links {
		if l == drop {
			return append(links[:i], links[i+1:]...)
		}
	}
	return links
}
