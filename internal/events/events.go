// Package events implements the synchronizer's event publisher (C10): a
// synchronous, in-order fan-out of newHeight and touchedAddress to whatever
// handlers a front-end registered before startup.
package events

import "sync"

// NewHeightHandler is invoked once per import/revert cycle, after all
// storage writes for that block are durable.
type NewHeightHandler func()

// TouchedAddressHandler is invoked once per unique address touched by a
// block import/revert or a mempool update.
type TouchedAddressHandler func(address string)

// Publisher fans out synchronizer events to registered handlers. Handlers
// run on the emitting goroutine and must not re-enter the synchronizer.
type Publisher struct {
	mu             sync.Mutex
	newHeight      []NewHeightHandler
	touchedAddress []TouchedAddressHandler
}

// New builds an empty publisher.
func New() *Publisher {
	return &Publisher{}
}

// OnNewHeight registers a handler for newHeight. Call it before the
// synchronizer starts: an emit already in progress does not call a handler
// registered during it.
func (p *Publisher) OnNewHeight(h NewHeightHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newHeight = append(p.newHeight, h)
}

// OnTouchedAddress registers a handler for touchedAddress.
func (p *Publisher) OnTouchedAddress(h TouchedAddressHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touchedAddress = append(p.touchedAddress, h)
}

// EmitNewHeight dispatches newHeight synchronously, in registration order.
func (p *Publisher) EmitNewHeight() {
	p.mu.Lock()
	handlers := p.newHeight
	p.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

// EmitTouchedAddress dispatches touchedAddress synchronously, in
// registration order.
func (p *Publisher) EmitTouchedAddress(address string) {
	p.mu.Lock()
	handlers := p.touchedAddress
	p.mu.Unlock()
	for _, h := range handlers {
		h(address)
	}
}

// EmitTouchedAddresses dispatches touchedAddress once per address in set,
// in an unspecified order (set is a deduplication aid, not a queue).
func (p *Publisher) EmitTouchedAddresses(set map[string]struct{}) {
	for address := range set {
		p.EmitTouchedAddress(address)
	}
}
