package net

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/tanglevis/tanglevis/src/common"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generated UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport implements the Transport interface, to allow the engine to
// be driven in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	subscribers map[string]chan RawBatch
	closed      bool
}

// NewInmemTransport is used to initialize a new in-memory transport.
func NewInmemTransport() *InmemTransport {
	return &InmemTransport{
		subscribers: make(map[string]chan RawBatch),
	}
}

// Subscribe implements the Transport interface.
func (i *InmemTransport) Subscribe(id string) (<-chan RawBatch, error) {
	i.Lock()
	defer i.Unlock()

	if i.closed {
		return nil, common.NewStoreErr("InmemTransport", common.Empty, id)
	}
	if _, ok := i.subscribers[id]; ok {
		return nil, common.NewStoreErr("InmemTransport", common.KeyAlreadyExists, id)
	}

	ch := make(chan RawBatch, 16)
	i.subscribers[id] = ch

	return ch, nil
}

// Unsubscribe implements the Transport interface.
func (i *InmemTransport) Unsubscribe(id string) error {
	i.Lock()
	defer i.Unlock()

	ch, ok := i.subscribers[id]
	if !ok {
		return common.NewStoreErr("InmemTransport", common.KeyNotFound, id)
	}

	delete(i.subscribers, id)
	close(ch)

	return nil
}

// Deliver fans a batch out to every subscriber. A subscriber with a full
// channel misses the batch; the feed is best-effort.
func (i *InmemTransport) Deliver(batch RawBatch) {
	i.RLock()
	defer i.RUnlock()

	for _, ch := range i.subscribers {
		select {
		case ch <- batch:
		default:
		}
	}
}

// Close implements the Transport interface.
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	for id, ch := range i.subscribers {
		delete(i.subscribers, id)
		close(ch)
	}

	return nil
}
