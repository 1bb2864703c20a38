package net

// RawBatch is one transport delivery: serialized ledger items plus raw
// metadata updates keyed by item id. Decoding is the feed package's
// concern.
type RawBatch struct {
	Items   [][]byte
	Updates map[string][]byte
}

// Transport provides an interface for feed transports to deliver raw
// batches to the engine. At most one underlying network subscription is
// held per transport; it is fanned out to every logical subscriber.
type Transport interface {

	// Subscribe registers a logical subscriber under an opaque id and
	// returns the channel on which it receives batches. The channel is
	// closed on Unsubscribe and on Close.
	Subscribe(id string) (<-chan RawBatch, error)

	// Unsubscribe removes a logical subscriber. When the last subscriber is
	// gone the underlying network subscription is released.
	Unsubscribe(id string) error

	// Close permanently closes the transport, stopping any associated
	// goroutines and closing all subscriber channels.
	Close() error
}
