package net

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/common"
	"github.com/ugorji/go/codec"
)

// WAMPTransport subscribes to a feed topic on a WAMP router over websockets.
// Each event's first argument is one serialized wireFrame. Like WSTransport,
// at most one router subscription is held and fanned out to the logical
// subscribers.
type WAMPTransport struct {
	sync.Mutex

	routerURL   string
	realm       string
	topic       string
	client      *client.Client
	subscribers map[string]chan RawBatch
	closed      bool
	logger      *logrus.Entry
}

// NewWAMPTransport connects to the WAMP router. The topic subscription is
// only taken out when the first logical subscriber arrives.
func NewWAMPTransport(server, realm, topic string, logger *logrus.Entry) (*WAMPTransport, error) {
	cfg := client.Config{
		Realm:  realm,
		Logger: logger,
	}

	cli, err := client.ConnectNet(
		context.Background(),
		fmt.Sprintf("ws://%s", server),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	return &WAMPTransport{
		routerURL:   server,
		realm:       realm,
		topic:       topic,
		client:      cli,
		subscribers: make(map[string]chan RawBatch),
		logger:      logger,
	}, nil
}

// Subscribe implements the Transport interface.
func (t *WAMPTransport) Subscribe(id string) (<-chan RawBatch, error) {
	t.Lock()
	defer t.Unlock()

	if t.closed {
		return nil, common.NewStoreErr("WAMPTransport", common.Empty, id)
	}
	if _, ok := t.subscribers[id]; ok {
		return nil, common.NewStoreErr("WAMPTransport", common.KeyAlreadyExists, id)
	}

	if len(t.subscribers) == 0 {
		if err := t.client.Subscribe(t.topic, t.eventHandler, nil); err != nil {
			t.logger.WithError(err).Error("Failed to subscribe to feed topic")
			return nil, err
		}
		t.logger.WithField("topic", t.topic).Debug("Feed subscription opened")
	}

	ch := make(chan RawBatch, 16)
	t.subscribers[id] = ch

	return ch, nil
}

// Unsubscribe implements the Transport interface.
func (t *WAMPTransport) Unsubscribe(id string) error {
	t.Lock()
	defer t.Unlock()

	ch, ok := t.subscribers[id]
	if !ok {
		return common.NewStoreErr("WAMPTransport", common.KeyNotFound, id)
	}

	delete(t.subscribers, id)
	close(ch)

	if len(t.subscribers) == 0 {
		if err := t.client.Unsubscribe(t.topic); err != nil {
			t.logger.WithError(err).Error("Failed to unsubscribe from feed topic")
		}
	}

	return nil
}

// Close implements the Transport interface.
func (t *WAMPTransport) Close() error {
	t.Lock()
	defer t.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for id, ch := range t.subscribers {
		delete(t.subscribers, id)
		close(ch)
	}

	return t.client.Close()
}

func (t *WAMPTransport) eventHandler(event *wamp.Event) {
	if len(event.Arguments) < 1 {
		return
	}

	raw, ok := wamp.AsString(event.Arguments[0])
	if !ok {
		t.logger.Warn("Dropping feed event with non-string payload")
		return
	}

	frame := new(wireFrame)
	jh := new(codec.JsonHandle)
	dec := codec.NewDecoder(bytes.NewBufferString(raw), jh)
	if err := dec.Decode(frame); err != nil {
		t.logger.WithError(err).Warn("Dropping undecodable feed frame")
		return
	}

	t.deliver(RawBatch{Items: frame.Items, Updates: frame.Updates})
}

func (t *WAMPTransport) deliver(batch RawBatch) {
	t.Lock()
	defer t.Unlock()

	for _, ch := range t.subscribers {
		select {
		case ch <- batch:
		default:
		}
	}
}
