package net

import (
	"bytes"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/common"
	"github.com/ugorji/go/codec"
)

// wireFrame is one websocket message from the feed server. Item payloads and
// metadata updates are opaque bytes; decoding them is the feed package's
// concern.
type wireFrame struct {
	Items   [][]byte
	Updates map[string][]byte
}

// wsCommand is the subscription handshake sent over the duplex channel.
type wsCommand struct {
	Command string `json:"command"`
	ID      string `json:"id"`
}

// WSTransport subscribes to a feed server over a websocket. It holds at most
// one underlying connection, opened with the first logical subscriber and
// released with the last.
type WSTransport struct {
	sync.Mutex

	url         string
	conn        *websocket.Conn
	dialID      string //id the server-side subscription was opened under
	subscribers map[string]chan RawBatch
	shutdownCh  chan struct{}
	closed      bool
	logger      *logrus.Entry
}

// NewWSTransport ...
func NewWSTransport(url string, logger *logrus.Entry) *WSTransport {
	return &WSTransport{
		url:         url,
		subscribers: make(map[string]chan RawBatch),
		logger:      logger,
	}
}

// Subscribe implements the Transport interface. The first subscriber dials
// the feed server and starts the read loop.
func (w *WSTransport) Subscribe(id string) (<-chan RawBatch, error) {
	w.Lock()
	defer w.Unlock()

	if w.closed {
		return nil, common.NewStoreErr("WSTransport", common.Empty, id)
	}
	if _, ok := w.subscribers[id]; ok {
		return nil, common.NewStoreErr("WSTransport", common.KeyAlreadyExists, id)
	}

	if w.conn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
		if err != nil {
			return nil, err
		}

		if err := conn.WriteJSON(wsCommand{Command: "subscribe", ID: id}); err != nil {
			conn.Close()
			return nil, err
		}

		w.conn = conn
		w.dialID = id
		w.shutdownCh = make(chan struct{})

		go w.readLoop(conn, w.shutdownCh)

		w.logger.WithField("url", w.url).Debug("Feed subscription opened")
	}

	ch := make(chan RawBatch, 16)
	w.subscribers[id] = ch

	return ch, nil
}

// Unsubscribe implements the Transport interface. The last subscriber
// releases the underlying connection.
func (w *WSTransport) Unsubscribe(id string) error {
	w.Lock()
	defer w.Unlock()

	ch, ok := w.subscribers[id]
	if !ok {
		return common.NewStoreErr("WSTransport", common.KeyNotFound, id)
	}

	delete(w.subscribers, id)
	close(ch)

	if len(w.subscribers) == 0 && w.conn != nil {
		// the server knows the subscription under the dial-time id, not
		// whichever logical subscriber left last
		w.conn.WriteJSON(wsCommand{Command: "unsubscribe", ID: w.dialID})
		w.release()
	}

	return nil
}

// Close implements the Transport interface.
func (w *WSTransport) Close() error {
	w.Lock()
	defer w.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	for id, ch := range w.subscribers {
		delete(w.subscribers, id)
		close(ch)
	}

	w.release()

	return nil
}

// release tears down the connection and stops the read loop. Callers hold
// the lock.
func (w *WSTransport) release() {
	if w.conn == nil {
		return
	}

	close(w.shutdownCh)
	w.conn.Close()
	w.conn = nil
	w.dialID = ""
}

// readLoop reads frames until the connection dies or the transport is
// released. There is no retry here: if the feed goes away the engine simply
// idles.
func (w *WSTransport) readLoop(conn *websocket.Conn, shutdownCh chan struct{}) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-shutdownCh:
			default:
				w.logger.WithError(err).Error("Feed connection lost")
			}
			return
		}

		frame := new(wireFrame)
		jh := new(codec.JsonHandle)
		dec := codec.NewDecoder(bytes.NewBuffer(msg), jh)
		if err := dec.Decode(frame); err != nil {
			w.logger.WithError(err).Warn("Dropping undecodable feed frame")
			continue
		}

		w.deliver(RawBatch{Items: frame.Items, Updates: frame.Updates})
	}
}

func (w *WSTransport) deliver(batch RawBatch) {
	w.Lock()
	defer w.Unlock()

	for _, ch := range w.subscribers {
		select {
		case ch <- batch:
		default:
		}
	}
}
