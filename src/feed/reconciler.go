package feed

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/common"
)

// Batch is the reconciled output of one ingest cycle: the items that were
// truly new, and the metadata updates that landed on resident items.
type Batch struct {
	NewItems []*Item
	Updates  map[string]*Item
}

// ListenerFunc receives every reconciled batch exactly once.
type ListenerFunc func(Batch)

type listener struct {
	id int
	fn ListenerFunc
}

// Reconciler owns the per-network window of recently seen items. It
// deduplicates arrivals against the window's id index, applies metadata
// updates to resident items, and enforces a minimum-retained-count policy
// per item category, so the window always holds a recent sample of every
// kind of activity even through bursts dominated by one category.
//
// The window is independent of the graph: dropping an item here never
// removes its node downstream.
type Reconciler struct {
	sync.Mutex

	decoder  Decoder
	floor    int
	windows  map[Category]*common.RollingWindow
	resident map[string]*Item

	listeners   []listener
	listenerSeq int

	logger *logrus.Entry
}

// NewReconciler ...
func NewReconciler(decoder Decoder, floor int, logger *logrus.Entry) *Reconciler {
	windows := make(map[Category]*common.RollingWindow, len(Categories))
	for _, c := range Categories {
		windows[c] = common.NewRollingWindow(floor)
	}

	return &Reconciler{
		decoder:  decoder,
		floor:    floor,
		windows:  windows,
		resident: make(map[string]*Item),
		logger:   logger,
	}
}

// Reconcile ingests one transport batch and fans the result out to every
// registered listener, in registration order. Undecodable payloads are
// dropped per-item with a warning; they never abort the batch. Metadata
// updates for ids outside the window are ignored.
func (r *Reconciler) Reconcile(rawItems [][]byte, rawUpdates map[string][]byte) Batch {
	r.Lock()
	defer r.Unlock()

	newItems := []*Item{}
	for _, raw := range rawItems {
		item, err := r.decoder.Decode(raw)
		if err != nil {
			r.logger.WithError(err).Warn("Dropping undecodable feed item")
			continue
		}

		if _, ok := r.resident[item.ID]; ok {
			r.logger.WithField("id", item.ID).Debug("Duplicate feed item ignored")
			continue
		}

		r.store(item)
		newItems = append(newItems, item)
	}

	updates := map[string]*Item{}
	for id, raw := range rawUpdates {
		update, err := r.decoder.Decode(raw)
		if err != nil {
			r.logger.WithError(err).Warn("Dropping undecodable metadata update")
			continue
		}

		target, ok := r.resident[id]
		if !ok {
			r.logger.WithField("id", id).Debug("Ignoring metadata update for unknown item")
			continue
		}

		target.Merge(update)
		update.ID = id
		updates[id] = update
	}

	batch := Batch{NewItems: newItems, Updates: updates}

	for _, l := range r.listeners {
		r.deliver(l, batch)
	}

	return batch
}

// store places an item in its category window, evicting the oldest item of
// that category once the retention floor is exceeded.
func (r *Reconciler) store(item *Item) {
	if _, ok := r.windows[item.Category]; !ok {
		// wire categories we don't know fold into the zero category
		item.Category = CategoryNone
	}

	dropped, evicted := r.windows[item.Category].Add(item)
	if evicted {
		delete(r.resident, dropped.(*Item).ID)
	}
	r.resident[item.ID] = item
}

// deliver isolates listener faults: a panicking listener is logged and does
// not affect delivery to the others.
func (r *Reconciler) deliver(l listener, batch Batch) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"listener": l.id,
				"panic":    rec,
			}).Error("Feed listener failed")
		}
	}()

	l.fn(batch)
}

// Subscribe registers a listener and returns its subscription id.
func (r *Reconciler) Subscribe(fn ListenerFunc) int {
	r.Lock()
	defer r.Unlock()

	r.listenerSeq++
	r.listeners = append(r.listeners, listener{id: r.listenerSeq, fn: fn})

	return r.listenerSeq
}

// Unsubscribe removes a listener. Unknown ids are a no-op.
func (r *Reconciler) Unsubscribe(id int) {
	r.Lock()
	defer r.Unlock()

	for i, l := range r.listeners {
		if l.id == id {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Get returns the resident item for an id, if any.
func (r *Reconciler) Get(id string) (*Item, bool) {
	r.Lock()
	defer r.Unlock()

	item, ok := r.resident[id]
	return item, ok
}

// Window returns the retained items of one category, oldest first.
func (r *Reconciler) Window(c Category) []*Item {
	r.Lock()
	defer r.Unlock()

	items, _ := r.windows[c].Get()
	res := make([]*Item, len(items))
	for i, it := range items {
		res[i] = it.(*Item)
	}
	return res
}

// Len returns the total number of items currently retained in the window.
func (r *Reconciler) Len() int {
	r.Lock()
	defer r.Unlock()

	return len(r.resident)
}
