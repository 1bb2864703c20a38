package tanglevis

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/config"
	"github.com/tanglevis/tanglevis/src/feed"
	"github.com/tanglevis/tanglevis/src/graph"
	"github.com/tanglevis/tanglevis/src/net"
	"github.com/tanglevis/tanglevis/src/service"
)

// ChangeSet is the per-batch delta handed to the rendering collaborator,
// always snapshotted at a batch boundary, never mid-mutation.
type ChangeSet struct {
	Added    []string
	Removed  []string
	Restyled []string
}

// ChangeHandler receives one ChangeSet after every batch.
type ChangeHandler func(ChangeSet)

// Tanglevis ties the feed transport, the reconciler, the graph and the
// HTTP service together, and owns the single-writer loop that drives all
// graph mutation. One instance serves exactly one logical network feed.
type Tanglevis struct {
	Config     *config.Config
	Transport  net.Transport
	Reconciler *feed.Reconciler
	Graph      *graph.Graph
	Service    *service.Service

	subID      string
	batchCh    <-chan net.RawBatch
	batchCount int

	milestoneTimer *ControlTimer

	handlersLock   sync.Mutex
	changeHandlers []ChangeHandler

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	logger *logrus.Entry
}

// NewTanglevis ...
func NewTanglevis(cfg *config.Config) *Tanglevis {
	return &Tanglevis{
		Config:         cfg,
		milestoneTimer: NewPeriodicControlTimer(),
		shutdownCh:     make(chan struct{}),
		logger:         cfg.Logger(),
	}
}

// Init instantiates and wires the engine components. It must be called
// before Run.
func (t *Tanglevis) Init() error {
	if err := t.initGraph(); err != nil {
		return err
	}
	if err := t.initReconciler(); err != nil {
		return err
	}
	if err := t.initTransport(); err != nil {
		return err
	}
	if err := t.initService(); err != nil {
		return err
	}
	return nil
}

func (t *Tanglevis) initGraph() error {
	t.Graph = graph.NewGraph(
		t.Config.NodeCap,
		t.Config.PruneRatio,
		t.Config.QuiesceAfter,
		t.Config.MilestoneStaleAfter,
		t.logger,
	)
	return nil
}

func (t *Tanglevis) initReconciler() error {
	t.Reconciler = feed.NewReconciler(
		feed.NewJSONDecoder(),
		t.Config.CategoryFloor,
		t.logger,
	)

	t.Reconciler.Subscribe(t.applyBatch)

	return nil
}

func (t *Tanglevis) initTransport() error {
	// a transport may have been set directly, typically an inmem transport
	// in tests
	if t.Transport != nil {
		return nil
	}

	switch t.Config.Transport {
	case config.WSTransport:
		t.Transport = net.NewWSTransport(
			fmt.Sprintf("ws://%s", t.Config.FeedAddr),
			t.logger,
		)
	case config.WAMPTransport:
		transport, err := net.NewWAMPTransport(
			t.Config.FeedAddr,
			t.Config.FeedRealm,
			t.Config.FeedTopic,
			t.logger,
		)
		if err != nil {
			return err
		}
		t.Transport = transport
	default:
		return fmt.Errorf("unknown transport: %s", t.Config.Transport)
	}

	return nil
}

func (t *Tanglevis) initService() error {
	if t.Config.NoService {
		return nil
	}
	t.Service = service.NewService(t.Config.ServiceAddr, t.Graph, t.logger)
	return nil
}

// OnChange registers a handler for per-batch change sets. Handlers are
// called from the run loop, between batches.
func (t *Tanglevis) OnChange(fn ChangeHandler) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.changeHandlers = append(t.changeHandlers, fn)
}

// Run subscribes to the feed and processes batches to completion, one at a
// time, until Shutdown. Periodic work (milestone sweeps, pruning passes)
// interleaves with ingestion in the same loop; nothing mutates the graph
// concurrently.
func (t *Tanglevis) Run() error {
	t.subID = net.NewInmemAddr()

	batchCh, err := t.Transport.Subscribe(t.subID)
	if err != nil {
		return err
	}
	t.batchCh = batchCh

	if t.Service != nil {
		go t.Service.Serve()
	}

	go t.milestoneTimer.Run(t.Config.MilestoneSweep)

	t.logger.WithFields(logrus.Fields{
		"transport":   t.Config.Transport,
		"feed_addr":   t.Config.FeedAddr,
		"node_cap":    t.Config.NodeCap,
		"prune_every": t.Config.PruneInterval,
	}).Debug("Run")

	for {
		select {
		case batch, ok := <-t.batchCh:
			if !ok {
				t.logger.Debug("Feed channel closed")
				return nil
			}
			t.Reconciler.Reconcile(batch.Items, batch.Updates)
		case <-t.milestoneTimer.tickCh:
			t.Graph.SweepMilestones(time.Now())
		case <-t.shutdownCh:
			return nil
		}
	}
}

// applyBatch is the reconciler listener that folds a reconciled batch into
// the graph. It runs on the run loop goroutine only.
func (t *Tanglevis) applyBatch(batch feed.Batch) {
	now := time.Now()

	added := t.Graph.ApplyBatch(batch.NewItems, now)

	restyled := t.Graph.MergeItems(batch.Updates)

	removed := t.Graph.DrainRemovals()

	t.batchCount++
	if t.Config.PruneInterval > 0 && t.batchCount%t.Config.PruneInterval == 0 {
		removed = append(removed, t.Graph.Prune(now)...)
	}

	if t.Service != nil {
		t.Service.GraphMetrics().Observe(t.Graph.Stats())
	}

	t.emit(ChangeSet{Added: added, Removed: removed, Restyled: restyled})
}

func (t *Tanglevis) emit(changes ChangeSet) {
	t.handlersLock.Lock()
	handlers := make([]ChangeHandler, len(t.changeHandlers))
	copy(handlers, t.changeHandlers)
	t.handlersLock.Unlock()

	for _, fn := range handlers {
		fn(changes)
	}
}

// Shutdown stops batch intake, cancels the periodic timers, releases the
// transport subscription and clears the graph. It is idempotent.
func (t *Tanglevis) Shutdown() {
	t.shutdownOnce.Do(func() {
		t.logger.Debug("Shutdown")

		close(t.shutdownCh)
		t.milestoneTimer.Shutdown()

		if t.Transport != nil {
			if t.subID != "" {
				t.Transport.Unsubscribe(t.subID)
			}
			t.Transport.Close()
		}

		t.Graph.Reset()
	})
}
