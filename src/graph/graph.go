package graph

import (
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/common"
	"github.com/tanglevis/tanglevis/src/feed"
)

// ref identifies an arena slot at a point in time. Slots are reused after
// removal, so consumers of the FIFO sequence and the removal queue must
// check the generation before acting on a ref.
type ref struct {
	idx int
	gen uint64
}

// node is a DAG vertex in the arena. Adjacency is stored as dense arena
// indices so the hot per-batch path never rehashes id strings.
type node struct {
	id          string
	item        *feed.Item
	firstSeenAt time.Time
	gen         uint64
	parents     []int
	children    []int
	componentID int //only meaningful during a pruning pass
	placeholder bool
	alive       bool
}

func (n *node) degree() int {
	return len(n.parents) + len(n.children)
}

// Stats is a snapshot of graph counters for the service layer.
type Stats struct {
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Milestones int    `json:"milestones"`
	Batches    uint64 `json:"batches"`
	Evicted    uint64 `json:"evicted"`
	Pruned     uint64 `json:"pruned"`
	Resets     uint64 `json:"resets"`
}

// Graph is the live bounded DAG of ledger items. It folds reconciled feed
// batches into nodes and edges, caps the node count with oldest-first
// eviction, cascades removal of orphaned placeholders through a work queue,
// tracks milestones, and periodically prunes small stale components.
//
// All mutation is driven by a single writer at batch boundaries; the RWMutex
// exists so the rendering and service collaborators can read a consistent
// structure between batches.
type Graph struct {
	sync.RWMutex

	nodeCap      int
	pruneRatio   float64
	quiesceAfter time.Duration
	staleAfter   time.Duration

	nodes     []node
	free      []int
	byID      map[string]int
	seq       []ref //insertion order, drives FIFO eviction
	pending   []ref //removal work queue
	liveCount int
	edgeCount int
	genSeq    uint64

	milestones map[int]*milestoneEntry
	highlight  *regexp.Regexp

	batches uint64
	evicted uint64
	pruned  uint64
	resets  uint64

	logger *logrus.Entry
}

// NewGraph ...
func NewGraph(
	nodeCap int,
	pruneRatio float64,
	quiesceAfter time.Duration,
	staleAfter time.Duration,
	logger *logrus.Entry,
) *Graph {
	return &Graph{
		nodeCap:      nodeCap,
		pruneRatio:   pruneRatio,
		quiesceAfter: quiesceAfter,
		staleAfter:   staleAfter,
		byID:         make(map[string]int),
		milestones:   make(map[int]*milestoneEntry),
		logger:       logger,
	}
}

// ApplyBatch folds reconciled items into the graph and returns the ids of
// every truly-new node, placeholders included. A node already present as a
// placeholder is upgraded in place: identity, edges and firstSeenAt are
// preserved, only the payload is replaced, and it is not reported as added
// again. The batch's added set is protected from this pass's eviction
// sweep.
func (g *Graph) ApplyBatch(items []*feed.Item, now time.Time) []string {
	g.Lock()
	defer g.Unlock()

	g.batches++

	added := []string{}
	addedSet := map[int]bool{}

	for _, item := range items {
		idx, ok := g.byID[item.ID]
		if ok {
			n := &g.nodes[idx]
			if !n.placeholder {
				g.logger.WithField("id", item.ID).Debug("Duplicate node ignored")
				continue
			}
			n.item = item.Copy()
			n.placeholder = false
		} else {
			idx = g.insert(item, now, false)
			added = append(added, item.ID)
			addedSet[idx] = true
		}

		for _, pid := range item.Parents {
			pidx, ok := g.byID[pid]
			if !ok {
				pidx = g.insert(feed.NewPlaceholderItem(pid), now, true)
				added = append(added, pid)
				addedSet[pidx] = true
			}
			g.addEdge(pidx, idx)
		}

		if index, ok := item.MilestoneIndex(); ok {
			g.milestones[index] = &milestoneEntry{nodeID: item.ID, lastSeenAt: now}
		}
	}

	g.refreshMilestones(now)
	g.sweep(addedSet)

	return added
}

// sweep enqueues the oldest nodes onto the removal queue until the live
// count is back under the cap, skipping nodes added by the current batch.
func (g *Graph) sweep(addedSet map[int]bool) {
	excess := g.liveCount - g.nodeCap

	kept := g.seq[:0]
	for _, r := range g.seq {
		if !g.valid(r) {
			continue
		}
		if excess > 0 && !addedSet[r.idx] {
			g.pending = append(g.pending, r)
			g.evicted++
			excess--
			continue
		}
		kept = append(kept, r)
	}
	g.seq = kept
}

// DrainRemovals pops the pending-removal queue until empty, removing each
// target's edges and, when an edge removal leaves a neighbor with degree
// zero, removing that neighbor too. The cascade is one hop through the
// queue, never recursive. Returns the removed node ids.
func (g *Graph) DrainRemovals() []string {
	g.Lock()
	defer g.Unlock()

	return g.drain()
}

func (g *Graph) drain() []string {
	removed := []string{}

	for len(g.pending) > 0 {
		r := g.pending[0]
		g.pending = g.pending[1:]

		if !g.valid(r) {
			continue
		}

		n := &g.nodes[r.idx]

		neighbors := make([]int, 0, n.degree())
		neighbors = append(neighbors, n.parents...)
		neighbors = append(neighbors, n.children...)

		for _, nb := range neighbors {
			if !g.nodes[nb].alive {
				// an edge survived its endpoint
				err := common.NewStoreErr("graph", common.InvariantViolation, n.id)
				g.logger.WithError(err).WithFields(logrus.Fields{
					"node":     n.id,
					"neighbor": nb,
				}).Error("Dangling edge detected, resetting graph")
				g.reset()
				return removed
			}

			g.removeEdge(r.idx, nb)

			if nb != r.idx && g.nodes[nb].degree() == 0 {
				removed = append(removed, g.nodes[nb].id)
				g.deleteNode(nb)
			}
		}

		removed = append(removed, n.id)
		g.deleteNode(r.idx)
	}

	return removed
}

// MergeItems folds metadata updates into resident payloads, under the
// write lock. The graph owns a private copy of every payload, so this is
// the only path by which reconciled updates reach the style and highlight
// readers. Updates for absent ids are ignored. Returns the ids whose style
// inputs may have changed.
func (g *Graph) MergeItems(updates map[string]*feed.Item) []string {
	g.Lock()
	defer g.Unlock()

	restyled := []string{}
	for id, update := range updates {
		idx, ok := g.byID[id]
		if !ok {
			continue
		}
		g.nodes[idx].item.Merge(update)
		restyled = append(restyled, id)
	}

	return restyled
}

// MarkConfirmed flips the confirmed flag on existing nodes' payloads and
// returns the ids that need restyling. No structural change.
func (g *Graph) MarkConfirmed(ids []string) []string {
	g.Lock()
	defer g.Unlock()

	restyled := []string{}
	for _, id := range ids {
		idx, ok := g.byID[id]
		if !ok {
			continue
		}
		g.nodes[idx].item.Confirmed = true
		restyled = append(restyled, id)
	}

	return restyled
}

// Contains reports whether a node with the given id is currently live.
func (g *Graph) Contains(id string) bool {
	g.RLock()
	defer g.RUnlock()

	_, ok := g.byID[id]
	return ok
}

// Snapshot returns the current node ids and parent->child edges. Taken
// between batches it is always structurally consistent.
func (g *Graph) Snapshot() (nodeIDs []string, edges [][2]string) {
	g.RLock()
	defer g.RUnlock()

	nodeIDs = make([]string, 0, g.liveCount)
	for i := range g.nodes {
		if !g.nodes[i].alive {
			continue
		}
		nodeIDs = append(nodeIDs, g.nodes[i].id)
		for _, c := range g.nodes[i].children {
			edges = append(edges, [2]string{g.nodes[i].id, g.nodes[c].id})
		}
	}

	return nodeIDs, edges
}

// Stats ...
func (g *Graph) Stats() Stats {
	g.RLock()
	defer g.RUnlock()

	return Stats{
		Nodes:      g.liveCount,
		Edges:      g.edgeCount,
		Milestones: len(g.milestones),
		Batches:    g.batches,
		Evicted:    g.evicted,
		Pruned:     g.pruned,
		Resets:     g.resets,
	}
}

// Reset clears and rebuilds an empty graph. It is the recovery path for a
// detected invariant violation; the worst user-visible effect is a
// momentarily empty visualization.
func (g *Graph) Reset() {
	g.Lock()
	defer g.Unlock()

	g.reset()
}

func (g *Graph) reset() {
	g.nodes = nil
	g.free = nil
	g.byID = make(map[string]int)
	g.seq = nil
	g.pending = nil
	g.liveCount = 0
	g.edgeCount = 0
	g.milestones = make(map[int]*milestoneEntry)
	g.resets++
}

/*******************************************************************************
Arena plumbing
*******************************************************************************/

func (g *Graph) insert(item *feed.Item, now time.Time, placeholder bool) int {
	var idx int
	if n := len(g.free); n > 0 {
		idx = g.free[n-1]
		g.free = g.free[:n-1]
	} else {
		g.nodes = append(g.nodes, node{})
		idx = len(g.nodes) - 1
	}

	g.genSeq++
	g.nodes[idx] = node{
		id:          item.ID,
		item:        item.Copy(),
		firstSeenAt: now,
		gen:         g.genSeq,
		componentID: -1,
		placeholder: placeholder,
		alive:       true,
	}

	g.byID[item.ID] = idx
	g.seq = append(g.seq, ref{idx: idx, gen: g.genSeq})
	g.liveCount++

	return idx
}

func (g *Graph) deleteNode(idx int) {
	n := &g.nodes[idx]

	for _, p := range n.parents {
		g.detach(p, idx)
		g.edgeCount--
	}
	for _, c := range n.children {
		g.detach(c, idx)
		g.edgeCount--
	}

	delete(g.byID, n.id)
	g.nodes[idx] = node{}
	g.free = append(g.free, idx)
	g.liveCount--
}

// addEdge creates the parent->child edge unless it already exists. A parent
// id never equals the child's own id by construction of the feed.
func (g *Graph) addEdge(parent, child int) {
	for _, p := range g.nodes[child].parents {
		if p == parent {
			return
		}
	}

	g.nodes[child].parents = append(g.nodes[child].parents, parent)
	g.nodes[parent].children = append(g.nodes[parent].children, child)
	g.edgeCount++
}

// removeEdge deletes the edge between a and b regardless of orientation.
func (g *Graph) removeEdge(a, b int) {
	if g.detach(a, b) {
		g.detach(b, a)
		g.edgeCount--
	}
}

// detach removes b from a's adjacency lists, reporting whether anything was
// removed.
func (g *Graph) detach(a, b int) bool {
	found := false

	n := &g.nodes[a]
	parents := n.parents[:0]
	for _, p := range n.parents {
		if p == b {
			found = true
			continue
		}
		parents = append(parents, p)
	}
	n.parents = parents

	children := n.children[:0]
	for _, c := range n.children {
		if c == b {
			found = true
			continue
		}
		children = append(children, c)
	}
	n.children = children

	return found
}

func (g *Graph) valid(r ref) bool {
	return r.idx < len(g.nodes) &&
		g.nodes[r.idx].alive &&
		g.nodes[r.idx].gen == r.gen
}
