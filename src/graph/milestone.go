package graph

import (
	"time"

	"github.com/tanglevis/tanglevis/src/feed"
)

// milestoneEntry maps a milestone sequence index to the node that last
// carried it. Entries are decoupled from node eviction: removing the node
// does not remove the entry, which instead expires through the staleness
// sweep. This way a milestone record can outlive node removal without
// dangling, and the index cannot grow without bound on the back of
// long-evicted nodes.
type milestoneEntry struct {
	nodeID     string
	lastSeenAt time.Time
}

// refreshMilestones bumps lastSeenAt on every entry whose node is still
// present. Called on each batch, under the write lock.
func (g *Graph) refreshMilestones(now time.Time) {
	for _, e := range g.milestones {
		if _, ok := g.byID[e.nodeID]; ok {
			e.lastSeenAt = now
		}
	}
}

// SweepMilestones deletes entries whose node no longer exists and whose
// lastSeenAt is older than the staleness window.
func (g *Graph) SweepMilestones(now time.Time) int {
	g.Lock()
	defer g.Unlock()

	swept := 0
	for index, e := range g.milestones {
		if _, ok := g.byID[e.nodeID]; ok {
			continue
		}
		if now.Sub(e.lastSeenAt) > g.staleAfter {
			delete(g.milestones, index)
			swept++
		}
	}

	if swept > 0 {
		g.logger.WithField("count", swept).Debug("Swept stale milestone entries")
	}

	return swept
}

// Milestone returns the node id currently associated with a milestone
// index.
func (g *Graph) Milestone(index int) (string, bool) {
	g.RLock()
	defer g.RUnlock()

	e, ok := g.milestones[index]
	if !ok {
		return "", false
	}
	return e.nodeID, true
}

// IsMilestone reports whether a live node is a milestone-bearing node.
func (g *Graph) IsMilestone(id string) bool {
	g.RLock()
	defer g.RUnlock()

	idx, ok := g.byID[id]
	if !ok {
		return false
	}
	return g.nodes[idx].item.Category == feed.CategoryMilestone
}
