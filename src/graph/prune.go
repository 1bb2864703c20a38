package graph

import (
	"time"
)

// component gathers the members of one connected component and the
// firstSeenAt of its most recent member.
type component struct {
	id               int
	members          []ref
	mostRecentChange time.Time
}

// Prune removes small, quiescent disconnected components. Components are
// discovered by breadth-first traversal over the undirected adjacency; a
// component is eligible when its member count is below pruneRatio of the
// current live node count AND its most recent arrival is older than the
// quiescence window. Both must hold, so an actively growing small cluster
// is spared.
//
// Discovery repeats until one full pass finds nothing eligible: a
// low-traffic island may only become removable after its neighbors are
// gone, so the fixed point is required. Each iteration strictly shrinks the
// graph, which bounds the loop. Returns every removed node id.
func (g *Graph) Prune(now time.Time) []string {
	g.Lock()
	defer g.Unlock()

	removed := []string{}

	for {
		// stale grouping from a previous pass must not leak into this one
		for i := range g.nodes {
			if g.nodes[i].alive {
				g.nodes[i].componentID = -1
			}
		}

		// threshold denominator is the live count at the start of this
		// iteration
		threshold := g.pruneRatio * float64(g.liveCount)

		eligible := false
		nextComponent := 0

		for i := range g.nodes {
			if !g.nodes[i].alive || g.nodes[i].componentID != -1 {
				continue
			}

			c := g.discoverComponent(i, nextComponent)
			nextComponent++

			if float64(len(c.members)) < threshold &&
				now.Sub(c.mostRecentChange) > g.quiesceAfter {
				g.pending = append(g.pending, c.members...)
				eligible = true
			}
		}

		if !eligible {
			break
		}

		dropped := g.drain()
		g.pruned += uint64(len(dropped))
		removed = append(removed, dropped...)
	}

	// labels are transient: leave nothing behind for the next pass to
	// mistake for live grouping
	for i := range g.nodes {
		if g.nodes[i].alive {
			g.nodes[i].componentID = -1
		}
	}

	if len(removed) > 0 {
		g.logger.WithField("count", len(removed)).Debug("Pruned small components")
	}

	return removed
}

// discoverComponent runs a BFS from the given node over the undirected
// adjacency, labeling every reachable node with the component id.
func (g *Graph) discoverComponent(start, id int) component {
	c := component{id: id}

	g.nodes[start].componentID = id
	queue := []int{start}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]

		n := &g.nodes[idx]

		c.members = append(c.members, ref{idx: idx, gen: n.gen})
		if n.firstSeenAt.After(c.mostRecentChange) {
			c.mostRecentChange = n.firstSeenAt
		}

		for _, nb := range n.parents {
			if g.nodes[nb].componentID == -1 {
				g.nodes[nb].componentID = id
				queue = append(queue, nb)
			}
		}
		for _, nb := range n.children {
			if g.nodes[nb].componentID == -1 {
				g.nodes[nb].componentID = id
				queue = append(queue, nb)
			}
		}
	}

	return c
}
