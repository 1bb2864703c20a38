package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/tanglevis/tanglevis/src/feed"
)

// chainItems builds a connected chain of n items with the given id prefix.
func chainItems(prefix string, n int) []*feed.Item {
	items := make([]*feed.Item, 0, n)
	prev := ""
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s%d", prefix, i)
		if prev == "" {
			items = append(items, item(id))
		} else {
			items = append(items, item(id, prev))
		}
		prev = id
	}
	return items
}

func TestPruneSmallComponent(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch(chainItems("big", 1000), now)
	g.ApplyBatch(chainItems("small", 5), now)

	removed := g.Prune(now.Add(2 * time.Minute))

	if len(removed) != 5 {
		t.Fatalf("the 5-node island should be fully pruned, removed %d", len(removed))
	}
	for _, id := range removed {
		if len(id) < 5 || id[:5] != "small" {
			t.Fatalf("only small-component members should be removed, got %s", id)
		}
	}

	// the dominant component is untouched, node for node
	for i := 0; i < 1000; i++ {
		if !g.Contains(fmt.Sprintf("big%d", i)) {
			t.Fatalf("big%d should have survived pruning", i)
		}
	}
}

func TestPruneSparesActiveCluster(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch(chainItems("big", 1000), now)
	g.ApplyBatch(chainItems("small", 5), now)

	// one fresh arrival keeps the small cluster's mostRecentChange recent
	g.ApplyBatch([]*feed.Item{item("small5", "small4")}, now.Add(100*time.Second))

	removed := g.Prune(now.Add(110 * time.Second))

	if len(removed) != 0 {
		t.Fatalf("an actively growing small cluster must be spared, removed %v", removed)
	}
}

func TestPruneSparesLargeQuietComponent(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	// a single component above the relative threshold, however old, stays
	g.ApplyBatch(chainItems("only", 100), now)

	removed := g.Prune(now.Add(time.Hour))

	if len(removed) != 0 {
		t.Fatalf("the dominant component must never be pruned, removed %v", removed)
	}
}

func TestPruneFixedPoint(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch(chainItems("big", 1000), now)
	for i := 0; i < 3; i++ {
		g.ApplyBatch(chainItems(fmt.Sprintf("isle%d-", i), 4), now)
	}

	removed := g.Prune(now.Add(2 * time.Minute))

	if len(removed) != 12 {
		t.Fatalf("all three islands should be pruned, removed %d", len(removed))
	}
	if got := g.Stats().Nodes; got != 1000 {
		t.Fatalf("only the dominant component should remain, got %d nodes", got)
	}

	// a second pass at the same instant finds nothing
	if more := g.Prune(now.Add(2 * time.Minute)); len(more) != 0 {
		t.Fatalf("pruning should have reached a fixed point, removed %v", more)
	}
}

func TestPruneClearsComponentIDs(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch(chainItems("a", 10), now)
	g.Prune(now.Add(2 * time.Minute))

	// component ids are transient: outside a pass they are all cleared
	g.RLock()
	defer g.RUnlock()
	for i := range g.nodes {
		if g.nodes[i].alive && g.nodes[i].componentID != -1 {
			t.Fatalf("node %s kept a stale component id", g.nodes[i].id)
		}
	}
}
