package graph

import (
	"fmt"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/common"
	"github.com/tanglevis/tanglevis/src/feed"
)

func testGraph(t *testing.T, nodeCap int) *Graph {
	logger := common.NewTestEntry(t, logrus.DebugLevel)
	return NewGraph(nodeCap, 0.03, 60*time.Second, 300*time.Second, logger)
}

func item(id string, parents ...string) *feed.Item {
	return &feed.Item{
		ID:       id,
		Parents:  parents,
		Category: feed.CategoryTransaction,
	}
}

func sorted(ids []string) []string {
	res := append([]string{}, ids...)
	sort.Strings(res)
	return res
}

func TestApplyBatch(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	added := g.ApplyBatch([]*feed.Item{
		item("A"),
		item("B", "A"),
		item("C", "A"),
	}, now)

	expected := []string{"A", "B", "C"}
	got := sorted(added)
	if len(got) != len(expected) {
		t.Fatalf("added should be %v, not %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("added should be %v, not %v", expected, got)
		}
	}

	nodes, edges := g.Snapshot()
	if len(nodes) != 3 {
		t.Fatalf("graph should hold 3 nodes, not %d", len(nodes))
	}
	if len(edges) != 2 {
		t.Fatalf("graph should hold 2 edges, not %d", len(edges))
	}
	for _, e := range edges {
		if e[0] != "A" || (e[1] != "B" && e[1] != "C") {
			t.Fatalf("unexpected edge %v", e)
		}
	}
}

func TestApplyBatchIdempotent(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch([]*feed.Item{item("A")}, now)
	added := g.ApplyBatch([]*feed.Item{item("A")}, now)

	if len(added) != 0 {
		t.Fatalf("re-applying the same item should add nothing, got %v", added)
	}

	nodes, _ := g.Snapshot()
	if len(nodes) != 1 {
		t.Fatalf("graph should hold exactly 1 node, not %d", len(nodes))
	}
}

func TestPlaceholderUpgrade(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	added := g.ApplyBatch([]*feed.Item{item("B", "A")}, now)
	if len(added) != 2 {
		t.Fatalf("B and the placeholder A should both be added, got %v", added)
	}

	// A's own item arrives later: the node is upgraded in place
	added = g.ApplyBatch([]*feed.Item{item("A")}, now.Add(time.Second))
	if len(added) != 0 {
		t.Fatalf("upgrading a placeholder should add nothing, got %v", added)
	}

	nodes, edges := g.Snapshot()
	if len(nodes) != 2 {
		t.Fatalf("graph should hold 2 nodes, not %d", len(nodes))
	}
	if len(edges) != 1 || edges[0][0] != "A" || edges[0][1] != "B" {
		t.Fatalf("the A->B edge should be preserved through upgrade, got %v", edges)
	}
}

func TestNodeCap(t *testing.T) {
	nodeCap := 10
	g := testGraph(t, nodeCap)
	now := time.Now()

	for i := 0; i < 3; i++ {
		batch := []*feed.Item{}
		for j := 0; j < 5; j++ {
			batch = append(batch, item(fmt.Sprintf("n%d-%d", i, j)))
		}
		g.ApplyBatch(batch, now)
		g.DrainRemovals()

		if got := g.Stats().Nodes; got > nodeCap {
			t.Fatalf("node count %d exceeds cap %d after draining", got, nodeCap)
		}
	}

	// eviction is oldest first: the first batch is gone
	if g.Contains("n0-0") {
		t.Fatal("oldest node should have been evicted")
	}
	if !g.Contains("n2-4") {
		t.Fatal("newest node should still be present")
	}
}

func TestSweepProtectsCurrentBatch(t *testing.T) {
	nodeCap := 3
	g := testGraph(t, nodeCap)
	now := time.Now()

	g.ApplyBatch([]*feed.Item{item("old1"), item("old2")}, now)
	g.DrainRemovals()

	// 4 new nodes exceed the cap on their own, but none of them may be
	// evicted by the sweep of their own batch
	batch := []*feed.Item{item("a"), item("b"), item("c"), item("d")}
	g.ApplyBatch(batch, now.Add(time.Second))
	removed := g.DrainRemovals()

	for _, id := range removed {
		for _, b := range batch {
			if id == b.ID {
				t.Fatalf("current batch node %s was evicted by its own pass", id)
			}
		}
	}
	for _, id := range []string{"old1", "old2"} {
		if g.Contains(id) {
			t.Fatalf("%s should have been evicted", id)
		}
	}
}

func TestCascadeRemoval(t *testing.T) {
	g := testGraph(t, 3)
	now := time.Now()

	g.ApplyBatch([]*feed.Item{
		item("A"),
		item("B", "A"),
		item("C", "A"),
	}, now)
	g.DrainRemovals()

	// one more node pushes the graph over the cap; A is the oldest and is
	// evicted, which leaves B and C with degree zero, so the drain removes
	// them too
	g.ApplyBatch([]*feed.Item{item("D")}, now.Add(time.Second))
	removed := g.DrainRemovals()

	got := sorted(removed)
	expected := []string{"A", "B", "C"}
	if len(got) != len(expected) {
		t.Fatalf("removed should be %v, not %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("removed should be %v, not %v", expected, got)
		}
	}

	nodes, edges := g.Snapshot()
	if len(nodes) != 1 || nodes[0] != "D" {
		t.Fatalf("only D should remain, got %v", nodes)
	}
	if len(edges) != 0 {
		t.Fatalf("no edges should survive, got %v", edges)
	}
}

func TestNoDanglingEdges(t *testing.T) {
	g := testGraph(t, 20)
	now := time.Now()

	// a chain of items, each referencing the previous two
	prev, prev2 := "", ""
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("n%d", i)
		parents := []string{}
		if prev != "" {
			parents = append(parents, prev)
		}
		if prev2 != "" {
			parents = append(parents, prev2)
		}
		g.ApplyBatch([]*feed.Item{item(id, parents...)}, now.Add(time.Duration(i)*time.Second))
		g.DrainRemovals()
		prev2 = prev
		prev = id
	}

	nodes, edges := g.Snapshot()
	present := map[string]bool{}
	for _, id := range nodes {
		present[id] = true
	}
	for _, e := range edges {
		if !present[e[0]] || !present[e[1]] {
			t.Fatalf("edge %v references a removed node", e)
		}
	}

	if g.Stats().Resets != 0 {
		t.Fatalf("no reset should have fired, got %d", g.Stats().Resets)
	}
}

func TestDanglingEdgeReset(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch([]*feed.Item{item("B", "A")}, now)

	// corrupt the arena by hand: B goes away without detaching the A->B
	// edge, then A is queued for removal
	aIdx := g.byID["A"]
	bIdx := g.byID["B"]
	g.nodes[bIdx].alive = false
	g.pending = append(g.pending, ref{idx: aIdx, gen: g.nodes[aIdx].gen})

	g.DrainRemovals()

	if got := g.Stats().Resets; got != 1 {
		t.Fatalf("a dangling edge should force exactly 1 reset, got %d", got)
	}
	if nodes, _ := g.Snapshot(); len(nodes) != 0 {
		t.Fatalf("reset should empty the graph, got %v", nodes)
	}
}

func TestApplyBatchCopiesPayloads(t *testing.T) {
	g := testGraph(t, 5000)

	it := item("A")
	g.ApplyBatch([]*feed.Item{it}, time.Now())

	// mutating the caller's item after the fact must not be visible to the
	// graph's readers
	it.Confirmed = true
	it.Meta = map[string]string{"tag": "hot"}

	style, ok := g.Style("A")
	if !ok {
		t.Fatal("A should be live")
	}
	if style.Color != ColorPending {
		t.Fatalf("A should still be pending, not %v", style.Color)
	}
}

func TestMergeItems(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch([]*feed.Item{item("A")}, now)

	restyled := g.MergeItems(map[string]*feed.Item{
		"A":       {Confirmed: true, Meta: map[string]string{"tag": "hot"}},
		"unknown": {Confirmed: true},
	})
	if len(restyled) != 1 || restyled[0] != "A" {
		t.Fatalf("only A should be restyled, got %v", restyled)
	}

	style, ok := g.Style("A")
	if !ok {
		t.Fatal("A should be live")
	}
	if style.Color != ColorConfirmedZero {
		t.Fatalf("A should be confirmed-zero, not %v", style.Color)
	}

	g.SetHighlight(regexp.MustCompile("hot"))
	if !g.Matches("A") {
		t.Fatal("merged metadata should be visible to the highlight query")
	}
}

func TestMarkConfirmed(t *testing.T) {
	g := testGraph(t, 5000)
	now := time.Now()

	g.ApplyBatch([]*feed.Item{item("A"), item("B")}, now)

	restyled := g.MarkConfirmed([]string{"A", "unknown"})
	if len(restyled) != 1 || restyled[0] != "A" {
		t.Fatalf("only A should be restyled, got %v", restyled)
	}

	style, ok := g.Style("A")
	if !ok {
		t.Fatal("A should be live")
	}
	if style.Color != ColorConfirmedZero {
		t.Fatalf("A should be confirmed-zero, not %v", style.Color)
	}
}
