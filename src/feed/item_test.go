package feed

import (
	"testing"
)

func int64ptr(v int64) *int64 {
	return &v
}

func TestMilestoneIndex(t *testing.T) {
	item := &Item{
		ID:       "m1",
		Category: CategoryMilestone,
		Meta:     map[string]string{MetaMilestoneIndex: "42"},
	}

	index, ok := item.MilestoneIndex()
	if !ok {
		t.Fatal("item should carry a milestone index")
	}
	if index != 42 {
		t.Fatalf("milestone index should be 42, not %d", index)
	}

	plain := &Item{ID: "t1", Category: CategoryTransaction}
	if _, ok := plain.MilestoneIndex(); ok {
		t.Fatal("plain item should not carry a milestone index")
	}

	garbled := &Item{
		ID:   "m2",
		Meta: map[string]string{MetaMilestoneIndex: "not-a-number"},
	}
	if _, ok := garbled.MilestoneIndex(); ok {
		t.Fatal("unparseable milestone index should be ignored")
	}
}

func TestItemMerge(t *testing.T) {
	item := &Item{
		ID:       "t1",
		Category: CategoryTransaction,
		Meta:     map[string]string{"tag": "a"},
	}

	item.Merge(&Item{
		Confirmed: true,
		Value:     int64ptr(100),
		Meta:      map[string]string{"tag": "b", "extra": "c"},
	})

	if !item.Confirmed {
		t.Fatal("merge should set the confirmed flag")
	}
	if item.Value == nil || *item.Value != 100 {
		t.Fatalf("merge should overwrite the value, got %v", item.Value)
	}
	if item.Category != CategoryTransaction {
		t.Fatal("merge without a category should not change the category")
	}
	if item.Meta["tag"] != "b" || item.Meta["extra"] != "c" {
		t.Fatalf("merge should overwrite metadata keys, got %v", item.Meta)
	}
}

func TestItemHash(t *testing.T) {
	a := &Item{Parents: []string{"x", "y"}, Category: CategoryTransaction}
	b := &Item{Parents: []string{"x", "y"}, Category: CategoryTransaction}
	c := &Item{Parents: []string{"x", "z"}, Category: CategoryTransaction}

	ha, err := a.Hash()
	if err != nil {
		t.Fatal(err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatal(err)
	}
	hc, err := c.Hash()
	if err != nil {
		t.Fatal(err)
	}

	if ha != hb {
		t.Fatal("identical content should hash to the same identity")
	}
	if ha == hc {
		t.Fatal("different content should hash to different identities")
	}
}

func TestJSONDecoder(t *testing.T) {
	decoder := NewJSONDecoder()

	item := &Item{ID: "t1", Parents: []string{"p1"}, Category: CategoryTransaction}
	raw, err := item.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := decoder.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ID != "t1" {
		t.Fatalf("decoded id should be t1, not %s", decoded.ID)
	}
	if len(decoded.Parents) != 1 || decoded.Parents[0] != "p1" {
		t.Fatalf("decoded parents should be [p1], not %v", decoded.Parents)
	}

	// no intrinsic id: the decoder derives one from the content
	anon := &Item{Parents: []string{"p1"}}
	rawAnon, err := anon.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	decodedAnon, err := decoder.Decode(rawAnon)
	if err != nil {
		t.Fatal(err)
	}
	if decodedAnon.ID == "" {
		t.Fatal("decoder should derive a content identity")
	}

	if _, err := decoder.Decode([]byte("not json")); err == nil {
		t.Fatal("garbage payload should fail to decode")
	}
}
