package feed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/ugorji/go/codec"
)

// Category partitions feed items by the kind of activity they represent. The
// reconciler's retention floors are applied per category so that the window
// always keeps a sample of every kind.
type Category int

const (
	// CategoryNone is a zero-value or otherwise unclassified item.
	CategoryNone Category = iota
	// CategoryTransaction is a value transfer.
	CategoryTransaction
	// CategoryIndex is an indexation-only item.
	CategoryIndex
	// CategoryMilestone is a milestone item carrying a sequence index.
	CategoryMilestone
)

// Categories lists all known categories. Used to size per-category windows.
var Categories = []Category{
	CategoryNone,
	CategoryTransaction,
	CategoryIndex,
	CategoryMilestone,
}

// MetaMilestoneIndex is the metadata key carrying a milestone's sequence
// index.
const MetaMilestoneIndex = "milestoneIndex"

// String ...
func (c Category) String() string {
	switch c {
	case CategoryTransaction:
		return "transaction"
	case CategoryIndex:
		return "index"
	case CategoryMilestone:
		return "milestone"
	}
	return "none"
}

// Item is a single ledger item as consumed by the graph. The ID is
// content-derived and unique. Parents reference up to two other items, which
// may not have been seen yet. An Item is immutable once placed in the graph,
// except for Confirmed and Meta merges.
type Item struct {
	ID        string            `json:"id"`
	Parents   []string          `json:"parents"`
	Value     *int64            `json:"value,omitempty"`
	Category  Category          `json:"category"`
	Meta      map[string]string `json:"meta,omitempty"`
	Confirmed bool              `json:"confirmed"`
}

// NewPlaceholderItem returns the minimal synthetic Item carried by a graph
// placeholder node, created when an id is referenced as a parent before its
// own item arrives.
func NewPlaceholderItem(id string) *Item {
	return &Item{
		ID:       id,
		Category: CategoryNone,
	}
}

// MilestoneIndex extracts the milestone sequence index from the item's
// metadata. The second return value is false when the item carries none, or
// when the value does not parse.
func (it *Item) MilestoneIndex() (int, bool) {
	raw, ok := it.Meta[MetaMilestoneIndex]
	if !ok {
		return 0, false
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return index, true
}

// HasValue reports whether the item carries a nonzero value.
func (it *Item) HasValue() bool {
	return it.Value != nil && *it.Value != 0
}

// Merge performs a shallow field overwrite of the update into the item.
// Only fields the update actually sets are copied; metadata keys are merged
// individually.
func (it *Item) Merge(update *Item) {
	if update.Confirmed {
		it.Confirmed = true
	}
	if update.Value != nil {
		it.Value = update.Value
	}
	if update.Category != CategoryNone {
		it.Category = update.Category
	}
	for k, v := range update.Meta {
		if it.Meta == nil {
			it.Meta = map[string]string{}
		}
		it.Meta[k] = v
	}
}

// Copy returns a deep copy of the item. The graph stores copies of
// reconciled payloads so that its readers never observe a merge happening
// on the reconciler's side.
func (it *Item) Copy() *Item {
	c := *it
	c.Parents = append([]string(nil), it.Parents...)
	if it.Value != nil {
		v := *it.Value
		c.Value = &v
	}
	if it.Meta != nil {
		c.Meta = make(map[string]string, len(it.Meta))
		for k, v := range it.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// Marshal - json encoding of Item
func (it *Item) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(it); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (it *Item) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(it); err != nil {
		return err
	}

	return nil
}

// Hash returns the hex-encoded SHA256 of the canonical encoding, used as a
// stable content-derived identity when the wire payload carries none.
func (it *Item) Hash() (string, error) {
	data, err := it.Marshal()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
