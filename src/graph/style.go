package graph

import (
	"regexp"

	"github.com/tanglevis/tanglevis/src/feed"
)

// ColorCategory is the color input the rendering collaborator derives a
// node's color from.
type ColorCategory int

const (
	// ColorPending is an unconfirmed node.
	ColorPending ColorCategory = iota
	// ColorConfirmedZero is a confirmed node with no value.
	ColorConfirmedZero
	// ColorConfirmedValue is a confirmed node carrying a nonzero value.
	ColorConfirmedValue
	// ColorMilestone is a milestone node.
	ColorMilestone
	// ColorHighlighted is a node matching the current highlight pattern.
	ColorHighlighted
)

// SizeClass ...
type SizeClass int

const (
	// SizeRegular ...
	SizeRegular SizeClass = iota
	// SizeLarge is used for milestones and nodes carrying a nonzero value.
	SizeLarge
)

// NodeStyle is the per-node style descriptor handed to the rendering
// collaborator.
type NodeStyle struct {
	Color ColorCategory `json:"color"`
	Size  SizeClass     `json:"size"`
}

// SetHighlight installs the highlight pattern used by Matches and Style.
// A nil pattern clears highlighting.
func (g *Graph) SetHighlight(re *regexp.Regexp) {
	g.Lock()
	defer g.Unlock()

	g.highlight = re
}

// Matches tests the node id and every metadata value against the current
// highlight pattern. No pattern always yields false.
func (g *Graph) Matches(id string) bool {
	g.RLock()
	defer g.RUnlock()

	return g.matches(id)
}

func (g *Graph) matches(id string) bool {
	if g.highlight == nil {
		return false
	}

	idx, ok := g.byID[id]
	if !ok {
		return false
	}

	if g.highlight.MatchString(id) {
		return true
	}
	for _, v := range g.nodes[idx].item.Meta {
		if g.highlight.MatchString(v) {
			return true
		}
	}

	return false
}

// Style derives the style descriptor for a live node. Color precedence is
// highlighted > milestone > confirmed-with-value > confirmed-zero-value >
// pending. Size is large if the node is a milestone or carries a nonzero
// value.
func (g *Graph) Style(id string) (NodeStyle, bool) {
	g.RLock()
	defer g.RUnlock()

	idx, ok := g.byID[id]
	if !ok {
		return NodeStyle{}, false
	}

	item := g.nodes[idx].item
	milestone := item.Category == feed.CategoryMilestone

	style := NodeStyle{Color: ColorPending, Size: SizeRegular}

	if milestone || item.HasValue() {
		style.Size = SizeLarge
	}

	switch {
	case g.matches(id):
		style.Color = ColorHighlighted
	case milestone:
		style.Color = ColorMilestone
	case item.Confirmed && item.HasValue():
		style.Color = ColorConfirmedValue
	case item.Confirmed:
		style.Color = ColorConfirmedZero
	}

	return style, true
}
