package common

// RollingWindow is a bounded FIFO of items. Adding an item beyond the window
// size evicts the oldest item, which is returned to the caller so that any
// side index can be kept in sync.
type RollingWindow struct {
	size  int
	tot   int
	items []interface{}
}

// NewRollingWindow ...
func NewRollingWindow(size int) *RollingWindow {
	return &RollingWindow{
		size:  size,
		items: make([]interface{}, 0, size),
	}
}

// Get returns the current window, oldest first, along with the total number
// of items ever added.
func (r *RollingWindow) Get() (lastWindow []interface{}, tot int) {
	return r.items, r.tot
}

// Len returns the number of items currently retained.
func (r *RollingWindow) Len() int {
	return len(r.items)
}

// Add appends an item. If the window is full, the oldest item is dropped and
// returned with evicted=true.
func (r *RollingWindow) Add(item interface{}) (dropped interface{}, evicted bool) {
	if len(r.items) >= r.size {
		dropped = r.items[0]
		evicted = true
		// shift in place, the window is small
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, item)
	r.tot++
	return dropped, evicted
}
