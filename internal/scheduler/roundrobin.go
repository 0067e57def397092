package scheduler

// Component is an input group the round-robin visitor updates index by index.
type Component interface {
	UpdateSingle(index int, forceRefresh bool)
	MaxComponentUpdateIndex() int
}

// DefaultMaxUpdatesPerRun caps the indices processed per tick.
const DefaultMaxUpdatesPerRun = 16

// RoundRobin time-slices updates across a fixed ordered list of groups.
// Each tick serves one group, processing at most maxUpdates indices from that
// group's own cursor; a tick ends early when the group wraps to index 0.
type RoundRobin struct {
	components []Component
	next       []int
	current    int
	maxUpdates int
}

func NewRoundRobin(maxUpdates int, components ...Component) *RoundRobin {
	if maxUpdates < 1 {
		maxUpdates = DefaultMaxUpdatesPerRun
	}

	return &RoundRobin{
		components: components,
		next:       make([]int, len(components)),
		maxUpdates: maxUpdates,
	}
}

// Tick serves the current group and advances the group cursor. It returns
// the number of indices processed.
func (r *RoundRobin) Tick() int {
	if len(r.components) == 0 {
		return 0
	}

	group := r.current
	r.current = (r.current + 1) % len(r.components)

	component := r.components[group]
	size := component.MaxComponentUpdateIndex()
	if size <= 0 {
		r.next[group] = 0
		return 0
	}

	if r.next[group] >= size {
		r.next[group] = 0
	}

	processed := 0
	for processed < r.maxUpdates {
		component.UpdateSingle(r.next[group], false)
		processed++

		r.next[group]++
		if r.next[group] >= size {
			r.next[group] = 0
			break
		}
	}

	return processed
}

// Cursor returns the next index of group.
func (r *RoundRobin) Cursor(group int) int {
	if group < 0 || group >= len(r.next) {
		return 0
	}
	return r.next[group]
}
