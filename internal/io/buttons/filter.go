package buttons

// Filter debounces raw button readings.
type Filter interface {
	// IsFiltered reports whether state is a settled reading. It may
	// rewrite state to the debounced value.
	IsFiltered(index int, state *bool) bool
}

// DebounceFilter shifts one reading per millisecond into a byte; a button
// counts as settled once the last eight readings agree.
type DebounceFilter struct {
	history []uint8
}

// NewDebounceFilter debounces the first size inputs. Higher indices are
// analog-as-button and touchscreen inputs which are already settled.
func NewDebounceFilter(size int) *DebounceFilter {
	return &DebounceFilter{history: make([]uint8, size)}
}

func (f *DebounceFilter) IsFiltered(index int, state *bool) bool {
	if index < 0 || index >= len(f.history) {
		return true
	}

	f.history[index] <<= 1
	if *state {
		f.history[index] |= 1
	}

	switch f.history[index] {
	case 0xFF:
		*state = true
	case 0x00:
		*state = false
	default:
		return false
	}

	return true
}

// PassthroughFilter accepts every reading.
type PassthroughFilter struct{}

func (PassthroughFilter) IsFiltered(index int, state *bool) bool {
	return true
}
