package global

const (
	MinBPM     = 10
	MaxBPM     = 300
	DefaultBPM = 120
)

// BPM is the tempo register driven by tempo buttons.
type BPM struct {
	value int
}

func NewBPM() *BPM {
	return &BPM{value: DefaultBPM}
}

func (b *BPM) Value() int {
	return b.value
}

func (b *BPM) Set(value int) bool {
	if value < MinBPM || value > MaxBPM || value == b.value {
		return false
	}
	b.value = value
	return true
}

func (b *BPM) Increment(steps int) bool {
	next := b.value + steps
	if next > MaxBPM {
		next = MaxBPM
	}
	return b.Set(next)
}

func (b *BPM) Decrement(steps int) bool {
	next := b.value - steps
	if next < MinBPM {
		next = MinBPM
	}
	return b.Set(next)
}
