package bitset

// Bitset stores one boolean per logical index in a fixed byte array.
type Bitset struct {
	data []byte
	size int
}

func New(size int) *Bitset {
	if size < 0 {
		size = 0
	}

	return &Bitset{
		data: make([]byte, (size+7)/8),
		size: size,
	}
}

// Len returns the number of addressable indices.
func (b *Bitset) Len() int {
	return b.size
}

// Get returns false for out-of-range indices.
func (b *Bitset) Get(index int) bool {
	if index < 0 || index >= b.size {
		return false
	}
	return b.data[index/8]&(1<<(index%8)) != 0
}

// Set is a no-op for out-of-range indices.
func (b *Bitset) Set(index int, value bool) {
	if index < 0 || index >= b.size {
		return
	}

	if value {
		b.data[index/8] |= 1 << (index % 8)
	} else {
		b.data[index/8] &^= 1 << (index % 8)
	}
}

// Toggle flips the bit and returns its new value.
func (b *Bitset) Toggle(index int) bool {
	b.Set(index, !b.Get(index))
	return b.Get(index)
}

// Reset clears every bit.
func (b *Bitset) Reset() {
	for i := range b.data {
		b.data[i] = 0
	}
}
