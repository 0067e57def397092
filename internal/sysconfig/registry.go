package sysconfig

import "fmt"

// GetFunc reads one value of a block.
type GetFunc func(section uint8, index int) (uint16, error)

// SetFunc writes one value of a block.
type SetFunc func(section uint8, index int, value uint16) error

type blockHandler struct {
	get GetFunc
	set SetFunc
}

// Registry routes (block, section, index) accesses to the component that
// owns the block. It validates addresses against the layout before calling
// a handler; unregistered blocks report ErrNotSupported.
type Registry struct {
	layout   Layout
	handlers [BlockCount]blockHandler
}

func NewRegistry(layout Layout) *Registry {
	return &Registry{layout: layout}
}

// Layout returns the section table the registry validates against.
func (r *Registry) Layout() Layout {
	return r.layout
}

// Register installs the accessors of block, replacing earlier ones.
func (r *Registry) Register(block Block, get GetFunc, set SetFunc) {
	if block >= BlockCount {
		return
	}
	r.handlers[block] = blockHandler{get: get, set: set}
}

func (r *Registry) Get(block Block, section uint8, index int) (uint16, error) {
	handler, err := r.resolve(block, section, index)
	if err != nil {
		return 0, err
	}
	if handler.get == nil {
		return 0, ErrNotSupported
	}
	return handler.get(section, index)
}

func (r *Registry) Set(block Block, section uint8, index int, value uint16) error {
	handler, err := r.resolve(block, section, index)
	if err != nil {
		return err
	}

	desc, _ := r.layout.Section(block, section)
	if value > desc.MaxValue {
		return fmt.Errorf("%s/%s[%d] = %d: %w", block, desc.Name, index, value, ErrInvalidValue)
	}

	if handler.set == nil {
		return ErrNotSupported
	}
	return handler.set(section, index, value)
}

func (r *Registry) resolve(block Block, section uint8, index int) (blockHandler, error) {
	desc, ok := r.layout.Section(block, section)
	if !ok {
		return blockHandler{}, ErrNotSupported
	}
	if desc.Reserved {
		return blockHandler{}, ErrNotSupported
	}
	if index < 0 || index >= desc.Count {
		return blockHandler{}, fmt.Errorf("%s/%s[%d]: %w", block, desc.Name, index, ErrInvalidIndex)
	}
	return r.handlers[block], nil
}
