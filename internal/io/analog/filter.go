package analog

// FilterDescriptor carries one raw sample through a Filter. On acceptance
// the filter rewrites Value into the type's output domain.
type FilterDescriptor struct {
	Type        Type
	Value       uint16
	LowerOffset uint8
	UpperOffset uint8
	MaxValue    uint16
}

// Filter decides whether a raw sample is a reportable change.
type Filter interface {
	IsFiltered(index int, descriptor *FilterDescriptor) bool
	Reset(index int)
}

// PassthroughFilter accepts every sample unchanged. Button-type samples are
// reduced to 0/1. It suits targets whose collaborator already delivers
// values in the output domain.
type PassthroughFilter struct{}

func (PassthroughFilter) IsFiltered(index int, descriptor *FilterDescriptor) bool {
	if descriptor.Type == TypeButton {
		if descriptor.Value != 0 {
			descriptor.Value = 1
		}
		return true
	}

	if descriptor.Value > descriptor.MaxValue {
		descriptor.Value = descriptor.MaxValue
	}
	return true
}

func (PassthroughFilter) Reset(index int) {}

// mapRange linearly maps x from [inMin, inMax] to [outMin, outMax] with
// outMin <= outMax. x is clamped to the input range.
func mapRange(x, inMin, inMax, outMin, outMax uint32) uint32 {
	if inMax <= inMin {
		return outMin
	}
	if x <= inMin {
		return outMin
	}
	if x >= inMax {
		return outMax
	}
	return outMin + (x-inMin)*(outMax-outMin)/(inMax-inMin)
}

func clamp(x, lo, hi uint32) uint32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
