package global

import "testing"

func TestIncrementDecrement(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(uint8, uint8, OverflowPolicy) uint8
		value  uint8
		step   uint8
		policy OverflowPolicy
		want   uint8
	}{
		{"inc within range", Increment, 10, 5, OverflowWrap, 15},
		{"inc wraps", Increment, 125, 5, OverflowWrap, 0},
		{"inc clamps", Increment, 125, 5, OverflowClamp, 127},
		{"inc exact max", Increment, 120, 7, OverflowWrap, 127},
		{"dec within range", Decrement, 10, 5, OverflowClamp, 5},
		{"dec clamps", Decrement, 3, 5, OverflowClamp, 0},
		{"dec wraps", Decrement, 3, 5, OverflowWrap, 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.value, tt.step, tt.policy); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProgram(t *testing.T) {
	p := NewProgram()

	if !p.IncrementProgram(1, 1) || p.Program(1) != 1 {
		t.Fatalf("program = %d, want 1", p.Program(1))
	}
	if p.DecrementProgram(2, 1) {
		t.Error("decrement at 0 must report no change")
	}
	if p.SetProgram(17, 4) || p.SetProgram(0, 4) {
		t.Error("invalid channel must be rejected")
	}

	p.SetProgram(3, 127)
	if p.IncrementProgram(3, 1) {
		t.Error("increment at 127 must report no change")
	}

	if !p.IncrementOffset(10) || p.Offset() != 10 {
		t.Errorf("offset = %d, want 10", p.Offset())
	}
	p.Reset()
	if p.Offset() != 0 || p.Program(1) != 0 {
		t.Error("Reset did not clear state")
	}
}

func TestBPM(t *testing.T) {
	b := NewBPM()
	if b.Value() != DefaultBPM {
		t.Fatalf("default = %d", b.Value())
	}

	b.Set(MaxBPM - 1)
	if !b.Increment(5) || b.Value() != MaxBPM {
		t.Errorf("value = %d, want clamp at %d", b.Value(), MaxBPM)
	}
	if b.Increment(1) {
		t.Error("increment at max must report no change")
	}

	b.Set(MinBPM)
	if b.Decrement(1) {
		t.Error("decrement at min must report no change")
	}
}
