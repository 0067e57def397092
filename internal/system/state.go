package system

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for backup/restore requests the current
// state does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the backup/restore state of the orchestrator.
type State int

const (
	StateNone State = iota
	StateBackup
	StateRestore
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateBackup:
		return "BACKUP"
	case StateRestore:
		return "RESTORE"
	default:
		return "UNKNOWN"
	}
}

// Status is the snapshot reported to the host APIs.
type Status struct {
	State            string `json:"state"`
	Preset           uint8  `json:"preset"`
	SupportedPresets int    `json:"supported_presets"`
	Connected        bool   `json:"connected"`
	BPM              int    `json:"bpm"`
	PendingTasks     int    `json:"pending_tasks"`
}

func ValidateTransition(from, to State) error {
	validTransitions := map[State][]State{
		StateNone:    {StateNone, StateBackup, StateRestore},
		StateBackup:  {StateNone},
		StateRestore: {StateRestore, StateNone},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
