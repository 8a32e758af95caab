package domain

import "time"

// RequestHash is the opaque handle the ledger client assigns once a write is broadcast.
type RequestHash string

// AttemptID identifies one beginOperation call, independent of the ledger hash it produced.
type AttemptID string

type OperationState int

const (
	OperationIdle OperationState = iota
	OperationSubmitted
	OperationConfirming
	OperationConfirmed
	OperationFailed
)

func (s OperationState) String() string {
	switch s {
	case OperationIdle:
		return "idle"
	case OperationSubmitted:
		return "submitted"
	case OperationConfirming:
		return "confirming"
	case OperationConfirmed:
		return "confirmed"
	case OperationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s OperationState) IsTerminal() bool {
	return s == OperationConfirmed || s == OperationFailed
}

func (s OperationState) IsPending() bool {
	return s == OperationSubmitted || s == OperationConfirming
}

func ParseOperationState(raw string) (OperationState, bool) {
	for _, state := range []OperationState{OperationIdle, OperationSubmitted, OperationConfirming, OperationConfirmed, OperationFailed} {
		if state.String() == raw {
			return state, true
		}
	}
	return OperationIdle, false
}

// Transition is one externally observed state change for a request hash.
type Transition struct {
	Hash   RequestHash
	State  OperationState
	Reason error
}

type Operation struct {
	Attempt     AttemptID
	Hash        RequestHash
	State       OperationState
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// OperationOutcome is delivered exactly once per attempt when it reaches a terminal state.
type OperationOutcome struct {
	Operation Operation
	Err       error
}

// TerminalKey is the dedup key for terminal side effects.
type TerminalKey struct {
	Attempt AttemptID
	Hash    RequestHash
}

func (k TerminalKey) String() string {
	return string(k.Attempt) + "/" + string(k.Hash)
}
