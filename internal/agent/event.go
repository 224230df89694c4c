package agent

import (
	"laserlens/internal/tools"
)

// EventKind tags an Event.
type EventKind int

const (
	// EventChunk carries one streamed fragment.
	EventChunk EventKind = iota
	// EventTurnEnd carries the full response of a completed turn.
	EventTurnEnd
	// EventError ends the stream; Text is the message, Err the cause.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventTurnEnd:
		return "turn_end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of the driver's progress stream.
type Event struct {
	Kind  EventKind
	Loop  int
	Total int
	Text  string
	Err   error

	// Directives holds the turn's executed directives on EventTurnEnd.
	Directives []tools.Result
}

// State is the driver's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCancelled
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further Run is possible on this driver.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateCompleted || s == StateErrored
}

// outcome is how a turn (or the whole loop) ended.
type outcome int

const (
	outcomeContinue outcome = iota
	outcomePause
	outcomeCancel
	outcomeComplete
	outcomeError
)

func (o outcome) state() State {
	switch o {
	case outcomePause:
		return StatePaused
	case outcomeCancel:
		return StateCancelled
	case outcomeComplete:
		return StateCompleted
	case outcomeError:
		return StateErrored
	default:
		return StateRunning
	}
}
