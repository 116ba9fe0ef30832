package core

// Window dressing state model shared by the sequencer, dispatcher and protocol

// WindowDressingState is the position and slat angle of a window dressing.
// Position is 0 (closed) to 100 (fully open); Tilt is -90 to 90 degrees.
type WindowDressingState struct {
	Position uint8 `json:"position"`
	Tilt     int8  `json:"tilt"`
}

// Closed returns the fully closed extreme
func Closed() WindowDressingState {
	return WindowDressingState{Position: 0, Tilt: 90}
}

// Opened returns the fully opened extreme
func Opened() WindowDressingState {
	return WindowDressingState{Position: 100, Tilt: 0}
}

// Compare orders states by position, then by tilt with the higher tilt sorting
// lower (more closed). Returns -1, 0 or 1.
func Compare(a, b WindowDressingState) int {
	if a.Position == b.Position {
		switch {
		case a.Tilt > b.Tilt:
			return -1
		case a.Tilt < b.Tilt:
			return 1
		}
		return 0
	}
	if a.Position < b.Position {
		return -1
	}
	return 1
}

// Direction is the motion sense of an instruction
type Direction uint8

const (
	Hold    Direction = iota // Timed pause, no pulses
	Extend                   // Closes (position decreases)
	Retract                  // Opens (position increases)
)

// String returns the direction name for logs
func (d Direction) String() string {
	switch d {
	case Hold:
		return "hold"
	case Extend:
		return "extend"
	case Retract:
		return "retract"
	default:
		return "unknown"
	}
}

// Instruction is a directional pulse count and the state reached once it completes
type Instruction struct {
	Quality        Direction
	Quantity       uint32
	CompletedState WindowDressingState
}

// Merge folds next into i. Both must share the same quality; the grouping
// algorithm guarantees this, so a mismatch is a programming error.
func (i *Instruction) Merge(next Instruction) {
	if i.Quality != next.Quality {
		panic("cannot merge instructions of different quality")
	}
	i.Quantity += next.Quantity
	i.CompletedState = next.CompletedState
}
