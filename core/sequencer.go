package core

// Instruction sequencer
// Converts position/tilt targets into a queue of directional pulse-count
// instructions. One sequencer per channel, owned by the controller loop.

const (
	// HoldQuantity is the pause, in pulse periods, inserted before a reversal
	// and after the last move of a trip
	HoldQuantity = 500

	// DefaultFullCycleQuantity is used until the host sends a setup command
	DefaultFullCycleQuantity = 100_000

	// TiltRange is the number of one-degree tilt increments in a full sweep
	TiltRange = 180
)

// Sequencer plans the instructions for a single window dressing
type Sequencer struct {
	fullCycleQuantity uint32  // Pulses for 0 to 100% travel
	fullTiltQuantity  *uint32 // Pulses for a full tilt sweep, nil for roller type

	instructions *InstructionQueue

	currentState WindowDressingState // State after the last completed instruction
	desiredState WindowDressingState // Target commanded by the host
}

// NewSequencer creates a sequencer. fullTilt nil means no tilt capability.
func NewSequencer(fullCycle uint32, fullTilt *uint32, capacity int) *Sequencer {
	s := &Sequencer{
		fullCycleQuantity: fullCycle,
		instructions:      NewInstructionQueue(capacity),
	}
	if fullTilt != nil {
		v := *fullTilt
		s.fullTiltQuantity = &v
	}
	return s
}

// NewRoller creates a sequencer without tilt capability
func NewRoller(fullCycle uint32, capacity int) *Sequencer {
	return NewSequencer(fullCycle, nil, capacity)
}

// NewVenetian creates a sequencer with tilt capability
func NewVenetian(fullCycle, fullTilt uint32, capacity int) *Sequencer {
	return NewSequencer(fullCycle, &fullTilt, capacity)
}

// HasTilt reports whether the dressing has slats that can be tilted
func (s *Sequencer) HasTilt() bool {
	return s.fullTiltQuantity != nil
}

// CurrentState returns the state after the last completed instruction
func (s *Sequencer) CurrentState() WindowDressingState {
	return s.currentState
}

// DesiredState returns the target set by the last command
func (s *Sequencer) DesiredState() WindowDressingState {
	return s.desiredState
}

// Pending returns the number of queued instructions
func (s *Sequencer) Pending() int {
	return s.instructions.Len()
}

// tailState is the state reached once every queued instruction completes
func (s *Sequencer) tailState() WindowDressingState {
	if tail, ok := s.instructions.Back(); ok {
		return tail.CompletedState
	}
	return s.currentState
}

// push appends an instruction. A full queue drops it; the state already
// queued stays consistent, so the failure is deliberately ignored.
func (s *Sequencer) push(in Instruction) {
	_ = s.instructions.PushBack(in)
}

// LoadState seeds a known position, as there is no absolute encoder
func (s *Sequencer) LoadState(state WindowDressingState) {
	s.currentState = state
	s.desiredState = state
}

// SetState moves to a position, then tilts
func (s *Sequencer) SetState(state WindowDressingState) {
	s.SetPosition(state.Position)
	s.SetTilt(state.Tilt)
}

// SetPosition replaces the queue with a trip to the given position
func (s *Sequencer) SetPosition(target uint8) {
	target = clamp(target, 0, 100)
	s.desiredState.Position = target

	tail, hasTail := s.instructions.PopBack()
	s.instructions.Clear()

	change := abs(int16(target) - int16(s.currentState.Position))
	if change == 0 {
		return
	}

	opening := target > s.currentState.Position
	quality := Extend
	if opening {
		quality = Retract
	}

	// Pause before reversing so the motor is not rammed backwards
	if hasTail && tail.Quality != quality {
		s.push(Instruction{
			Quality:        Hold,
			Quantity:       HoldQuantity,
			CompletedState: s.currentState,
		})
	}

	// Slats travel edge-on
	angleWhileMoving := int8(90)
	if opening {
		angleWhileMoving = -90
	}
	s.addTilt(s.currentState.Tilt, angleWhileMoving)
	if !s.HasTilt() {
		angleWhileMoving = 0
	}

	for step := int16(1); step <= change; step++ {
		relative := step
		if !opening {
			relative = -step
		}
		s.push(Instruction{
			Quality:  quality,
			Quantity: s.fullCycleQuantity / 100,
			CompletedState: WindowDressingState{
				Position: uint8(int16(s.currentState.Position) + relative),
				Tilt:     angleWhileMoving,
			},
		})
	}

	s.addTilt(angleWhileMoving, s.currentState.Tilt)
}

// SetTilt tilts from the queued tail angle to the target
func (s *Sequencer) SetTilt(target int8) {
	s.addTilt(s.tailState().Tilt, clamp(target, -90, 90))
}

// addTilt queues one instruction per degree between two angles
func (s *Sequencer) addTilt(from, to int8) {
	change := abs(int16(to) - int16(from))
	if change == 0 || s.fullTiltQuantity == nil {
		return
	}

	tail, hasTail := s.instructions.Back()
	position := s.tailState().Position
	s.desiredState.Tilt = to

	opening := to < from
	quality := Extend
	if opening {
		quality = Retract
	}

	// Fully open slats cannot be tilted; record the state change only
	if position == 100 {
		s.push(Instruction{
			Quality:        Hold,
			Quantity:       0,
			CompletedState: WindowDressingState{Position: position, Tilt: to},
		})
		return
	}

	if hasTail && tail.Quality != quality {
		s.push(Instruction{
			Quality:        Hold,
			Quantity:       HoldQuantity,
			CompletedState: tail.CompletedState,
		})
	}

	for step := int16(1); step <= change; step++ {
		tilt := int16(from) + step
		if opening {
			tilt = int16(from) - step
		}
		s.push(Instruction{
			Quality:        quality,
			Quantity:       *s.fullTiltQuantity / TiltRange,
			CompletedState: WindowDressingState{Position: position, Tilt: int8(tilt)},
		})
	}
}

// NextInstruction pops the next instruction for the hardware. Once the last
// motion instruction is taken a trailing Hold is queued, so the queue is
// never left empty after real motion.
func (s *Sequencer) NextInstruction() (Instruction, bool) {
	next, ok := s.instructions.PopFront()
	if !ok {
		return Instruction{}, false
	}
	s.currentState = next.CompletedState

	if s.instructions.IsEmpty() && next.Quality != Hold {
		s.push(Instruction{
			Quality:        Hold,
			Quantity:       HoldQuantity,
			CompletedState: s.currentState,
		})
	}

	return next, true
}

// NextInstructionGrouped merges consecutive instructions of the same quality
// until the quantity reaches threshold. An instruction of another quality is
// left at the front of the queue.
func (s *Sequencer) NextInstructionGrouped(threshold uint32) (Instruction, bool) {
	buf, ok := s.NextInstruction()
	if !ok {
		return Instruction{}, false
	}

	for buf.Quantity < threshold {
		front, ok := s.instructions.Front()
		if !ok || front.Quality != buf.Quality {
			break
		}
		next, _ := s.NextInstruction()
		buf.Merge(next)
	}

	return buf, true
}

// TriggerEndstop handles travel-limit feedback. The reached extreme is
// inferred from the direction of travel.
func (s *Sequencer) TriggerEndstop() {
	s.instructions.Clear()

	var opening bool
	if s.currentState == s.desiredState {
		// At rest: a repeated trigger keeps the extreme already reached
		opening = s.currentState.Position == 100
	} else if s.currentState.Position == s.desiredState.Position {
		opening = s.currentState.Tilt > s.desiredState.Tilt
	} else {
		opening = s.currentState.Position < s.desiredState.Position ||
			s.currentState.Position == 100
	}

	end := WindowDressingState{}
	if opening {
		end.Position = 100
	}
	if s.HasTilt() {
		end.Tilt = 90
	}

	s.currentState = end
	s.desiredState = end
	s.push(Instruction{
		Quality:        Hold,
		Quantity:       HoldQuantity,
		CompletedState: end,
	})
}

// HomeFullyOpened assumes the dressing is closed and walks it fully open
func (s *Sequencer) HomeFullyOpened() {
	s.currentState = Closed()
	s.desiredState = Closed()
	s.SetPosition(Opened().Position)
}

// HomeFullyClosed assumes the dressing is open and walks it fully closed
func (s *Sequencer) HomeFullyClosed() {
	s.currentState = Opened()
	s.desiredState = Opened()
	s.SetPosition(Closed().Position)
}
