package sim

import "sync"

// StallGuard reports a simulated motor load: a channel pushing against its
// limit reads 0, a free-running one reads FreeLoad.
type StallGuard struct {
	mu         sync.Mutex
	actuators  []*Actuator
	thresholds []uint8
	lastBlock  []uint64
}

// FreeLoad is the scaled load result of an unobstructed motor
const FreeLoad = 200

// NewStallGuard watches the given actuators
func NewStallGuard(actuators []*Actuator) *StallGuard {
	return &StallGuard{
		actuators:  actuators,
		thresholds: make([]uint8, len(actuators)),
		lastBlock:  make([]uint64, len(actuators)),
	}
}

func (s *StallGuard) SetStallThreshold(channel int, threshold uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= len(s.thresholds) {
		return errInvalidChannel(channel)
	}
	s.thresholds[channel] = threshold
	return nil
}

// Threshold returns the last programmed threshold
func (s *StallGuard) Threshold(channel int) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= len(s.thresholds) {
		return 0
	}
	return s.thresholds[channel]
}

// StallResult reads 0 when the actuator lost pulses against a limit since
// the previous read
func (s *StallGuard) StallResult(channel int) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= len(s.actuators) {
		return 0, errInvalidChannel(channel)
	}
	blocked := s.actuators[channel].Blocked()
	stalled := blocked != s.lastBlock[channel]
	s.lastBlock[channel] = blocked
	if stalled {
		return 0, nil
	}
	return FreeLoad, nil
}
