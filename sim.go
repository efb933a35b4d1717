package lsim

// A StepResult reports the outcome of one simulation step.
type StepResult struct {
	// Passes is the number of scheduler passes the step ran.
	Passes int
	// Stable is false when the pass safety bound tripped before the
	// dirty set drained: the circuit did not converge (it is likely
	// oscillating). The caller may keep stepping or halt; it is not an
	// error.
	Stable bool
	// Changed is set by RunUntilPinChange when the watched pin took a
	// new value.
	Changed bool
}

// A Simulator drives a circuit instance: Idle between calls, Stepping
// while a step runs. It owns the only mutable resource, the instance,
// and is strictly single-threaded: evaluation order over shared nodes
// is load-bearing.
type Simulator struct {
	inst     *CircuitInstance
	stepping bool
}

// NewSimulator wraps an instantiated circuit. The instance must not be
// shared with another simulator.
func NewSimulator(inst *CircuitInstance) *Simulator {
	if inst == nil {
		panic("lsim: nil instance")
	}
	return &Simulator{inst: inst}
}

// Instance returns the circuit instance under simulation.
func (s *Simulator) Instance() *CircuitInstance { return s.inst }

// SetMaxPasses changes the per-step safety bound, recursively.
func (s *Simulator) SetMaxPasses(n int) { s.inst.SetMaxPasses(n) }

// Init resets every pin to undefined, re-applies constants and pull
// resistors, and marks every component dirty, recursively through
// nested instances.
func (s *Simulator) Init() {
	s.guard()
	s.inst.init()
}

// WritePin externally drives a pin, typically an input connector
// output, and schedules dependent components.
func (s *Simulator) WritePin(pin PinID, v Value) {
	s.guard()
	s.inst.WritePin(pin, v)
}

// ReadPin returns the current value of a pin.
func (s *Simulator) ReadPin(pin PinID) Value { return s.inst.ReadPin(pin) }

// NodeValue returns the resolved value of the pin's node.
func (s *Simulator) NodeValue(pin PinID) Value { return s.inst.NodeValue(pin) }

// NodeConflict reports whether the pin's node is in driver conflict.
func (s *Simulator) NodeConflict(pin PinID) bool { return s.inst.NodeConflict(pin) }

// Step runs scheduler passes until the circuit is stable or the pass
// bound trips. Stepping an already-stable circuit changes nothing and
// returns immediately.
func (s *Simulator) Step() StepResult {
	s.guard()
	s.stepping = true
	defer func() { s.stepping = false }()

	s.inst.clearConflicts()
	passes, stable := s.inst.settle(s.inst.maxPasses)
	return StepResult{Passes: passes, Stable: stable}
}

// RunUntilPinChange steps the simulation until the given pin reads a
// value different from its value at call time. It stops early when the
// circuit is stable without a change (no further steps can change it)
// or when the non-convergence bound trips.
func (s *Simulator) RunUntilPinChange(pin PinID) StepResult {
	orig := s.inst.ReadPin(pin)
	var res StepResult
	for i := 0; i < s.inst.maxPasses; i++ {
		res = s.Step()
		if s.inst.ReadPin(pin) != orig {
			res.Changed = true
			return res
		}
		if res.Stable {
			return res
		}
	}
	res.Stable = false
	return res
}

func (s *Simulator) guard() {
	if s.stepping {
		panic("lsim: re-entrant simulator call")
	}
}
