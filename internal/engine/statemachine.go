package engine

import (
	"github.com/fieldlab-data/kinemetric/internal/monitoring"
)

// PhaseState names a discrete segment of a motion. The state set is
// configuration data; only the terminal states get special handling.
type PhaseState string

// EventKind names a candidate event emitted by a firing transition.
type EventKind string

// PredicateKind selects how a transition trigger compares against the
// current signal sample. All comparisons run against the smoothed signal,
// never the raw per-frame value.
type PredicateKind string

const (
	// ValueAbove fires while Sample.Value > Threshold.
	ValueAbove PredicateKind = "value_above"
	// ValueBelow fires while Sample.Value < Threshold.
	ValueBelow PredicateKind = "value_below"
	// SpeedAbove fires while |Sample.Velocity| > Threshold.
	SpeedAbove PredicateKind = "speed_above"
	// SpeedBelow fires while |Sample.Velocity| < Threshold.
	SpeedBelow PredicateKind = "speed_below"
	// WithinBand fires while |Sample.Value - Threshold| <= Band.
	WithinBand PredicateKind = "within_band"
)

// Predicate is a trigger condition on a signal sample.
type Predicate struct {
	Kind      PredicateKind `json:"kind"`
	Threshold float64       `json:"threshold"`
	Band      float64       `json:"band,omitempty"` // WithinBand only
}

// Holds evaluates the predicate against a sample.
func (p Predicate) Holds(s Sample) bool {
	switch p.Kind {
	case ValueAbove:
		return s.Value > p.Threshold
	case ValueBelow:
		return s.Value < p.Threshold
	case SpeedAbove:
		return abs(s.Velocity) > p.Threshold
	case SpeedBelow:
		return abs(s.Velocity) < p.Threshold
	case WithinBand:
		return abs(s.Value-p.Threshold) <= p.Band
	default:
		return false
	}
}

// Transition is one outgoing edge of a phase state. A transition fires only
// when its predicate has held continuously for at least HoldTime seconds
// and the state has been occupied at least as long; the hold time debounces
// single-frame noise.
type Transition struct {
	From      PhaseState `json:"from"`
	To        PhaseState `json:"to"`
	Predicate Predicate  `json:"predicate"`
	HoldTime  float64    `json:"hold_time"`
	Emit      EventKind  `json:"emit,omitempty"` // empty emits no event
}

// Range tracks signal extremes over a state occupancy.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Width returns Max - Min.
func (r Range) Width() float64 { return r.Max - r.Min }

func (r *Range) observe(v float64) {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// CandidateEvent is proposed by the state machine but not yet trusted;
// it must pass the anti-cheat validator before it may affect scoring.
type CandidateEvent struct {
	Kind        EventKind  `json:"kind"`
	At          float64    `json:"at_timestamp"`
	AtFrame     uint64     `json:"at_frame"`
	SignalRange Range      `json:"signal_value_range"` // extremes observed during the originating occupancy
	FromState   PhaseState `json:"from_state"`
	EnteredAt   float64    `json:"entered_at"` // when the originating state was entered
}

// Duration returns the occupancy duration of the originating state.
func (e CandidateEvent) Duration() float64 { return e.At - e.EnteredAt }

// MachineConfig declares the states and transitions of a phase machine.
// States and transitions are data, not code: each discipline supplies its
// own table.
type MachineConfig struct {
	Initial     PhaseState   `json:"initial"`
	Terminal    []PhaseState `json:"terminal,omitempty"`
	Transitions []Transition `json:"transitions"`
}

// IsTerminal reports whether a state is absorbing.
func (c MachineConfig) IsTerminal(s PhaseState) bool {
	for _, t := range c.Terminal {
		if t == s {
			return true
		}
	}
	return false
}

// Machine is the generalized phase state machine. It consumes one smoothed
// signal sample per frame and emits phase-transition events. All timing is
// in caller-supplied frame timestamps.
type Machine struct {
	Config MachineConfig

	state      PhaseState
	enteredAt  float64
	enterValue float64
	rng        Range
	started    bool

	// holdSince tracks, per transition index, when its predicate started
	// holding continuously. Cleared on state entry and whenever the
	// predicate lapses.
	holdSince map[int]float64
}

// NewMachine creates a machine in the configured initial state.
// The configuration must already be validated.
func NewMachine(config MachineConfig) *Machine {
	return &Machine{Config: config, state: config.Initial, holdSince: make(map[int]float64)}
}

// State returns the current phase state.
func (m *Machine) State() PhaseState { return m.state }

// EnteredAt returns the timestamp at which the current state was entered.
func (m *Machine) EnteredAt() float64 { return m.enteredAt }

// EnterValue returns the signal value at state entry.
func (m *Machine) EnterValue() float64 { return m.enterValue }

// SignalRange returns the extremes observed during the current occupancy.
func (m *Machine) SignalRange() Range { return m.rng }

// Step advances the machine by one sample. It returns the resulting state
// and, when a transition with an Emit kind fires, a candidate event carrying
// the extremes observed during the occupancy it is leaving.
//
// Terminal states are absorbing: Step becomes a no-op returning the same
// state.
func (m *Machine) Step(s Sample) (PhaseState, *CandidateEvent) {
	if m.Config.IsTerminal(m.state) {
		return m.state, nil
	}

	if !m.started {
		m.started = true
		m.enteredAt = s.Timestamp
		m.enterValue = s.Value
		m.rng = Range{Min: s.Value, Max: s.Value}
	} else {
		m.rng.observe(s.Value)
	}

	var fired *Transition
	for i := range m.Config.Transitions {
		tr := &m.Config.Transitions[i]
		if tr.From != m.state {
			continue
		}
		if !tr.Predicate.Holds(s) {
			delete(m.holdSince, i)
			continue
		}
		since, seen := m.holdSince[i]
		if !seen {
			since = s.Timestamp
			m.holdSince[i] = since
		}
		if s.Timestamp-since < tr.HoldTime || s.Timestamp-m.enteredAt < tr.HoldTime {
			continue
		}
		if fired != nil {
			// Authored configurations are mutually exclusive; surfacing
			// rather than silently resolving keeps bad tables visible.
			monitoring.Logf("engine: ambiguous transitions from state %q at t=%.3f (%q and %q both eligible)",
				m.state, s.Timestamp, fired.To, tr.To)
			continue
		}
		fired = tr
	}
	if fired == nil {
		return m.state, nil
	}

	var ev *CandidateEvent
	if fired.Emit != "" {
		ev = &CandidateEvent{
			Kind:        fired.Emit,
			At:          s.Timestamp,
			AtFrame:     s.Frame,
			SignalRange: m.rng,
			FromState:   m.state,
			EnteredAt:   m.enteredAt,
		}
	}

	m.state = fired.To
	m.enteredAt = s.Timestamp
	m.enterValue = s.Value
	m.rng = Range{Min: s.Value, Max: s.Value}
	m.holdSince = make(map[int]float64)
	return m.state, ev
}

// ResetCycle restarts extreme tracking and the occupancy clock at the given
// sample without changing state. Callers invoke this after a rejected event
// so a partially valid motion cannot be double counted.
func (m *Machine) ResetCycle(s Sample) {
	m.enteredAt = s.Timestamp
	m.enterValue = s.Value
	m.rng = Range{Min: s.Value, Max: s.Value}
	m.holdSince = make(map[int]float64)
}

// Restart returns the machine to the initial state with no history.
func (m *Machine) Restart() {
	m.state = m.Config.Initial
	m.started = false
	m.enteredAt = 0
	m.enterValue = 0
	m.rng = Range{}
	m.holdSince = make(map[int]float64)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
