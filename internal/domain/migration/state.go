package migration

import (
	"fmt"

	"github.com/crmigrate/backend/internal/domain/crm"
)

// Phase is a state of the orchestration state machine
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseRunning      Phase = "running"
	PhaseFinalizing   Phase = "finalizing"
	PhaseCompleted    Phase = "completed"
	PhaseAborted      Phase = "aborted"
)

// IsTerminal returns true for completed and aborted
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// StateMachine enforces INITIALIZING -> RUNNING(kind)... -> FINALIZING ->
// COMPLETED, with ABORTED reachable from any non-terminal phase. Kinds must be
// entered in import order.
type StateMachine struct {
	phase Phase
	order []crm.EntityKind
	next  int
}

// NewStateMachine starts in PhaseInitializing with the standard import order
func NewStateMachine() *StateMachine {
	return &StateMachine{phase: PhaseInitializing, order: crm.ImportOrder()}
}

// Phase returns the current phase
func (m *StateMachine) Phase() Phase {
	return m.phase
}

// CurrentKind returns the kind being imported, or "" outside PhaseRunning
func (m *StateMachine) CurrentKind() crm.EntityKind {
	if m.phase != PhaseRunning || m.next == 0 {
		return ""
	}
	return m.order[m.next-1]
}

// StartKind enters RUNNING(kind)
func (m *StateMachine) StartKind(kind crm.EntityKind) error {
	if m.phase != PhaseInitializing && m.phase != PhaseRunning {
		return m.illegal(fmt.Sprintf("running(%s)", kind))
	}
	if m.next >= len(m.order) || m.order[m.next] != kind {
		return fmt.Errorf("%w: %s is out of import order", ErrInvalidTransition, kind)
	}
	m.phase = PhaseRunning
	m.next++
	return nil
}

// Finalize enters FINALIZING once every kind has run
func (m *StateMachine) Finalize() error {
	if m.phase != PhaseRunning || m.next != len(m.order) {
		return m.illegal(string(PhaseFinalizing))
	}
	m.phase = PhaseFinalizing
	return nil
}

// Complete enters COMPLETED
func (m *StateMachine) Complete() error {
	if m.phase != PhaseFinalizing {
		return m.illegal(string(PhaseCompleted))
	}
	m.phase = PhaseCompleted
	return nil
}

// Abort enters ABORTED
func (m *StateMachine) Abort() error {
	if m.phase.IsTerminal() {
		return m.illegal(string(PhaseAborted))
	}
	m.phase = PhaseAborted
	return nil
}

func (m *StateMachine) illegal(to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.phase, to)
}
