package valueobject

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// WorkflowStep – immutable value object
// ---------------------------------------------------------------------------

// WorkflowStep is the position of a session in the origination workflow.
type WorkflowStep struct {
	value string
}

const (
	stepInitial        = "initial"
	stepKYCVerified    = "kyc_verified"
	stepSalaryRequired = "salary_required"
	stepApproved       = "approved"
	stepCompleted      = "completed"
	stepRejected       = "rejected"
)

var (
	StepInitial        = WorkflowStep{value: stepInitial}
	StepKYCVerified    = WorkflowStep{value: stepKYCVerified}
	StepSalaryRequired = WorkflowStep{value: stepSalaryRequired}
	StepApproved       = WorkflowStep{value: stepApproved}
	StepCompleted      = WorkflowStep{value: stepCompleted}
	StepRejected       = WorkflowStep{value: stepRejected}
)

var validWorkflowSteps = map[string]WorkflowStep{
	stepInitial:        StepInitial,
	stepKYCVerified:    StepKYCVerified,
	stepSalaryRequired: StepSalaryRequired,
	stepApproved:       StepApproved,
	stepCompleted:      StepCompleted,
	stepRejected:       StepRejected,
}

// stepTransitions lists the steps reachable from each step. Re-entering the
// same step is allowed where a new evaluation can repeat an outcome.
var stepTransitions = map[string][]string{
	stepInitial:        {stepKYCVerified},
	stepKYCVerified:    {stepKYCVerified, stepSalaryRequired, stepApproved, stepRejected},
	stepSalaryRequired: {stepSalaryRequired, stepApproved, stepRejected},
	stepApproved:       {stepApproved, stepSalaryRequired, stepRejected, stepCompleted},
	stepCompleted:      {},
	stepRejected:       {},
}

// NewWorkflowStep creates a WorkflowStep from a raw string.
func NewWorkflowStep(s string) (WorkflowStep, error) {
	v, ok := validWorkflowSteps[s]
	if !ok {
		return WorkflowStep{}, fmt.Errorf("invalid workflow step: %q", s)
	}
	return v, nil
}

// CanTransitionTo reports whether next is reachable from s.
func (s WorkflowStep) CanTransitionTo(next WorkflowStep) bool {
	for _, allowed := range stepTransitions[s.value] {
		if allowed == next.value {
			return true
		}
	}
	return false
}

// IsTerminal is true for completed and rejected sessions.
func (s WorkflowStep) IsTerminal() bool {
	return s.value == stepCompleted || s.value == stepRejected
}

// String returns the string representation of the step.
func (s WorkflowStep) String() string { return s.value }

// IsZero returns true if the step has not been initialised.
func (s WorkflowStep) IsZero() bool { return s.value == "" }

// Equal returns true when both steps carry the same value.
func (s WorkflowStep) Equal(other WorkflowStep) bool { return s.value == other.value }

// ---------------------------------------------------------------------------
// SessionStatus – immutable value object
// ---------------------------------------------------------------------------

// SessionStatus is the coarse outcome of a session.
type SessionStatus struct {
	value string
}

const (
	sessionStatusActive   = "active"
	sessionStatusApproved = "approved"
	sessionStatusRejected = "rejected"
	sessionStatusPending  = "pending"
)

var (
	SessionStatusActive   = SessionStatus{value: sessionStatusActive}
	SessionStatusApproved = SessionStatus{value: sessionStatusApproved}
	SessionStatusRejected = SessionStatus{value: sessionStatusRejected}
	SessionStatusPending  = SessionStatus{value: sessionStatusPending}
)

var validSessionStatuses = map[string]SessionStatus{
	sessionStatusActive:   SessionStatusActive,
	sessionStatusApproved: SessionStatusApproved,
	sessionStatusRejected: SessionStatusRejected,
	sessionStatusPending:  SessionStatusPending,
}

// NewSessionStatus creates a SessionStatus from a raw string.
func NewSessionStatus(s string) (SessionStatus, error) {
	v, ok := validSessionStatuses[s]
	if !ok {
		return SessionStatus{}, fmt.Errorf("invalid session status: %q", s)
	}
	return v, nil
}

// String returns the string representation of the status.
func (s SessionStatus) String() string { return s.value }

// IsZero returns true if the status has not been initialised.
func (s SessionStatus) IsZero() bool { return s.value == "" }

// Equal returns true when both statuses carry the same value.
func (s SessionStatus) Equal(other SessionStatus) bool { return s.value == other.value }

// ---------------------------------------------------------------------------
// SanctionStatus – immutable value object
// ---------------------------------------------------------------------------

// SanctionStatus tracks whether a sanction letter has been collected.
type SanctionStatus struct {
	value string
}

const (
	sanctionStatusGenerated  = "generated"
	sanctionStatusDownloaded = "downloaded"
)

var (
	SanctionStatusGenerated  = SanctionStatus{value: sanctionStatusGenerated}
	SanctionStatusDownloaded = SanctionStatus{value: sanctionStatusDownloaded}
)

var validSanctionStatuses = map[string]SanctionStatus{
	sanctionStatusGenerated:  SanctionStatusGenerated,
	sanctionStatusDownloaded: SanctionStatusDownloaded,
}

// NewSanctionStatus creates a SanctionStatus from a raw string.
func NewSanctionStatus(s string) (SanctionStatus, error) {
	v, ok := validSanctionStatuses[s]
	if !ok {
		return SanctionStatus{}, fmt.Errorf("invalid sanction status: %q", s)
	}
	return v, nil
}

// String returns the string representation.
func (s SanctionStatus) String() string { return s.value }

// IsZero returns true when not initialised.
func (s SanctionStatus) IsZero() bool { return s.value == "" }

// Equal returns true when both statuses match.
func (s SanctionStatus) Equal(other SanctionStatus) bool { return s.value == other.value }

// ---------------------------------------------------------------------------
// DecisionKind – immutable value object
// ---------------------------------------------------------------------------

// DecisionKind is the outcome class of one underwriting evaluation.
type DecisionKind struct {
	value string
}

const (
	decisionApproved       = "approved"
	decisionRejected       = "rejected"
	decisionSalaryRequired = "salary_required"
)

var (
	DecisionApproved       = DecisionKind{value: decisionApproved}
	DecisionRejected       = DecisionKind{value: decisionRejected}
	DecisionSalaryRequired = DecisionKind{value: decisionSalaryRequired}
)

// String returns the string representation.
func (k DecisionKind) String() string { return k.value }

// IsZero returns true when not initialised.
func (k DecisionKind) IsZero() bool { return k.value == "" }

// Equal returns true when both kinds match.
func (k DecisionKind) Equal(other DecisionKind) bool { return k.value == other.value }

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)
