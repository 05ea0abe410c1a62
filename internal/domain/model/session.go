package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/event"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

const (
	MinTenureMonths     = 1
	MaxTenureMonths     = 360
	DefaultTenureMonths = 12
)

// ErrCustomerNotBound is returned when a step needs a verified customer.
var ErrCustomerNotBound = fmt.Errorf("%w: no verified customer on session", apperr.ErrInvariantViolation)

// ---------------------------------------------------------------------------
// Session aggregate root
// ---------------------------------------------------------------------------

// Session is an immutable aggregate. Every mutation returns a new copy.
// Turns and audit entries are append-only; the persisted counters mark how
// many of each the store already holds.
type Session struct {
	id                string
	turns             []Turn
	step              valueobject.WorkflowStep
	status            valueobject.SessionStatus
	customerID        string
	requestedAmount   decimal.NullDecimal
	tenureMonths      int
	kycVerified       bool
	creditCheckDone   bool
	salaryUploaded    bool
	sanctionGenerated bool
	sanctionID        string
	approvedTerms     LoanTerms
	auditLog          []AuditEntry
	version           int
	createdAt         time.Time
	updatedAt         time.Time

	persistedTurns  int
	persistedAudit  int
	pendingSanction *Sanction
	domainEvents    []event.DomainEvent
}

// SessionSnapshot is the flat persisted form of a Session.
type SessionSnapshot struct {
	ID                string
	Turns             []Turn
	Step              valueobject.WorkflowStep
	Status            valueobject.SessionStatus
	CustomerID        string
	RequestedAmount   decimal.NullDecimal
	TenureMonths      int
	KYCVerified       bool
	CreditCheckDone   bool
	SalaryUploaded    bool
	SanctionGenerated bool
	SanctionID        string
	ApprovedTerms     LoanTerms
	AuditLog          []AuditEntry
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NewSession creates an empty session at the initial step.
func NewSession(id string, now time.Time) (Session, error) {
	if id == "" {
		return Session{}, apperr.Validationf("session ID is required")
	}
	return Session{
		id:        id,
		step:      valueobject.StepInitial,
		status:    valueobject.SessionStatusActive,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructSession rebuilds an aggregate from persistence without side-effects.
func ReconstructSession(s SessionSnapshot) Session {
	return Session{
		id:                s.ID,
		turns:             s.Turns,
		step:              s.Step,
		status:            s.Status,
		customerID:        s.CustomerID,
		requestedAmount:   s.RequestedAmount,
		tenureMonths:      s.TenureMonths,
		kycVerified:       s.KYCVerified,
		creditCheckDone:   s.CreditCheckDone,
		salaryUploaded:    s.SalaryUploaded,
		sanctionGenerated: s.SanctionGenerated,
		sanctionID:        s.SanctionID,
		approvedTerms:     s.ApprovedTerms,
		auditLog:          s.AuditLog,
		version:           s.Version,
		createdAt:         s.CreatedAt,
		updatedAt:         s.UpdatedAt,
		persistedTurns:    len(s.Turns),
		persistedAudit:    len(s.AuditLog),
	}
}

// ---------------------------------------------------------------------------
// State transitions (each returns a new copy)
// ---------------------------------------------------------------------------

// AppendTurn records a conversational message. Turns are accepted in every
// step, terminal ones included.
func (s Session) AppendTurn(role TurnRole, content string, now time.Time) (Session, error) {
	if role != RoleUser && role != RoleAssistant {
		return s, apperr.Validationf("unknown turn role %q", role)
	}
	next := s.clone()
	next.turns = append(next.turns, Turn{Role: role, Content: content, At: now})
	next.updatedAt = now
	return next, nil
}

// WithRequestedAmount records the amount the customer asked for.
func (s Session) WithRequestedAmount(amount decimal.Decimal, now time.Time) (Session, error) {
	if s.step.IsTerminal() {
		return s, fmt.Errorf("update amount in step %s: %w", s.step, valueobject.ErrInvalidStatusTransition)
	}
	if !amount.IsPositive() {
		return s, apperr.Validationf("requested amount must be positive, got %s", amount)
	}
	next := s.clone()
	next.requestedAmount = decimal.NewNullDecimal(amount)
	next.updatedAt = now
	return next, nil
}

// WithTenure records the repayment period in months.
func (s Session) WithTenure(months int, now time.Time) (Session, error) {
	if s.step.IsTerminal() {
		return s, fmt.Errorf("update tenure in step %s: %w", s.step, valueobject.ErrInvalidStatusTransition)
	}
	if months < MinTenureMonths || months > MaxTenureMonths {
		return s, apperr.Validationf("tenure must be between %d and %d months, got %d", MinTenureMonths, MaxTenureMonths, months)
	}
	next := s.clone()
	next.tenureMonths = months
	next.updatedAt = now
	return next, nil
}

// BindCustomer marks KYC as passed for customerID.
func (s Session) BindCustomer(customerID, phone string, now time.Time) (Session, error) {
	if customerID == "" {
		return s, apperr.Validationf("customer ID is required")
	}
	if err := s.checkTransition(valueobject.StepKYCVerified); err != nil {
		return s, err
	}
	next := s.clone()
	next.customerID = customerID
	next.kycVerified = true
	next.step = valueobject.StepKYCVerified
	next.updatedAt = now
	next.auditLog = append(next.auditLog, AuditEntry{
		Action: AuditKYCVerified,
		At:     now,
		Details: map[string]any{
			"customer_id": customerID,
			"phone":       maskPhone(phone),
		},
	})
	next.domainEvents = append(next.domainEvents, event.NewKYCVerified(s.id, customerID, now))
	return next, next.checkInvariants()
}

// RecordSalaryUpload notes that a salary document was received.
func (s Session) RecordSalaryUpload(salary decimal.Decimal, filename string, now time.Time) (Session, error) {
	if !s.kycVerified {
		return s, ErrCustomerNotBound
	}
	if s.step.IsTerminal() {
		return s, fmt.Errorf("salary upload in step %s: %w", s.step, valueobject.ErrInvalidStatusTransition)
	}
	if !salary.IsPositive() {
		return s, apperr.Validationf("monthly salary must be positive")
	}
	next := s.clone()
	next.salaryUploaded = true
	next.updatedAt = now
	next.auditLog = append(next.auditLog, AuditEntry{
		Action: AuditSalarySlipUploaded,
		At:     now,
		Details: map[string]any{
			"filename": filename,
			"salary":   salary,
		},
	})
	next.domainEvents = append(next.domainEvents,
		event.NewSalarySlipUploaded(s.id, s.customerID, salary, filename, now))
	return next, nil
}

// ApplyDecision moves the session to the step implied by an underwriting
// outcome and appends the decision's audit entry in the same copy. An
// approval keeps terms so the sanction is issued on exactly what was
// approved; any other outcome clears them.
func (s Session) ApplyDecision(kind valueobject.DecisionKind, terms LoanTerms, entry AuditEntry, now time.Time) (Session, error) {
	if !s.kycVerified {
		return s, ErrCustomerNotBound
	}
	if kind.Equal(valueobject.DecisionApproved) && !terms.Valid() {
		return s, fmt.Errorf("%w: approval without loan terms", apperr.ErrInvariantViolation)
	}

	var (
		step   valueobject.WorkflowStep
		status valueobject.SessionStatus
	)
	switch {
	case kind.Equal(valueobject.DecisionApproved):
		step, status = valueobject.StepApproved, valueobject.SessionStatusApproved
	case kind.Equal(valueobject.DecisionRejected):
		step, status = valueobject.StepRejected, valueobject.SessionStatusRejected
	case kind.Equal(valueobject.DecisionSalaryRequired):
		step, status = valueobject.StepSalaryRequired, valueobject.SessionStatusPending
	default:
		return s, fmt.Errorf("%w: unknown decision %q", apperr.ErrInvariantViolation, kind)
	}
	if err := s.checkTransition(step); err != nil {
		return s, err
	}

	next := s.clone()
	next.step = step
	next.status = status
	next.creditCheckDone = true
	next.approvedTerms = LoanTerms{}
	if step.Equal(valueobject.StepApproved) {
		next.approvedTerms = terms
	}
	next.updatedAt = now
	next.auditLog = append(next.auditLog, stamp(entry, now))
	next.domainEvents = append(next.domainEvents, event.NewUnderwritingDecided(
		s.id, s.customerID, kind.String(), entry.Action,
		s.requestedAmount.Decimal, s.EffectiveTenure(), now,
	))
	return next, next.checkInvariants()
}

// RecordRepeatedQuery logs an underwriting request against a session whose
// outcome is already final. The step does not change.
func (s Session) RecordRepeatedQuery(details map[string]any, now time.Time) (Session, error) {
	if !s.step.IsTerminal() {
		return s, fmt.Errorf("repeated query in step %s: %w", s.step, valueobject.ErrInvalidStatusTransition)
	}
	next := s.clone()
	next.updatedAt = now
	next.auditLog = append(next.auditLog, AuditEntry{
		Action:  AuditUnderwritingRepeatedQuery,
		At:      now,
		Details: details,
	})
	return next, nil
}

// CompleteWithSanction closes an approved session with its sanction. The
// sanction rides along as a pending child and is stored in the same write as
// the session.
func (s Session) CompleteWithSanction(sanction Sanction, now time.Time) (Session, error) {
	sanctionID := sanction.ID()
	if sanctionID == "" {
		return s, apperr.Validationf("sanction ID is required")
	}
	if sanction.SessionID() != s.id {
		return s, fmt.Errorf("%w: sanction %s belongs to session %s", apperr.ErrInvariantViolation, sanctionID, sanction.SessionID())
	}
	if s.sanctionGenerated {
		return s, fmt.Errorf("sanction %s already issued: %w", s.sanctionID, valueobject.ErrInvalidStatusTransition)
	}
	if !s.status.Equal(valueobject.SessionStatusApproved) {
		return s, fmt.Errorf("sanction for %s session: %w", s.status, valueobject.ErrInvalidStatusTransition)
	}
	if err := s.checkTransition(valueobject.StepCompleted); err != nil {
		return s, err
	}

	details := sanction.Terms().AuditDetails()
	details["sanction_id"] = sanctionID

	next := s.clone()
	next.sanctionGenerated = true
	next.sanctionID = sanctionID
	next.pendingSanction = &sanction
	next.step = valueobject.StepCompleted
	next.updatedAt = now
	next.auditLog = append(next.auditLog, AuditEntry{
		Action:  AuditSanctionGenerated,
		At:      now,
		Details: details,
	})
	next.domainEvents = append(next.domainEvents, event.NewSessionCompleted(s.id, sanctionID, now))
	return next, next.checkInvariants()
}

// Committed returns the copy a store hands back after a successful write:
// version bumped, everything marked persisted and events drained.
func (s Session) Committed() Session {
	next := s.clone()
	next.version = s.version + 1
	next.persistedTurns = len(s.turns)
	next.persistedAudit = len(s.auditLog)
	next.pendingSanction = nil
	next.domainEvents = nil
	return next
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (s Session) ID() string                        { return s.id }
func (s Session) Step() valueobject.WorkflowStep    { return s.step }
func (s Session) Status() valueobject.SessionStatus { return s.status }
func (s Session) CustomerID() string                { return s.customerID }
func (s Session) TenureMonths() int                 { return s.tenureMonths }
func (s Session) KYCVerified() bool                 { return s.kycVerified }
func (s Session) CreditCheckDone() bool             { return s.creditCheckDone }
func (s Session) SalaryUploaded() bool              { return s.salaryUploaded }
func (s Session) SanctionGenerated() bool           { return s.sanctionGenerated }
func (s Session) SanctionID() string                { return s.sanctionID }
func (s Session) Version() int                      { return s.version }
func (s Session) CreatedAt() time.Time              { return s.createdAt }
func (s Session) UpdatedAt() time.Time              { return s.updatedAt }
func (s Session) DomainEvents() []event.DomainEvent { return s.domainEvents }

// RequestedAmount reports the amount asked for, if any.
func (s Session) RequestedAmount() (decimal.Decimal, bool) {
	return s.requestedAmount.Decimal, s.requestedAmount.Valid
}

// ApprovedTerms are the terms of the standing approval, if any.
func (s Session) ApprovedTerms() (LoanTerms, bool) {
	return s.approvedTerms, s.approvedTerms.Valid()
}

// PendingSanction is the sanction issued by this copy and not yet stored.
func (s Session) PendingSanction() (Sanction, bool) {
	if s.pendingSanction == nil {
		return Sanction{}, false
	}
	return *s.pendingSanction, true
}

// IsNew reports whether the session has never been stored.
func (s Session) IsNew() bool { return s.version == 0 }

// EffectiveTenure falls back to the default tenure when none was given.
func (s Session) EffectiveTenure() int {
	if s.tenureMonths == 0 {
		return DefaultTenureMonths
	}
	return s.tenureMonths
}

// Turns returns a copy of the conversation.
func (s Session) Turns() []Turn { return append([]Turn(nil), s.turns...) }

// AuditLog returns a copy of the audit log.
func (s Session) AuditLog() []AuditEntry { return append([]AuditEntry(nil), s.auditLog...) }

// PendingTurns are turns not yet written to the store.
func (s Session) PendingTurns() []Turn { return s.turns[s.persistedTurns:] }

// PendingAudit are audit entries not yet written to the store.
func (s Session) PendingAudit() []AuditEntry { return s.auditLog[s.persistedAudit:] }

// PersistedTurnCount is the sequence number the first pending turn will take.
func (s Session) PersistedTurnCount() int { return s.persistedTurns }

// PersistedAuditCount is the sequence number the first pending audit entry will take.
func (s Session) PersistedAuditCount() int { return s.persistedAudit }

// Snapshot flattens the session for persistence.
func (s Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:                s.id,
		Turns:             s.Turns(),
		Step:              s.step,
		Status:            s.status,
		CustomerID:        s.customerID,
		RequestedAmount:   s.requestedAmount,
		TenureMonths:      s.tenureMonths,
		KYCVerified:       s.kycVerified,
		CreditCheckDone:   s.creditCheckDone,
		SalaryUploaded:    s.salaryUploaded,
		SanctionGenerated: s.sanctionGenerated,
		SanctionID:        s.sanctionID,
		ApprovedTerms:     s.approvedTerms,
		AuditLog:          s.AuditLog(),
		Version:           s.version,
		CreatedAt:         s.createdAt,
		UpdatedAt:         s.updatedAt,
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s Session) checkTransition(to valueobject.WorkflowStep) error {
	if !s.step.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s: %w",
			apperr.ErrInvariantViolation, s.step, to, valueobject.ErrInvalidStatusTransition)
	}
	return nil
}

func (s Session) checkInvariants() error {
	var errs []error
	if s.kycVerified && s.customerID == "" {
		errs = append(errs, errors.New("kyc verified without customer"))
	}
	if s.sanctionGenerated && (s.sanctionID == "" || !s.status.Equal(valueobject.SessionStatusApproved)) {
		errs = append(errs, errors.New("sanction flagged without approved sanction id"))
	}
	if s.step.Equal(valueobject.StepApproved) && !(s.creditCheckDone && s.kycVerified) {
		errs = append(errs, errors.New("approved before credit check"))
	}
	if s.step.Equal(valueobject.StepApproved) && !s.approvedTerms.Valid() {
		errs = append(errs, errors.New("approved without terms"))
	}
	if s.step.Equal(valueobject.StepCompleted) && !s.sanctionGenerated {
		errs = append(errs, errors.New("completed without sanction"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("session %s: %w: %w", s.id, apperr.ErrInvariantViolation, errors.Join(errs...))
}

// clone copies the slices so appends on the copy never alias the original.
func (s Session) clone() Session {
	next := s
	next.turns = append([]Turn(nil), s.turns...)
	next.auditLog = append([]AuditEntry(nil), s.auditLog...)
	next.domainEvents = append([]event.DomainEvent(nil), s.domainEvents...)
	return next
}

func stamp(entry AuditEntry, now time.Time) AuditEntry {
	if entry.At.IsZero() {
		entry.At = now
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	return entry
}

func maskPhone(phone string) string {
	if len(phone) < 4 {
		return phone
	}
	return "******" + phone[len(phone)-4:]
}
