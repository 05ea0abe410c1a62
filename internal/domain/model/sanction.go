package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/bibbank/origination/internal/domain/event"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

// ---------------------------------------------------------------------------
// Sanction aggregate root
// ---------------------------------------------------------------------------

// Sanction is the record of an issued loan offer. It never changes after
// creation except for the one-way generated -> downloaded transition.
type Sanction struct {
	id           string
	sessionID    string
	customerID   string
	customerName string
	terms        LoanTerms
	documentRef  string
	status       valueobject.SanctionStatus
	version      int
	createdAt    time.Time
	updatedAt    time.Time
	domainEvents []event.DomainEvent
}

// SanctionLetter is what the document renderer needs to produce a letter.
type SanctionLetter struct {
	SanctionID   string
	CustomerID   string
	CustomerName string
	Terms        LoanTerms
	IssuedAt     time.Time
}

// NewSanction creates a sanction for a rendered letter.
func NewSanction(letter SanctionLetter, sessionID, documentRef string) (Sanction, error) {
	if letter.SanctionID == "" {
		return Sanction{}, errors.New("sanction ID is required")
	}
	if sessionID == "" {
		return Sanction{}, errors.New("session ID is required")
	}
	if letter.CustomerID == "" {
		return Sanction{}, errors.New("customer ID is required")
	}
	if documentRef == "" {
		return Sanction{}, errors.New("document reference is required")
	}
	if !letter.Terms.Amount.IsPositive() || letter.Terms.TenureMonths <= 0 {
		return Sanction{}, errors.New("sanction terms must have a positive amount and tenure")
	}

	s := Sanction{
		id:           letter.SanctionID,
		sessionID:    sessionID,
		customerID:   letter.CustomerID,
		customerName: letter.CustomerName,
		terms:        letter.Terms,
		documentRef:  documentRef,
		status:       valueobject.SanctionStatusGenerated,
		version:      1,
		createdAt:    letter.IssuedAt,
		updatedAt:    letter.IssuedAt,
	}
	s.domainEvents = append(s.domainEvents, event.NewSanctionGenerated(
		s.id, sessionID, s.customerID,
		s.terms.Amount, s.terms.TenureMonths, s.terms.InterestRate, s.terms.EMI,
		letter.IssuedAt,
	))
	return s, nil
}

// ReconstructSanction rebuilds a Sanction from persistence.
func ReconstructSanction(
	id, sessionID, customerID, customerName string,
	terms LoanTerms,
	documentRef string,
	status valueobject.SanctionStatus,
	version int,
	createdAt, updatedAt time.Time,
) Sanction {
	return Sanction{
		id:           id,
		sessionID:    sessionID,
		customerID:   customerID,
		customerName: customerName,
		terms:        terms,
		documentRef:  documentRef,
		status:       status,
		version:      version,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// MarkDownloaded records the first download. Later downloads are no-ops and
// report changed=false.
func (s Sanction) MarkDownloaded(now time.Time) (Sanction, bool, error) {
	switch {
	case s.status.Equal(valueobject.SanctionStatusDownloaded):
		return s, false, nil
	case !s.status.Equal(valueobject.SanctionStatusGenerated):
		return s, false, fmt.Errorf("sanction %s in status %s: %w", s.id, s.status, valueobject.ErrInvalidStatusTransition)
	}
	next := s
	next.status = valueobject.SanctionStatusDownloaded
	next.version = s.version + 1
	next.updatedAt = now
	next.domainEvents = append(copyEvents(s.domainEvents), event.NewSanctionDownloaded(s.id, s.sessionID, now))
	return next, true, nil
}

func (s Sanction) ID() string                         { return s.id }
func (s Sanction) SessionID() string                  { return s.sessionID }
func (s Sanction) CustomerID() string                 { return s.customerID }
func (s Sanction) CustomerName() string               { return s.customerName }
func (s Sanction) Terms() LoanTerms                   { return s.terms }
func (s Sanction) DocumentRef() string                { return s.documentRef }
func (s Sanction) Status() valueobject.SanctionStatus { return s.status }
func (s Sanction) Version() int                       { return s.version }
func (s Sanction) CreatedAt() time.Time               { return s.createdAt }
func (s Sanction) UpdatedAt() time.Time               { return s.updatedAt }
func (s Sanction) DomainEvents() []event.DomainEvent  { return s.domainEvents }

// Letter returns the render input for this sanction.
func (s Sanction) Letter() SanctionLetter {
	return SanctionLetter{
		SanctionID:   s.id,
		CustomerID:   s.customerID,
		CustomerName: s.customerName,
		Terms:        s.terms,
		IssuedAt:     s.createdAt,
	}
}

func copyEvents(src []event.DomainEvent) []event.DomainEvent {
	dst := make([]event.DomainEvent, len(src))
	copy(dst, src)
	return dst
}
