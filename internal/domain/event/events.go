package event

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/pkg/events"
)

// DomainEvent is an alias for the shared pkg/events.DomainEvent interface.
type DomainEvent = events.DomainEvent

const (
	aggregateSession  = "Session"
	aggregateSanction = "Sanction"
)

// ---------------------------------------------------------------------------
// Session Events
// ---------------------------------------------------------------------------

// KYCVerified is raised when a phone number is matched to a customer.
type KYCVerified struct {
	events.BaseEvent
	CustomerID string `json:"customer_id"`
}

func NewKYCVerified(sessionID, customerID string, at time.Time) KYCVerified {
	return KYCVerified{
		BaseEvent:  events.NewBaseEvent("origination.session.kyc_verified", sessionID, aggregateSession, at),
		CustomerID: customerID,
	}
}

// SalarySlipUploaded is raised when a salary document is attached to a session.
type SalarySlipUploaded struct {
	events.BaseEvent
	CustomerID    string          `json:"customer_id"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	Filename      string          `json:"filename"`
}

func NewSalarySlipUploaded(sessionID, customerID string, salary decimal.Decimal, filename string, at time.Time) SalarySlipUploaded {
	return SalarySlipUploaded{
		BaseEvent:     events.NewBaseEvent("origination.session.salary_uploaded", sessionID, aggregateSession, at),
		CustomerID:    customerID,
		MonthlySalary: salary,
		Filename:      filename,
	}
}

// UnderwritingDecided is raised for every underwriting evaluation.
type UnderwritingDecided struct {
	events.BaseEvent
	CustomerID      string          `json:"customer_id"`
	Outcome         string          `json:"outcome"`
	Action          string          `json:"action"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	TenureMonths    int             `json:"tenure_months"`
}

func NewUnderwritingDecided(
	sessionID, customerID, outcome, action string,
	amount decimal.Decimal, tenure int, at time.Time,
) UnderwritingDecided {
	return UnderwritingDecided{
		BaseEvent:       events.NewBaseEvent("origination.session.underwritten", sessionID, aggregateSession, at),
		CustomerID:      customerID,
		Outcome:         outcome,
		Action:          action,
		RequestedAmount: amount,
		TenureMonths:    tenure,
	}
}

// SessionCompleted is raised when a sanction closes the session.
type SessionCompleted struct {
	events.BaseEvent
	SanctionID string `json:"sanction_id"`
}

func NewSessionCompleted(sessionID, sanctionID string, at time.Time) SessionCompleted {
	return SessionCompleted{
		BaseEvent:  events.NewBaseEvent("origination.session.completed", sessionID, aggregateSession, at),
		SanctionID: sanctionID,
	}
}

// ---------------------------------------------------------------------------
// Sanction Events
// ---------------------------------------------------------------------------

// SanctionGenerated is raised when a sanction letter has been issued.
type SanctionGenerated struct {
	events.BaseEvent
	SessionID    string          `json:"session_id"`
	CustomerID   string          `json:"customer_id"`
	Amount       decimal.Decimal `json:"amount"`
	TenureMonths int             `json:"tenure_months"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	EMI          decimal.Decimal `json:"emi"`
}

func NewSanctionGenerated(
	sanctionID, sessionID, customerID string,
	amount decimal.Decimal, tenure int, rate, emi decimal.Decimal, at time.Time,
) SanctionGenerated {
	return SanctionGenerated{
		BaseEvent:    events.NewBaseEvent("origination.sanction.generated", sanctionID, aggregateSanction, at),
		SessionID:    sessionID,
		CustomerID:   customerID,
		Amount:       amount,
		TenureMonths: tenure,
		InterestRate: rate,
		EMI:          emi,
	}
}

// SanctionDownloaded is raised the first time a sanction letter is fetched.
type SanctionDownloaded struct {
	events.BaseEvent
	SessionID string `json:"session_id"`
}

func NewSanctionDownloaded(sanctionID, sessionID string, at time.Time) SanctionDownloaded {
	return SanctionDownloaded{
		BaseEvent: events.NewBaseEvent("origination.sanction.downloaded", sanctionID, aggregateSanction, at),
		SessionID: sessionID,
	}
}
