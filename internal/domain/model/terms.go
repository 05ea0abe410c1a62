package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/valueobject"
)

// Audit action tags. The log is consumed by compliance tooling, so the tags
// are part of the external contract.
const (
	AuditKYCVerified                    = "KYC_VERIFIED"
	AuditSalarySlipUploaded             = "SALARY_SLIP_UPLOADED"
	AuditUnderwritingRejected           = "UNDERWRITING_REJECTED"
	AuditUnderwritingApprovedInstant    = "UNDERWRITING_APPROVED_INSTANT"
	AuditSalarySlipRequested            = "SALARY_SLIP_REQUESTED"
	AuditUnderwritingApprovedWithSalary = "UNDERWRITING_APPROVED_WITH_SALARY"
	AuditUnderwritingRepeatedQuery      = "UNDERWRITING_REPEATED_QUERY"
	AuditSanctionGenerated              = "SANCTION_GENERATED"
)

// AuditEntry is one immutable record in a session's audit log.
type AuditEntry struct {
	Action  string         `json:"action"`
	At      time.Time      `json:"timestamp"`
	Details map[string]any `json:"details"`
}

// LoanTerms are the economics of an approved loan.
type LoanTerms struct {
	Amount       decimal.Decimal `json:"amount"`
	TenureMonths int             `json:"tenure_months"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	EMI          decimal.Decimal `json:"emi"`
}

// Valid reports whether the terms describe a loan.
func (t LoanTerms) Valid() bool {
	return t.Amount.IsPositive() && t.TenureMonths > 0
}

// TotalPayable is EMI times tenure.
func (t LoanTerms) TotalPayable() decimal.Decimal {
	return t.EMI.Mul(decimal.NewFromInt(int64(t.TenureMonths)))
}

// AuditDetails renders the terms for an audit entry.
func (t LoanTerms) AuditDetails() map[string]any {
	return map[string]any{
		"amount":        t.Amount,
		"tenure_months": t.TenureMonths,
		"interest_rate": t.InterestRate,
		"emi":           t.EMI,
	}
}

// TurnRole identifies who produced a conversational turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is one message in the conversation.
type Turn struct {
	Role    TurnRole  `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// Intent is the intent resolver's reading of the latest turn.
type Intent struct {
	Reply        string
	NextAction   valueobject.NextAction
	Amount       decimal.NullDecimal
	Phone        string
	TenureMonths int
}
