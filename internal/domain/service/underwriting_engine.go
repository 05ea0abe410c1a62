package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
	"github.com/bibbank/origination/pkg/money"
)

// ---------------------------------------------------------------------------
// UnderwritingEngine – domain service for the lending rule cascade
// ---------------------------------------------------------------------------

// MinCreditScore is the lowest score the engine will lend to.
const MinCreditScore = 700

// salaryBandMultiple bounds the salary-gated band as a multiple of the
// pre-approved limit.
var salaryBandMultiple = decimal.NewFromInt(2)

// UnderwritingInput is everything one evaluation reads.
type UnderwritingInput struct {
	CreditScore      int
	PreApprovedLimit decimal.Decimal
	RequestedAmount  decimal.Decimal
	TenureMonths     int
	// MonthlySalary is set when a salary was supplied with the request or a
	// salary document is already on file.
	MonthlySalary decimal.NullDecimal
}

// Decision is the outcome of one evaluation together with the audit entry
// describing it. Terms are populated whenever an EMI was computed.
type Decision struct {
	Kind                  valueobject.DecisionKind
	Reason                string
	Terms                 model.LoanTerms
	SuggestedMaxPrincipal decimal.NullDecimal
	Audit                 model.AuditEntry
}

// Approved is true for approved decisions.
func (d Decision) Approved() bool { return d.Kind.Equal(valueobject.DecisionApproved) }

// UnderwritingEngine applies the ordered lending rules. The first matching
// rule decides; later rules are not evaluated.
type UnderwritingEngine struct{}

// NewUnderwritingEngine returns a new engine instance.
func NewUnderwritingEngine() *UnderwritingEngine {
	return &UnderwritingEngine{}
}

// Evaluate runs the cascade:
//
//	score < 700               -> rejected
//	amount <= limit           -> approved instantly
//	amount <= 2 x limit       -> salary required, or approved / rejected on affordability
//	otherwise                 -> rejected
func (e *UnderwritingEngine) Evaluate(in UnderwritingInput) Decision {
	if in.CreditScore < MinCreditScore {
		return Decision{
			Kind: valueobject.DecisionRejected,
			Reason: fmt.Sprintf("Your credit score (%d) is below our minimum requirement of %d. "+
				"We can help you improve your score or offer alternative products.", in.CreditScore, MinCreditScore),
			Audit: model.AuditEntry{
				Action: model.AuditUnderwritingRejected,
				Details: map[string]any{
					"reason":           "Credit score below 700",
					"credit_score":     in.CreditScore,
					"requested_amount": in.RequestedAmount,
				},
			},
		}
	}

	rate := InterestRate(in.CreditScore, in.TenureMonths)
	terms := model.LoanTerms{
		Amount:       in.RequestedAmount,
		TenureMonths: in.TenureMonths,
		InterestRate: rate,
		EMI:          EMI(in.RequestedAmount, rate, in.TenureMonths),
	}

	if in.RequestedAmount.LessThanOrEqual(in.PreApprovedLimit) {
		return Decision{
			Kind:   valueobject.DecisionApproved,
			Reason: "Instant approval! Your loan is within your pre-approved limit.",
			Terms:  terms,
			Audit: model.AuditEntry{
				Action: model.AuditUnderwritingApprovedInstant,
				Details: map[string]any{
					"requested_amount":   in.RequestedAmount,
					"pre_approved_limit": in.PreApprovedLimit,
					"credit_score":       in.CreditScore,
					"interest_rate":      rate,
					"emi":                terms.EMI,
					"tenure_months":      in.TenureMonths,
				},
			},
		}
	}

	ceiling := in.PreApprovedLimit.Mul(salaryBandMultiple)
	if in.RequestedAmount.LessThanOrEqual(ceiling) {
		return e.evaluateSalaryBand(in, terms)
	}

	return Decision{
		Kind: valueobject.DecisionRejected,
		Reason: fmt.Sprintf("The requested amount (%s) exceeds our maximum limit of %s for your profile. "+
			"Consider a lower amount or let us schedule a call to discuss options.",
			money.Rupees(in.RequestedAmount), money.Rupees(ceiling)),
		Audit: model.AuditEntry{
			Action: model.AuditUnderwritingRejected,
			Details: map[string]any{
				"reason":             "Amount exceeds 2x pre-approved limit",
				"requested_amount":   in.RequestedAmount,
				"pre_approved_limit": in.PreApprovedLimit,
				"max_allowed":        ceiling,
			},
		},
	}
}

func (e *UnderwritingEngine) evaluateSalaryBand(in UnderwritingInput, terms model.LoanTerms) Decision {
	if !in.MonthlySalary.Valid {
		return Decision{
			Kind: valueobject.DecisionSalaryRequired,
			Reason: fmt.Sprintf("Your requested amount (%s) exceeds your pre-approved limit of %s. "+
				"Please upload your salary slip to proceed.",
				money.Rupees(in.RequestedAmount), money.Rupees(in.PreApprovedLimit)),
			Audit: model.AuditEntry{
				Action: model.AuditSalarySlipRequested,
				Details: map[string]any{
					"requested_amount":   in.RequestedAmount,
					"pre_approved_limit": in.PreApprovedLimit,
					"reason":             "Amount exceeds pre-approved limit",
				},
			},
		}
	}

	salary := in.MonthlySalary.Decimal
	if !IsAffordable(terms.EMI, salary) {
		suggested := MaxAffordablePrincipal(salary, terms.InterestRate, terms.TenureMonths)
		return Decision{
			Kind: valueobject.DecisionRejected,
			Reason: fmt.Sprintf("The EMI (%s) exceeds 50%% of your monthly salary (%s). You may be eligible for up to %s.",
				money.Rupees(terms.EMI), money.Rupees(salary), money.Rupees(suggested)),
			Terms:                 terms,
			SuggestedMaxPrincipal: decimal.NewNullDecimal(suggested),
			Audit: model.AuditEntry{
				Action: model.AuditUnderwritingRejected,
				Details: map[string]any{
					"reason":                  "EMI exceeds 50% of salary",
					"emi":                     terms.EMI,
					"monthly_salary":          salary,
					"requested_amount":        in.RequestedAmount,
					"suggested_max_principal": suggested,
				},
			},
		}
	}

	return Decision{
		Kind:   valueobject.DecisionApproved,
		Reason: "Approved! Your salary supports the requested loan amount.",
		Terms:  terms,
		Audit: model.AuditEntry{
			Action: model.AuditUnderwritingApprovedWithSalary,
			Details: map[string]any{
				"requested_amount": in.RequestedAmount,
				"monthly_salary":   salary,
				"emi":              terms.EMI,
				"interest_rate":    terms.InterestRate,
				"tenure_months":    terms.TenureMonths,
			},
		},
	}
}
