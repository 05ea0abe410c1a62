package service

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Rate & affordability rules. Pure functions, no I/O.
// ---------------------------------------------------------------------------

var (
	// AffordabilityRatio is the largest share of monthly salary an EMI may take.
	AffordabilityRatio = decimal.RequireFromString("0.5")

	rateTier800 = decimal.RequireFromString("10.99")
	rateTier750 = decimal.RequireFromString("11.99")
	rateTier700 = decimal.RequireFromString("12.99")
	rateBase    = decimal.RequireFromString("14.99")

	premiumOver36 = decimal.RequireFromString("1.0")
	premiumOver24 = decimal.RequireFromString("0.5")
)

// InterestRate returns the annual rate in percent for a credit score and
// tenure.
//
//	score >= 800 -> 10.99
//	score >= 750 -> 11.99
//	score >= 700 -> 12.99
//	otherwise    -> 14.99
//
// plus +1.0 when tenure > 36 months, or +0.5 when tenure > 24. Only the
// larger premium applies.
func InterestRate(creditScore, tenureMonths int) decimal.Decimal {
	var rate decimal.Decimal
	switch {
	case creditScore >= 800:
		rate = rateTier800
	case creditScore >= 750:
		rate = rateTier750
	case creditScore >= 700:
		rate = rateTier700
	default:
		rate = rateBase
	}

	switch {
	case tenureMonths > 36:
		rate = rate.Add(premiumOver36)
	case tenureMonths > 24:
		rate = rate.Add(premiumOver24)
	}
	return rate
}

// monthlyRate converts an annual percentage to a monthly fraction.
func monthlyRate(annualRatePercent decimal.Decimal) float64 {
	return annualRatePercent.InexactFloat64() / 12.0 / 100.0
}

// EMI is the fixed monthly instalment for an amortising loan, rounded to the
// nearest whole unit:
//
//	EMI = P * r * (1+r)^n / ((1+r)^n - 1),  r = rate / 12 / 100
//
// A zero rate splits the principal evenly.
func EMI(principal, annualRatePercent decimal.Decimal, tenureMonths int) decimal.Decimal {
	if tenureMonths <= 0 || !principal.IsPositive() {
		return decimal.Zero
	}
	r := monthlyRate(annualRatePercent)
	if r == 0 {
		return principal.Div(decimal.NewFromInt(int64(tenureMonths))).Round(0)
	}
	factor := math.Pow(1+r, float64(tenureMonths))
	emi := principal.InexactFloat64() * r * factor / (factor - 1)
	return decimal.NewFromFloat(emi).Round(0)
}

// IsAffordable reports whether emi is at most half the monthly salary.
func IsAffordable(emi, monthlySalary decimal.Decimal) bool {
	return emi.LessThanOrEqual(monthlySalary.Mul(AffordabilityRatio))
}

// MaxAffordablePrincipal inverts the EMI formula at a fixed rate and tenure:
// the largest whole principal whose EMI does not exceed half of monthlySalary.
func MaxAffordablePrincipal(monthlySalary, annualRatePercent decimal.Decimal, tenureMonths int) decimal.Decimal {
	if tenureMonths <= 0 || !monthlySalary.IsPositive() {
		return decimal.Zero
	}
	maxEMI := monthlySalary.Mul(AffordabilityRatio)
	r := monthlyRate(annualRatePercent)
	if r == 0 {
		return maxEMI.Mul(decimal.NewFromInt(int64(tenureMonths))).Floor()
	}
	factor := math.Pow(1+r, float64(tenureMonths))
	p := maxEMI.InexactFloat64() * (factor - 1) / (r * factor)
	return decimal.NewFromFloat(p).Floor()
}

// ---------------------------------------------------------------------------
// Repayment schedule
// ---------------------------------------------------------------------------

// Instalment is one period of a repayment schedule.
type Instalment struct {
	DueDate          time.Time
	Principal        decimal.Decimal
	Interest         decimal.Decimal
	Total            decimal.Decimal
	RemainingBalance decimal.Decimal
	Period           int
}

// RepaymentSchedule splits a loan into monthly instalments of EMI. The last
// period absorbs rounding so the balance reaches exactly zero.
func RepaymentSchedule(
	principal, annualRatePercent decimal.Decimal,
	tenureMonths int,
	startDate time.Time,
) []Instalment {
	if tenureMonths <= 0 || !principal.IsPositive() {
		return nil
	}

	payment := EMI(principal, annualRatePercent, tenureMonths)
	rate := decimal.NewFromFloat(monthlyRate(annualRatePercent))

	schedule := make([]Instalment, 0, tenureMonths)
	remaining := principal

	for period := 1; period <= tenureMonths; period++ {
		interest := remaining.Mul(rate).Round(2)
		principalPart := payment.Sub(interest)

		if period == tenureMonths || principalPart.GreaterThan(remaining) {
			principalPart = remaining
		}

		remaining = remaining.Sub(principalPart)
		schedule = append(schedule, Instalment{
			Period:           period,
			DueDate:          startDate.AddDate(0, period, 0),
			Principal:        principalPart,
			Interest:         interest,
			Total:            principalPart.Add(interest),
			RemainingBalance: remaining,
		})
		if remaining.IsZero() {
			break
		}
	}

	return schedule
}

// ---------------------------------------------------------------------------
// Pre-approved offers
// ---------------------------------------------------------------------------

// OfferTenures are the tenures quoted for a customer's pre-approved limit.
var OfferTenures = []int{12, 24, 36}

// Offer is an indicative quote at the customer's pre-approved limit.
type Offer struct {
	TenureMonths int
	InterestRate decimal.Decimal
	MaxAmount    decimal.Decimal
	EMI          decimal.Decimal
}

// PreapprovedOffers quotes the pre-approved limit at each offer tenure.
func PreapprovedOffers(creditScore int, preApprovedLimit decimal.Decimal) []Offer {
	offers := make([]Offer, 0, len(OfferTenures))
	for _, tenure := range OfferTenures {
		rate := InterestRate(creditScore, tenure)
		offers = append(offers, Offer{
			TenureMonths: tenure,
			InterestRate: rate,
			MaxAmount:    preApprovedLimit,
			EMI:          EMI(preApprovedLimit, rate, tenure),
		})
	}
	return offers
}
