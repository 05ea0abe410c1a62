package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/apperr"
)

const (
	MinCreditScore = 0
	MaxCreditScore = 900
)

var phoneRe = regexp.MustCompile(`^[0-9]{10}$`)

// NormalizePhone strips formatting and an Indian country or trunk prefix,
// returning a bare ten-digit mobile number.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	if !phoneRe.MatchString(digits) {
		return "", apperr.Validationf("phone %q is not a 10-digit mobile number", raw)
	}
	return digits, nil
}

// CustomerParams carries the attributes of a customer record.
type CustomerParams struct {
	ID               string
	Name             string
	Age              int
	City             string
	Phone            string
	CreditScore      int
	PreApprovedLimit decimal.Decimal
	MonthlySalary    decimal.NullDecimal
	GST              string
	CurrentLoan      decimal.Decimal
}

// Customer is a pre-existing bank customer. Credit score and pre-approved
// limit are read-only here; only the salary may change.
type Customer struct {
	id               string
	name             string
	age              int
	city             string
	phone            string
	creditScore      int
	preApprovedLimit decimal.Decimal
	monthlySalary    decimal.NullDecimal
	gst              string
	currentLoan      decimal.Decimal
	createdAt        time.Time
	updatedAt        time.Time
}

// NewCustomer validates p and creates a customer record.
func NewCustomer(p CustomerParams, now time.Time) (Customer, error) {
	if p.ID == "" {
		return Customer{}, errors.New("customer ID is required")
	}
	if p.Name == "" {
		return Customer{}, errors.New("customer name is required")
	}
	phone, err := NormalizePhone(p.Phone)
	if err != nil {
		return Customer{}, err
	}
	if p.CreditScore < MinCreditScore || p.CreditScore > MaxCreditScore {
		return Customer{}, fmt.Errorf("credit score %d outside %d-%d", p.CreditScore, MinCreditScore, MaxCreditScore)
	}
	if p.PreApprovedLimit.IsNegative() {
		return Customer{}, errors.New("pre-approved limit must not be negative")
	}
	if p.MonthlySalary.Valid && !p.MonthlySalary.Decimal.IsPositive() {
		return Customer{}, errors.New("monthly salary must be positive")
	}
	p.Phone = phone
	return ReconstructCustomer(p, now, now), nil
}

// ReconstructCustomer rebuilds a customer from persistence without validation.
func ReconstructCustomer(p CustomerParams, createdAt, updatedAt time.Time) Customer {
	return Customer{
		id:               p.ID,
		name:             p.Name,
		age:              p.Age,
		city:             p.City,
		phone:            p.Phone,
		creditScore:      p.CreditScore,
		preApprovedLimit: p.PreApprovedLimit,
		monthlySalary:    p.MonthlySalary,
		gst:              p.GST,
		currentLoan:      p.CurrentLoan,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}

// WithSalary returns a copy carrying a newly declared monthly salary.
func (c Customer) WithSalary(salary decimal.Decimal, now time.Time) (Customer, error) {
	if !salary.IsPositive() {
		return c, apperr.Validationf("monthly salary must be positive")
	}
	next := c
	next.monthlySalary = decimal.NewNullDecimal(salary)
	next.updatedAt = now
	return next, nil
}

func (c Customer) ID() string                        { return c.id }
func (c Customer) Name() string                      { return c.name }
func (c Customer) Age() int                          { return c.age }
func (c Customer) City() string                      { return c.city }
func (c Customer) Phone() string                     { return c.phone }
func (c Customer) CreditScore() int                  { return c.creditScore }
func (c Customer) PreApprovedLimit() decimal.Decimal { return c.preApprovedLimit }
func (c Customer) GST() string                       { return c.gst }
func (c Customer) CurrentLoan() decimal.Decimal      { return c.currentLoan }
func (c Customer) CreatedAt() time.Time              { return c.createdAt }
func (c Customer) UpdatedAt() time.Time              { return c.updatedAt }

// MonthlySalary returns the salary on record, if any.
func (c Customer) MonthlySalary() (decimal.Decimal, bool) {
	return c.monthlySalary.Decimal, c.monthlySalary.Valid
}

// Params returns the customer's attributes, for persistence.
func (c Customer) Params() CustomerParams {
	return CustomerParams{
		ID:               c.id,
		Name:             c.name,
		Age:              c.age,
		City:             c.city,
		Phone:            c.phone,
		CreditScore:      c.creditScore,
		PreApprovedLimit: c.preApprovedLimit,
		MonthlySalary:    c.monthlySalary,
		GST:              c.gst,
		CurrentLoan:      c.currentLoan,
	}
}
