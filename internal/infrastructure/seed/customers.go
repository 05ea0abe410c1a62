// Package seed loads the demo customer base used by local and test deployments.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/model"
)

// Saver persists customers. Both the memory and PostgreSQL customer
// repositories satisfy it.
type Saver interface {
	Save(ctx context.Context, c model.Customer) error
}

type demoCustomer struct {
	id          string
	name        string
	age         int
	city        string
	phone       string
	gst         string
	currentLoan int64
	creditScore int
	limit       int64
	salary      int64
}

// CUST001 approves instantly, CUST002 needs a salary slip above its limit
// and CUST003 is rejected on credit score.
var demoCustomers = []demoCustomer{
	{"CUST001", "Rajesh Kumar", 35, "Mumbai", "9876543210", "GST123456", 0, 780, 50_000, 45_000},
	{"CUST002", "Priya Sharma", 29, "Delhi", "9876543211", "GST123457", 25_000, 820, 75_000, 60_000},
	{"CUST003", "Amit Patel", 42, "Bangalore", "9876543212", "", 0, 650, 30_000, 35_000},
	{"CUST004", "Sneha Reddy", 31, "Hyderabad", "9876543213", "GST123458", 15_000, 750, 100_000, 80_000},
	{"CUST005", "Vikram Singh", 38, "Pune", "9876543214", "", 0, 720, 60_000, 50_000},
	{"CUST006", "Ananya Gupta", 27, "Chennai", "9876543215", "", 10_000, 800, 90_000, 70_000},
	{"CUST007", "Rohan Mehta", 45, "Ahmedabad", "9876543216", "GST123459", 50_000, 690, 40_000, 42_000},
	{"CUST008", "Kavita Joshi", 33, "Kolkata", "9876543217", "", 0, 760, 80_000, 65_000},
	{"CUST009", "Arjun Nair", 40, "Kochi", "9876543218", "GST123460", 30_000, 710, 55_000, 48_000},
	{"CUST010", "Meera Iyer", 36, "Jaipur", "9876543219", "", 0, 840, 120_000, 95_000},
}

// DemoCustomers builds the demo customer records stamped at now.
func DemoCustomers(now time.Time) ([]model.Customer, error) {
	out := make([]model.Customer, 0, len(demoCustomers))
	for _, d := range demoCustomers {
		c, err := model.NewCustomer(model.CustomerParams{
			ID:               d.id,
			Name:             d.name,
			Age:              d.age,
			City:             d.city,
			Phone:            d.phone,
			CreditScore:      d.creditScore,
			PreApprovedLimit: decimal.NewFromInt(d.limit),
			MonthlySalary:    decimal.NewNullDecimal(decimal.NewFromInt(d.salary)),
			GST:              d.gst,
			CurrentLoan:      decimal.NewFromInt(d.currentLoan),
		}, now)
		if err != nil {
			return nil, fmt.Errorf("build demo customer %s: %w", d.id, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Customers upserts the demo customers and returns how many were written.
func Customers(ctx context.Context, repo Saver, logger *slog.Logger) (int, error) {
	customers, err := DemoCustomers(time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, c := range customers {
		if err := repo.Save(ctx, c); err != nil {
			return 0, fmt.Errorf("seed customer %s: %w", c.ID(), err)
		}
		logger.DebugContext(ctx, "seeded customer",
			"customer_id", c.ID(),
			"credit_score", c.CreditScore(),
			"pre_approved_limit", c.PreApprovedLimit().String(),
		)
	}
	logger.InfoContext(ctx, "demo customers seeded", "count", len(customers))
	return len(customers), nil
}
