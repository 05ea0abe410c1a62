package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
)

// CustomerRepo implements port.CustomerRepository.
type CustomerRepo struct {
	pool *pgxpool.Pool
}

// NewCustomerRepo creates a new PostgreSQL-backed customer repository.
func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

const customerColumns = `
	id, name, age, city, phone, credit_score, pre_approved_limit,
	monthly_salary, gst, current_loan, created_at, updated_at
`

func (r *CustomerRepo) FindByID(ctx context.Context, id string) (model.Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if err != nil {
		return model.Customer{}, notFound(err, "customer %s", id)
	}
	return c, nil
}

func (r *CustomerRepo) FindByPhone(ctx context.Context, phone string) (model.Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone)
	c, err := scanCustomer(row)
	if err != nil {
		return model.Customer{}, notFound(err, "customer with phone %s", phone)
	}
	return c, nil
}

func (r *CustomerRepo) UpdateSalary(ctx context.Context, id string, salary decimal.Decimal) error {
	if !salary.IsPositive() {
		return apperr.Validationf("monthly salary must be positive")
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET monthly_salary = $2, updated_at = $3 WHERE id = $1`,
		id, salary, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update customer salary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("customer %s", id)
	}
	return nil
}

// Save upserts a customer record.
func (r *CustomerRepo) Save(ctx context.Context, c model.Customer) error {
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name               = EXCLUDED.name,
			age                = EXCLUDED.age,
			city               = EXCLUDED.city,
			phone              = EXCLUDED.phone,
			credit_score       = EXCLUDED.credit_score,
			pre_approved_limit = EXCLUDED.pre_approved_limit,
			monthly_salary     = EXCLUDED.monthly_salary,
			gst                = EXCLUDED.gst,
			current_loan       = EXCLUDED.current_loan,
			updated_at         = EXCLUDED.updated_at
	`
	p := c.Params()
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.Age, p.City, p.Phone, p.CreditScore, p.PreApprovedLimit,
		p.MonthlySalary, p.GST, p.CurrentLoan, c.CreatedAt(), c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save customer %s: %w", p.ID, err)
	}
	return nil
}

func scanCustomer(s scannable) (model.Customer, error) {
	var (
		p                    model.CustomerParams
		createdAt, updatedAt time.Time
	)
	if err := s.Scan(
		&p.ID, &p.Name, &p.Age, &p.City, &p.Phone, &p.CreditScore, &p.PreApprovedLimit,
		&p.MonthlySalary, &p.GST, &p.CurrentLoan, &createdAt, &updatedAt,
	); err != nil {
		return model.Customer{}, err
	}
	return model.ReconstructCustomer(p, createdAt, updatedAt), nil
}
