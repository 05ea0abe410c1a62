package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
	pkgpostgres "github.com/bibbank/origination/pkg/postgres"
)

const uniqueViolation = "23505"

// SanctionRepo implements port.SanctionRepository.
type SanctionRepo struct {
	pool *pgxpool.Pool
}

// NewSanctionRepo creates a new PostgreSQL-backed sanction repository.
func NewSanctionRepo(pool *pgxpool.Pool) *SanctionRepo {
	return &SanctionRepo{pool: pool}
}

const sanctionColumns = `
	id, session_id, customer_id, customer_name, amount, tenure_months,
	interest_rate, emi, document_ref, status, version, created_at, updated_at
`

// Create stores a newly issued sanction. A second sanction for the same
// session violates the unique index and is reported as an invariant violation.
func (r *SanctionRepo) Create(ctx context.Context, s model.Sanction) error {
	return pkgpostgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		return insertSanction(ctx, tx, s)
	})
}

// insertSanction writes s and its events through q. Session saves call it so
// a sanction and the session that issued it commit together.
func insertSanction(ctx context.Context, q pkgpostgres.Querier, s model.Sanction) error {
	t := s.Terms()
	_, err := q.Exec(ctx, `
		INSERT INTO sanctions (`+sanctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		s.ID(), s.SessionID(), s.CustomerID(), s.CustomerName(), t.Amount, t.TenureMonths,
		t.InterestRate, t.EMI, s.DocumentRef(), s.Status().String(), s.Version(), s.CreatedAt(), s.UpdatedAt(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: sanction for session %s already exists", apperr.ErrInvariantViolation, s.SessionID())
	}
	if err != nil {
		return fmt.Errorf("insert sanction: %w", err)
	}
	return writeOutbox(ctx, q, s.DomainEvents())
}

func (r *SanctionRepo) FindByID(ctx context.Context, id string) (model.Sanction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sanctionColumns+` FROM sanctions WHERE id = $1`, id)
	s, err := scanSanction(row)
	if err != nil {
		return model.Sanction{}, notFound(err, "sanction %s", id)
	}
	return s, nil
}

// List returns up to limit sanctions, newest first.
func (r *SanctionRepo) List(ctx context.Context, limit int) ([]model.Sanction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sanctionColumns+` FROM sanctions ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sanctions: %w", err)
	}
	defer rows.Close()

	var out []model.Sanction
	for rows.Next() {
		s, err := scanSanction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sanction: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStatus persists a status change made one version ahead of the row.
func (r *SanctionRepo) UpdateStatus(ctx context.Context, s model.Sanction) error {
	return pkgpostgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE sanctions SET status = $2, version = $3, updated_at = $4
			WHERE id = $1 AND version = $5
		`, s.ID(), s.Status().String(), s.Version(), s.UpdatedAt(), s.Version()-1)
		if err != nil {
			return fmt.Errorf("update sanction status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("sanction %s at version %d: %w", s.ID(), s.Version()-1, apperr.ErrVersionConflict)
		}
		return writeOutbox(ctx, tx, s.DomainEvents())
	})
}

func scanSanction(s scannable) (model.Sanction, error) {
	var (
		id, sessionID, customerID, customerName string
		terms                                   model.LoanTerms
		documentRef, statusStr                  string
		version                                 int
		createdAt, updatedAt                    time.Time
	)
	if err := s.Scan(
		&id, &sessionID, &customerID, &customerName, &terms.Amount, &terms.TenureMonths,
		&terms.InterestRate, &terms.EMI, &documentRef, &statusStr, &version, &createdAt, &updatedAt,
	); err != nil {
		return model.Sanction{}, err
	}
	status, err := valueobject.NewSanctionStatus(statusStr)
	if err != nil {
		return model.Sanction{}, fmt.Errorf("parse sanction status: %w", err)
	}
	return model.ReconstructSanction(
		id, sessionID, customerID, customerName, terms,
		documentRef, status, version, createdAt, updatedAt,
	), nil
}
