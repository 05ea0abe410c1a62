package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
	pkgpostgres "github.com/bibbank/origination/pkg/postgres"
)

// SessionRepo implements port.SessionRepository. Turns and audit entries are
// append-only child rows keyed by their position in the session.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo creates a new PostgreSQL-backed session repository.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `
	id, step, status, customer_id, requested_amount, tenure_months,
	kyc_verified, credit_check_done, salary_uploaded, sanction_generated,
	sanction_id, version, created_at, updated_at,
	approved_amount, approved_tenure_months, approved_interest_rate, approved_emi
`

// Create inserts a new session at version 1.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) error {
	return pkgpostgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO sessions (` + sessionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (id) DO NOTHING
		`
		terms := approvedTerms(s)
		tag, err := tx.Exec(ctx, query,
			s.ID(), s.Step().String(), s.Status().String(), nullable(s.CustomerID()),
			requestedAmount(s), s.TenureMonths(),
			s.KYCVerified(), s.CreditCheckDone(), s.SalaryUploaded(), s.SanctionGenerated(),
			nullable(s.SanctionID()), s.Version()+1, s.CreatedAt(), s.UpdatedAt(),
			terms.amount, terms.tenure, terms.rate, terms.emi,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("session %s: %w", s.ID(), apperr.ErrVersionConflict)
		}
		return r.appendChildren(ctx, tx, s)
	})
}

// Update writes the session row, its pending turns, its pending audit
// entries, a pending sanction and all domain events in one transaction.
func (r *SessionRepo) Update(ctx context.Context, s model.Session) error {
	return pkgpostgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			UPDATE sessions SET
				step                   = $2,
				status                 = $3,
				customer_id            = $4,
				requested_amount       = $5,
				tenure_months          = $6,
				kyc_verified           = $7,
				credit_check_done      = $8,
				salary_uploaded        = $9,
				sanction_generated     = $10,
				sanction_id            = $11,
				version                = version + 1,
				updated_at             = $12,
				approved_amount        = $14,
				approved_tenure_months = $15,
				approved_interest_rate = $16,
				approved_emi           = $17
			WHERE id = $1 AND version = $13
		`
		terms := approvedTerms(s)
		tag, err := tx.Exec(ctx, query,
			s.ID(), s.Step().String(), s.Status().String(), nullable(s.CustomerID()),
			requestedAmount(s), s.TenureMonths(),
			s.KYCVerified(), s.CreditCheckDone(), s.SalaryUploaded(), s.SanctionGenerated(),
			nullable(s.SanctionID()), s.UpdatedAt(), s.Version(),
			terms.amount, terms.tenure, terms.rate, terms.emi,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, s.ID()).Scan(&exists); err != nil {
				return fmt.Errorf("check session: %w", err)
			}
			if !exists {
				return apperr.NotFoundf("session %s", s.ID())
			}
			return fmt.Errorf("session %s at version %d: %w", s.ID(), s.Version(), apperr.ErrVersionConflict)
		}
		return r.appendChildren(ctx, tx, s)
	})
}

func (r *SessionRepo) appendChildren(ctx context.Context, tx pgx.Tx, s model.Session) error {
	for i, t := range s.PendingTurns() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_turns (session_id, seq, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			s.ID(), s.PersistedTurnCount()+i, string(t.Role), t.Content, t.At,
		); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	for i, a := range s.PendingAudit() {
		details := a.Details
		if details == nil {
			details = map[string]any{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_audit_log (session_id, seq, action, details, created_at) VALUES ($1, $2, $3, $4, $5)`,
			s.ID(), s.PersistedAuditCount()+i, a.Action, details, a.At,
		); err != nil {
			return fmt.Errorf("insert audit entry %s: %w", a.Action, err)
		}
	}
	if sanction, ok := s.PendingSanction(); ok {
		if err := insertSanction(ctx, tx, sanction); err != nil {
			return err
		}
	}
	return writeOutbox(ctx, tx, s.DomainEvents())
}

// FindByID loads a session with its full history.
func (r *SessionRepo) FindByID(ctx context.Context, id string) (model.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	snap, err := scanSession(row)
	if err != nil {
		return model.Session{}, notFound(err, "session %s", id)
	}
	if snap.Turns, err = r.loadTurns(ctx, id); err != nil {
		return model.Session{}, err
	}
	if snap.AuditLog, err = r.loadAudit(ctx, id); err != nil {
		return model.Session{}, err
	}
	return model.ReconstructSession(snap), nil
}

// List returns up to limit sessions, newest first.
func (r *SessionRepo) List(ctx context.Context, limit int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	var snaps []model.SessionSnapshot
	for rows.Next() {
		snap, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		snaps = append(snaps, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Session, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Turns, err = r.loadTurns(ctx, snap.ID); err != nil {
			return nil, err
		}
		if snap.AuditLog, err = r.loadAudit(ctx, snap.ID); err != nil {
			return nil, err
		}
		out = append(out, model.ReconstructSession(snap))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// internal helpers
// ---------------------------------------------------------------------------

func (r *SessionRepo) loadTurns(ctx context.Context, sessionID string) ([]model.Turn, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role, content, created_at FROM session_turns WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var (
			t    model.Turn
			role string
		)
		if err := rows.Scan(&role, &t.Content, &t.At); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = model.TurnRole(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (r *SessionRepo) loadAudit(ctx context.Context, sessionID string) ([]model.AuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT action, details, created_at FROM session_audit_log WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.Action, &e.Details, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanSession(s scannable) (model.SessionSnapshot, error) {
	var (
		snap                   model.SessionSnapshot
		stepStr, statusStr     string
		customerID, sanctionID *string
		amount                 decimal.NullDecimal
		createdAt, updatedAt   time.Time
		terms                  termColumns
	)
	if err := s.Scan(
		&snap.ID, &stepStr, &statusStr, &customerID, &amount, &snap.TenureMonths,
		&snap.KYCVerified, &snap.CreditCheckDone, &snap.SalaryUploaded, &snap.SanctionGenerated,
		&sanctionID, &snap.Version, &createdAt, &updatedAt,
		&terms.amount, &terms.tenure, &terms.rate, &terms.emi,
	); err != nil {
		return model.SessionSnapshot{}, err
	}

	step, err := valueobject.NewWorkflowStep(stepStr)
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("parse step: %w", err)
	}
	status, err := valueobject.NewSessionStatus(statusStr)
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("parse status: %w", err)
	}

	snap.Step = step
	snap.Status = status
	snap.RequestedAmount = amount
	snap.CreatedAt = createdAt
	snap.UpdatedAt = updatedAt
	if customerID != nil {
		snap.CustomerID = *customerID
	}
	if sanctionID != nil {
		snap.SanctionID = *sanctionID
	}
	if terms.amount.Valid && terms.tenure != nil {
		snap.ApprovedTerms = model.LoanTerms{
			Amount:       terms.amount.Decimal,
			TenureMonths: *terms.tenure,
			InterestRate: terms.rate.Decimal,
			EMI:          terms.emi.Decimal,
		}
	}
	return snap, nil
}

// termColumns holds the nullable approved_* columns.
type termColumns struct {
	amount, rate, emi decimal.NullDecimal
	tenure            *int
}

func approvedTerms(s model.Session) termColumns {
	t, ok := s.ApprovedTerms()
	if !ok {
		return termColumns{}
	}
	return termColumns{
		amount: decimal.NullDecimal{Decimal: t.Amount, Valid: true},
		rate:   decimal.NullDecimal{Decimal: t.InterestRate, Valid: true},
		emi:    decimal.NullDecimal{Decimal: t.EMI, Valid: true},
		tenure: &t.TenureMonths,
	}
}

func requestedAmount(s model.Session) decimal.NullDecimal {
	amount, ok := s.RequestedAmount()
	return decimal.NullDecimal{Decimal: amount, Valid: ok}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
