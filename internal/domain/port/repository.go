package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/model"
)

// ---------------------------------------------------------------------------
// Repository ports (driven/secondary adapters)
// ---------------------------------------------------------------------------

// CustomerRepository reads the externally seeded customer base. Only the
// declared salary is ever written back.
type CustomerRepository interface {
	FindByID(ctx context.Context, id string) (model.Customer, error)
	FindByPhone(ctx context.Context, phone string) (model.Customer, error)
	UpdateSalary(ctx context.Context, id string, salary decimal.Decimal) error
	Save(ctx context.Context, c model.Customer) error
}

// SessionRepository persists sessions together with their turn and audit
// history. Update writes the row, the pending turns, the pending audit
// entries and the session's domain events as one atomic unit and fails with
// apperr.ErrVersionConflict when the stored version moved on.
type SessionRepository interface {
	FindByID(ctx context.Context, id string) (model.Session, error)
	Create(ctx context.Context, s model.Session) error
	Update(ctx context.Context, s model.Session) error
	List(ctx context.Context, limit int) ([]model.Session, error)
}

// SanctionRepository persists issued sanctions.
type SanctionRepository interface {
	Create(ctx context.Context, s model.Sanction) error
	FindByID(ctx context.Context, id string) (model.Sanction, error)
	List(ctx context.Context, limit int) ([]model.Sanction, error)
	UpdateStatus(ctx context.Context, s model.Sanction) error
}

// ---------------------------------------------------------------------------
// Concurrency port
// ---------------------------------------------------------------------------

// SessionLocker serialises work on one session. The returned func releases
// the lock and must always be called.
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// ---------------------------------------------------------------------------
// External service ports
// ---------------------------------------------------------------------------

// IntentResolver reads the conversation and suggests the next step. It is
// called at most once per inbound turn.
type IntentResolver interface {
	Resolve(ctx context.Context, session model.Session) (model.Intent, error)
}

// DocumentRenderer produces a sanction letter and returns where it lives.
type DocumentRenderer interface {
	Render(ctx context.Context, letter model.SanctionLetter) (string, error)
}

// DocumentStore opens a rendered document for download.
type DocumentStore interface {
	Open(ctx context.Context, ref string) ([]byte, error)
}

// CreditBureauClient fetches credit scores from an external bureau.
type CreditBureauClient interface {
	GetCreditScore(ctx context.Context, customerID string) (int, error)
}
