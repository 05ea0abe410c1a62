//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
	"github.com/bibbank/origination/internal/infrastructure/persistence/postgres"
	"github.com/bibbank/origination/pkg/testutil"
)

func TestRepositories_RoundTrip(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t, postgres.Migrations, postgres.MigrationsDir)

	customers := postgres.NewCustomerRepo(pc.Pool)
	sessions := postgres.NewSessionRepo(pc.Pool)
	sanctions := postgres.NewSanctionRepo(pc.Pool)
	outbox := postgres.NewOutboxRepo(pc.Pool)

	now := time.Now().UTC().Truncate(time.Microsecond)

	customer, err := model.NewCustomer(model.CustomerParams{
		ID:               "CUST001",
		Name:             "Rajesh Kumar",
		Age:              35,
		City:             "Mumbai",
		Phone:            "9876543210",
		CreditScore:      780,
		PreApprovedLimit: decimal.NewFromInt(50_000),
		MonthlySalary:    decimal.NewNullDecimal(decimal.NewFromInt(45_000)),
		GST:              "GST123456",
	}, now)
	require.NoError(t, err)
	require.NoError(t, customers.Save(ctx, customer))

	t.Run("customer lookup and salary update", func(t *testing.T) {
		got, err := customers.FindByPhone(ctx, "9876543210")
		require.NoError(t, err)
		assert.Equal(t, "Rajesh Kumar", got.Name())

		require.NoError(t, customers.UpdateSalary(ctx, "CUST001", decimal.NewFromInt(50_000)))
		got, err = customers.FindByID(ctx, "CUST001")
		require.NoError(t, err)
		salary, ok := got.MonthlySalary()
		require.True(t, ok)
		assert.True(t, salary.Equal(decimal.NewFromInt(50_000)))

		_, err = customers.FindByID(ctx, "CUST404")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("session history survives reload", func(t *testing.T) {
		s, err := model.NewSession("sess-1", now)
		require.NoError(t, err)
		s, err = s.AppendTurn(model.RoleUser, "I need 40000", now)
		require.NoError(t, err)
		require.NoError(t, sessions.Create(ctx, s))

		loaded, err := sessions.FindByID(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Version())

		next, err := loaded.WithRequestedAmount(decimal.NewFromInt(40_000), now)
		require.NoError(t, err)
		next, err = next.BindCustomer("CUST001", "9876543210", now)
		require.NoError(t, err)
		next, err = next.AppendTurn(model.RoleAssistant, "Verified", now)
		require.NoError(t, err)
		require.NoError(t, sessions.Update(ctx, next))

		assert.ErrorIs(t, sessions.Update(ctx, next), apperr.ErrVersionConflict)

		loaded, err = sessions.FindByID(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Version())
		assert.Equal(t, valueobject.StepKYCVerified, loaded.Step())
		require.Len(t, loaded.Turns(), 2)
		assert.Equal(t, "Verified", loaded.Turns()[1].Content)
		require.Len(t, loaded.AuditLog(), 1)
		assert.Equal(t, model.AuditKYCVerified, loaded.AuditLog()[0].Action)
		amount, ok := loaded.RequestedAmount()
		require.True(t, ok)
		assert.True(t, amount.Equal(decimal.NewFromInt(40_000)))

		list, err := sessions.List(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("one sanction per session", func(t *testing.T) {
		letter := model.SanctionLetter{
			SanctionID:   "SAN-1",
			CustomerID:   "CUST001",
			CustomerName: "Rajesh Kumar",
			Terms: model.LoanTerms{
				Amount:       decimal.NewFromInt(40_000),
				TenureMonths: 12,
				InterestRate: decimal.RequireFromString("11.99"),
				EMI:          decimal.NewFromInt(3554),
			},
			IssuedAt: now,
		}
		sanction, err := model.NewSanction(letter, "sess-1", "file://SAN-1.pdf")
		require.NoError(t, err)
		require.NoError(t, sanctions.Create(ctx, sanction))

		letter.SanctionID = "SAN-2"
		dup, err := model.NewSanction(letter, "sess-1", "file://SAN-2.pdf")
		require.NoError(t, err)
		assert.ErrorIs(t, sanctions.Create(ctx, dup), apperr.ErrInvariantViolation)

		stored, err := sanctions.FindByID(ctx, "SAN-1")
		require.NoError(t, err)
		assert.True(t, stored.Terms().InterestRate.Equal(decimal.RequireFromString("11.99")))

		downloaded, changed, err := stored.MarkDownloaded(now)
		require.NoError(t, err)
		require.True(t, changed)
		require.NoError(t, sanctions.UpdateStatus(ctx, downloaded))
		assert.ErrorIs(t, sanctions.UpdateStatus(ctx, downloaded), apperr.ErrVersionConflict)
	})

	t.Run("outbox collects events", func(t *testing.T) {
		entries, err := outbox.FetchUnpublished(ctx, 100)
		require.NoError(t, err)
		// KYC verified, sanction generated, sanction downloaded.
		require.Len(t, entries, 3)

		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		require.NoError(t, outbox.MarkPublished(ctx, ids))

		entries, err = outbox.FetchUnpublished(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
	t.Run("approved terms and sanction commit with the session", func(t *testing.T) {
		terms := model.LoanTerms{
			Amount:       decimal.NewFromInt(45_000),
			TenureMonths: 12,
			InterestRate: decimal.RequireFromString("11.99"),
			EMI:          decimal.NewFromInt(3998),
		}
		s, err := model.NewSession("sess-2", now)
		require.NoError(t, err)
		s, err = s.WithRequestedAmount(terms.Amount, now)
		require.NoError(t, err)
		s, err = s.BindCustomer("CUST001", "9876543210", now)
		require.NoError(t, err)
		s, err = s.ApplyDecision(valueobject.DecisionApproved, terms,
			model.AuditEntry{Action: model.AuditUnderwritingApprovedInstant}, now)
		require.NoError(t, err)
		require.NoError(t, sessions.Create(ctx, s))

		loaded, err := sessions.FindByID(ctx, "sess-2")
		require.NoError(t, err)
		stored, ok := loaded.ApprovedTerms()
		require.True(t, ok)
		assert.True(t, stored.EMI.Equal(terms.EMI))
		assert.Equal(t, 12, stored.TenureMonths)

		newSanction := func(id string) model.Sanction {
			sanction, err := model.NewSanction(model.SanctionLetter{
				SanctionID:   id,
				CustomerID:   "CUST001",
				CustomerName: "Rajesh Kumar",
				Terms:        stored,
				IssuedAt:     now,
			}, "sess-2", "file://"+id+".pdf")
			require.NoError(t, err)
			return sanction
		}

		done, err := loaded.CompleteWithSanction(newSanction("SAN-3"), now)
		require.NoError(t, err)
		require.NoError(t, sessions.Update(ctx, done))

		_, err = sanctions.FindByID(ctx, "SAN-3")
		require.NoError(t, err)
		loaded, err = sessions.FindByID(ctx, "sess-2")
		require.NoError(t, err)
		assert.True(t, loaded.SanctionGenerated())
		assert.Equal(t, "SAN-3", loaded.SanctionID())
	})

	t.Run("failed sanction insert rolls back the session", func(t *testing.T) {
		s, err := model.NewSession("sess-3", now)
		require.NoError(t, err)
		s, err = s.WithRequestedAmount(decimal.NewFromInt(40_000), now)
		require.NoError(t, err)
		s, err = s.BindCustomer("CUST001", "9876543210", now)
		require.NoError(t, err)
		terms := model.LoanTerms{
			Amount:       decimal.NewFromInt(40_000),
			TenureMonths: 12,
			InterestRate: decimal.RequireFromString("11.99"),
			EMI:          decimal.NewFromInt(3554),
		}
		s, err = s.ApplyDecision(valueobject.DecisionApproved, terms,
			model.AuditEntry{Action: model.AuditUnderwritingApprovedInstant}, now)
		require.NoError(t, err)
		require.NoError(t, sessions.Create(ctx, s))
		loaded, err := sessions.FindByID(ctx, "sess-3")
		require.NoError(t, err)

		// SAN-1 already exists, so the sanction insert fails inside the
		// session transaction.
		clash, err := model.NewSanction(model.SanctionLetter{
			SanctionID:   "SAN-1",
			CustomerID:   "CUST001",
			CustomerName: "Rajesh Kumar",
			Terms:        terms,
			IssuedAt:     now,
		}, "sess-3", "file://SAN-1.pdf")
		require.NoError(t, err)
		done, err := loaded.CompleteWithSanction(clash, now)
		require.NoError(t, err)
		assert.Error(t, sessions.Update(ctx, done))

		after, err := sessions.FindByID(ctx, "sess-3")
		require.NoError(t, err)
		assert.Equal(t, loaded.Version(), after.Version())
		assert.False(t, after.SanctionGenerated())
		assert.Len(t, after.AuditLog(), len(loaded.AuditLog()))
	})
}
