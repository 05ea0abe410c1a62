package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/application/usecase"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

func TestVerifyKYC_Execute(t *testing.T) {
	t.Run("verifies a known phone", func(t *testing.T) {
		h := newHarness(t)
		uc := usecase.NewVerifyKYCUseCase(h.sessions, h.locker, h.verifier, discardLogger())

		resp, err := uc.Execute(context.Background(), dto.VerifyKYCRequest{SessionID: "s1", Phone: "+91 98765 43211"})
		require.NoError(t, err)

		assert.True(t, resp.Verified)
		assert.Equal(t, "Welcome back, Customer CUST002! Your KYC is verified.", resp.Message)
		require.NotNil(t, resp.Customer)
		assert.True(t, resp.Customer.PreApprovedLimit.Equal(decimal.NewFromInt(75_000)))
		assert.Equal(t, "CUST002", h.sessions.get(t, "s1").CustomerID())
	})

	t.Run("unknown phone is not an error", func(t *testing.T) {
		h := newHarness(t)
		uc := usecase.NewVerifyKYCUseCase(h.sessions, h.locker, h.verifier, discardLogger())

		resp, err := uc.Execute(context.Background(), dto.VerifyKYCRequest{SessionID: "s1", Phone: "9000000000"})
		require.NoError(t, err)
		assert.False(t, resp.Verified)
		assert.Equal(t, 0, h.sessions.creates)
	})

	t.Run("re-verifying the bound customer is a no-op", func(t *testing.T) {
		h := newHarness(t)
		before := h.seedSession(t, "s1", "CUST001", "9876543210", 10_000)
		uc := usecase.NewVerifyKYCUseCase(h.sessions, h.locker, h.verifier, discardLogger())

		_, err := uc.Execute(context.Background(), dto.VerifyKYCRequest{SessionID: "s1", Phone: "9876543210"})
		require.NoError(t, err)
		assert.Len(t, h.sessions.get(t, "s1").AuditLog(), len(before.AuditLog()))

		_, err = uc.Execute(context.Background(), dto.VerifyKYCRequest{SessionID: "s1", Phone: "9876543211"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("missing fields", func(t *testing.T) {
		h := newHarness(t)
		uc := usecase.NewVerifyKYCUseCase(h.sessions, h.locker, h.verifier, discardLogger())
		_, err := uc.Execute(context.Background(), dto.VerifyKYCRequest{SessionID: "s1"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestRunUnderwriting_Execute(t *testing.T) {
	t.Run("supplied salary overrides the record", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST002", "9876543211", 100_000)
		uc := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())

		resp, err := uc.Execute(context.Background(), dto.RunUnderwritingRequest{
			SessionID:     "s1",
			MonthlySalary: decimal.NewNullDecimal(decimal.NewFromInt(10_000)),
		})
		require.NoError(t, err)

		assert.Equal(t, "rejected", resp.Outcome)
		assert.True(t, resp.SuggestedMaxPrincipal.Valid)
		require.NotNil(t, resp.Terms)
		assert.True(t, resp.Terms.EMI.Equal(decimal.NewFromInt(8838)))
	})

	t.Run("stored salary is ignored until a slip is uploaded", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST002", "9876543211", 100_000)
		uc := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())

		resp, err := uc.Execute(context.Background(), dto.RunUnderwritingRequest{SessionID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, "salary_required", resp.Outcome)
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newHarness(t)
		uc := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())
		_, err := uc.Execute(context.Background(), dto.RunUnderwritingRequest{SessionID: "nope"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("requires a verified customer", func(t *testing.T) {
		h := newHarness(t)
		s, err := model.NewSession("s1", fixedNow)
		require.NoError(t, err)
		h.sessions.put(s)
		uc := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())

		_, err = uc.Execute(context.Background(), dto.RunUnderwritingRequest{SessionID: "s1"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, 0, h.sessions.updates)
	})

	t.Run("bureau failure propagates", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST001", "9876543210", 10_000)
		h.bureau.err = apperr.ErrExternalService
		uc := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())

		_, err := uc.Execute(context.Background(), dto.RunUnderwritingRequest{SessionID: "s1"})
		assert.ErrorIs(t, err, apperr.ErrExternalService)
	})
}

func terms40k() model.LoanTerms {
	return model.LoanTerms{
		Amount:       decimal.NewFromInt(40_000),
		TenureMonths: 12,
		InterestRate: decimal.RequireFromString("11.99"),
		EMI:          decimal.NewFromInt(3554),
	}
}

func TestGenerateSanction_Execute(t *testing.T) {
	t.Run("issues on the approved terms", func(t *testing.T) {
		h := newHarness(t)
		h.approveSession(t, "s1", "CUST001", "9876543210", terms40k())

		resp, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		require.NoError(t, err)

		assert.Contains(t, resp.SanctionID, "SAN-")
		assert.Equal(t, "generated", resp.Status)
		assert.True(t, resp.Terms.Amount.Equal(decimal.NewFromInt(40_000)))
		assert.True(t, resp.Terms.EMI.Equal(decimal.NewFromInt(3554)))

		stored := h.sessions.get(t, "s1")
		assert.Equal(t, valueobject.StepCompleted, stored.Step())
		assert.Equal(t, resp.SanctionID, stored.SanctionID())
		require.Len(t, h.sanctions.sanctions, 1)
		assert.Equal(t, resp.SanctionID, h.sanctions.sanctions[0].ID())
	})

	t.Run("salary given to underwriting carries through to the sanction", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST002", "9876543211", 100_000)
		underwrite := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())

		decision, err := underwrite.Execute(context.Background(), dto.RunUnderwritingRequest{
			SessionID:     "s1",
			MonthlySalary: decimal.NewNullDecimal(decimal.NewFromInt(60_000)),
		})
		require.NoError(t, err)
		require.Equal(t, "approved", decision.Outcome)

		resp, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		require.NoError(t, err)
		assert.True(t, resp.Terms.Amount.Equal(decimal.NewFromInt(100_000)))
		assert.True(t, resp.Terms.EMI.Equal(decimal.NewFromInt(8838)))

		stored := h.sessions.get(t, "s1")
		assert.Equal(t, valueobject.StepCompleted, stored.Step())
		for _, e := range stored.AuditLog() {
			assert.NotEqual(t, model.AuditSalarySlipRequested, e.Action)
		}
	})

	t.Run("failed session save leaves no sanction and a retry succeeds", func(t *testing.T) {
		h := newHarness(t)
		h.approveSession(t, "s1", "CUST001", "9876543210", terms40k())
		h.sessions.failUpdates = 1
		h.sessions.updateErr = errors.New("connection reset")

		_, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		require.Error(t, err)
		assert.Empty(t, h.sanctions.sanctions)
		assert.Equal(t, valueobject.StepApproved, h.sessions.get(t, "s1").Step())

		resp, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		require.NoError(t, err)
		require.Len(t, h.sanctions.sanctions, 1)
		assert.Equal(t, resp.SanctionID, h.sanctions.sanctions[0].ID())
		assert.Equal(t, resp.SanctionID, h.sessions.get(t, "s1").SanctionID())
	})

	t.Run("already sanctioned returns the existing sanction", func(t *testing.T) {
		h := newHarness(t)
		h.approveSession(t, "s1", "CUST001", "9876543210", terms40k())
		first, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		require.NoError(t, err)
		updates := h.sessions.updates

		again, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, first.SanctionID, again.SanctionID)
		assert.Equal(t, updates, h.sessions.updates)
		assert.Len(t, h.sanctions.sanctions, 1)
		assert.Len(t, h.renderer.rendered, 1)
	})

	t.Run("session not yet underwritten is left untouched", func(t *testing.T) {
		h := newHarness(t)
		before := h.seedSession(t, "s1", "CUST001", "9876543210", 40_000)

		_, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, 0, h.sessions.updates)
		assert.Empty(t, h.renderer.rendered)
		assert.Equal(t, before.Snapshot(), h.sessions.get(t, "s1").Snapshot())
	})

	t.Run("declined session keeps its decision", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST003", "9876543212", 10_000)
		underwrite := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())
		decision, err := underwrite.Execute(context.Background(), dto.RunUnderwritingRequest{SessionID: "s1"})
		require.NoError(t, err)
		require.Equal(t, "rejected", decision.Outcome)
		updates := h.sessions.updates

		_, err = h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, updates, h.sessions.updates)
		assert.Empty(t, h.sanctions.sanctions)
		assert.Equal(t, valueobject.StepRejected, h.sessions.get(t, "s1").Step())
	})

	t.Run("render failure stores nothing", func(t *testing.T) {
		h := newHarness(t)
		h.approveSession(t, "s1", "CUST001", "9876543210", terms40k())
		h.renderer.renderFunc = func(context.Context, model.SanctionLetter) (string, error) {
			return "", errors.New("disk full")
		}

		_, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
		assert.ErrorIs(t, err, apperr.ErrExternalService)
		assert.Equal(t, 0, h.sessions.updates)
		assert.Empty(t, h.sanctions.sanctions)
	})
}

func TestUploadSalary_Execute(t *testing.T) {
	t.Run("updates the customer and the session", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST001", "9876543210", 80_000)

		resp, err := h.uploader().Execute(context.Background(), dto.UploadSalaryRequest{
			SessionID:     "s1",
			MonthlySalary: decimal.NewFromInt(90_000),
			Filename:      "salary-1.PNG",
			SizeBytes:     2048,
		})
		require.NoError(t, err)
		assert.Equal(t, "CUST001", resp.CustomerID)

		c, err := h.customers.FindByID(context.Background(), "CUST001")
		require.NoError(t, err)
		salary, _ := c.MonthlySalary()
		assert.True(t, salary.Equal(decimal.NewFromInt(90_000)))
		assert.True(t, h.sessions.get(t, "s1").SalaryUploaded())
	})

	t.Run("failed session save is safe to retry", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST002", "9876543211", 100_000)
		h.sessions.failUpdates = 1
		h.sessions.updateErr = errors.New("connection reset")
		req := dto.UploadSalaryRequest{
			SessionID:     "s1",
			MonthlySalary: decimal.NewFromInt(60_000),
			Filename:      "slip.pdf",
			SizeBytes:     1024,
		}

		_, err := h.uploader().Execute(context.Background(), req)
		require.Error(t, err)
		assert.False(t, h.sessions.get(t, "s1").SalaryUploaded())

		// The salary already on the customer is not used until the upload is
		// recorded on the session.
		underwrite := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())
		decision, err := underwrite.Execute(context.Background(), dto.RunUnderwritingRequest{SessionID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, "salary_required", decision.Outcome)

		_, err = h.uploader().Execute(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, h.sessions.get(t, "s1").SalaryUploaded())
		c, err := h.customers.FindByID(context.Background(), "CUST002")
		require.NoError(t, err)
		salary, _ := c.MonthlySalary()
		assert.True(t, salary.Equal(decimal.NewFromInt(60_000)))
	})

	t.Run("rejects bad documents", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST001", "9876543210", 80_000)

		for _, req := range []dto.UploadSalaryRequest{
			{SessionID: "s1", MonthlySalary: decimal.NewFromInt(1), Filename: "slip.exe"},
			{SessionID: "s1", MonthlySalary: decimal.NewFromInt(1), Filename: "slip.pdf", SizeBytes: usecase.MaxSalaryDocumentBytes + 1},
			{SessionID: "s1", MonthlySalary: decimal.Zero, Filename: "slip.pdf"},
			{SessionID: "", MonthlySalary: decimal.NewFromInt(1), Filename: "slip.pdf"},
		} {
			_, err := h.uploader().Execute(context.Background(), req)
			assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", req)
		}
	})

	t.Run("session without a customer is not found", func(t *testing.T) {
		h := newHarness(t)
		s, _ := model.NewSession("s1", fixedNow)
		h.sessions.put(s)

		_, err := h.uploader().Execute(context.Background(), dto.UploadSalaryRequest{
			SessionID: "s1", MonthlySalary: decimal.NewFromInt(1), Filename: "slip.pdf",
		})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestDownloadSanction_Execute(t *testing.T) {
	h := newHarness(t)
	h.approveSession(t, "s1", "CUST001", "9876543210", terms40k())
	issued, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s1"})
	require.NoError(t, err)

	store := &mockDocumentStore{docs: map[string][]byte{issued.DocumentRef: []byte("%PDF-1.3")}}
	uc := usecase.NewDownloadSanctionUseCase(h.sanctions, store)

	resp, err := uc.Execute(context.Background(), dto.GetSanctionRequest{SanctionID: issued.SanctionID})
	require.NoError(t, err)
	assert.Equal(t, "Sanction_Letter_"+issued.SanctionID+".pdf", resp.Filename)
	assert.Equal(t, []byte("%PDF-1.3"), resp.Content)
	require.Len(t, h.sanctions.updated, 1)
	assert.Equal(t, valueobject.SanctionStatusDownloaded, h.sanctions.updated[0].Status())

	_, err = uc.Execute(context.Background(), dto.GetSanctionRequest{SanctionID: issued.SanctionID})
	require.NoError(t, err)
	assert.Len(t, h.sanctions.updated, 1, "second download must not write again")

	_, err = uc.Execute(context.Background(), dto.GetSanctionRequest{SanctionID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, "s1", "CUST001", "9876543210", 40_000)
	h.seedSession(t, "s2", "CUST002", "9876543211", 40_000)

	t.Run("get session", func(t *testing.T) {
		resp, err := usecase.NewGetSessionUseCase(h.sessions).Execute(context.Background(), dto.GetSessionRequest{SessionID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, "kyc_verified", resp.Step)
		assert.True(t, resp.RequestedAmount.Valid)
		require.Len(t, resp.AuditLog, 1)
		assert.Equal(t, model.AuditKYCVerified, resp.AuditLog[0].Action)

		_, err = usecase.NewGetSessionUseCase(h.sessions).Execute(context.Background(), dto.GetSessionRequest{SessionID: "nope"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("list sessions", func(t *testing.T) {
		resp, err := usecase.NewListSessionsUseCase(h.sessions).Execute(context.Background(), dto.ListRequest{})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.TotalSessions)
		for _, s := range resp.Sessions {
			assert.Equal(t, 1, s.AuditLogCount)
		}
	})

	t.Run("offers", func(t *testing.T) {
		resp, err := usecase.NewGetOffersUseCase(h.customers, h.bureau).Execute(context.Background(), dto.GetOffersRequest{CustomerID: "CUST001"})
		require.NoError(t, err)
		require.Len(t, resp.Offers, 3)
		assert.Equal(t, []int{12, 24, 36}, []int{resp.Offers[0].TenureMonths, resp.Offers[1].TenureMonths, resp.Offers[2].TenureMonths})
		assert.True(t, resp.Offers[2].InterestRate.Equal(decimal.RequireFromString("12.49")))

		_, err = usecase.NewGetOffersUseCase(h.customers, h.bureau).Execute(context.Background(), dto.GetOffersRequest{CustomerID: "CUST999"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("list and get sanctions", func(t *testing.T) {
		underwrite := usecase.NewRunUnderwritingUseCase(h.sessions, h.locker, h.underwriter, discardLogger())
		_, err := underwrite.Execute(context.Background(), dto.RunUnderwritingRequest{SessionID: "s2"})
		require.NoError(t, err)
		issued, err := h.sanctionGenerator().Execute(context.Background(), dto.GenerateSanctionRequest{SessionID: "s2"})
		require.NoError(t, err)

		list, err := usecase.NewListSanctionsUseCase(h.sanctions).Execute(context.Background(), dto.ListRequest{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, list.Total)

		got, err := usecase.NewGetSanctionUseCase(h.sanctions).Execute(context.Background(), dto.GetSanctionRequest{SanctionID: issued.SanctionID})
		require.NoError(t, err)
		assert.Equal(t, "s2", got.SessionID)
	})
}
