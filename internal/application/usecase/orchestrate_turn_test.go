package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

func TestOrchestrateTurn_Execute(t *testing.T) {
	t.Run("creates a session and stores both turns", func(t *testing.T) {
		h := newHarness(t)
		resolver := respond(model.Intent{Reply: "Hi! How much would you like to borrow?", NextAction: valueobject.ActionCollectAmount})

		resp, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "hello"})
		require.NoError(t, err)

		assert.Equal(t, "s1", resp.SessionID)
		assert.Equal(t, "Hi! How much would you like to borrow?", resp.Reply)
		assert.Equal(t, "collect_amount", resp.NextAction)
		assert.Equal(t, "initial", resp.Step)

		stored := h.sessions.get(t, "s1")
		turns := stored.Turns()
		require.Len(t, turns, 2)
		assert.Equal(t, model.RoleUser, turns[0].Role)
		assert.Equal(t, model.RoleAssistant, turns[1].Role)
		assert.Equal(t, 1, h.sessions.creates)
		assert.Equal(t, 1, h.locker.locks)
		assert.Equal(t, 1, h.locker.unlock)
	})

	t.Run("generates a session id when none is given", func(t *testing.T) {
		h := newHarness(t)
		resp, err := h.orchestrator(&mockResolver{}).Execute(context.Background(), dto.ChatRequest{Message: "hello"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.SessionID)
	})

	t.Run("resolver sees the user turn already appended", func(t *testing.T) {
		h := newHarness(t)
		resolver := &mockResolver{}
		_, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "I need 50000"})
		require.NoError(t, err)

		require.Equal(t, 1, resolver.calls)
		turns := resolver.seen[0].Turns()
		require.Len(t, turns, 1)
		assert.Equal(t, "I need 50000", turns[0].Content)
	})

	t.Run("empty message is a validation error", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.orchestrator(&mockResolver{}).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "  "})

		var te *apperr.TurnError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, 0, h.sessions.creates)
	})
}

func TestOrchestrateTurn_Verification(t *testing.T) {
	t.Run("known phone binds the customer", func(t *testing.T) {
		h := newHarness(t)
		resolver := respond(model.Intent{
			Reply:      "Let me verify that.",
			NextAction: valueobject.ActionVerifyKYC,
			Phone:      "9876543210",
			Amount:     decimal.NewNullDecimal(decimal.NewFromInt(50_000)),
		})

		resp, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "my number is 9876543210"})
		require.NoError(t, err)

		assert.Contains(t, resp.Reply, "Welcome back, Customer CUST001! Your KYC is verified.")
		assert.Contains(t, resp.Reply, "pre-approved for up to ₹50,000")
		require.NotNil(t, resp.Customer)
		assert.Equal(t, "CUST001", resp.Customer.CustomerID)
		assert.Equal(t, "kyc_verified", resp.Step)

		stored := h.sessions.get(t, "s1")
		assert.True(t, stored.KYCVerified())
		amount, ok := stored.RequestedAmount()
		assert.True(t, ok)
		assert.True(t, amount.Equal(decimal.NewFromInt(50_000)))
		assert.Equal(t, model.AuditKYCVerified, stored.AuditLog()[0].Action)
	})

	t.Run("unknown phone leaves the session unverified", func(t *testing.T) {
		h := newHarness(t)
		resolver := respond(model.Intent{Reply: "Checking.", NextAction: valueobject.ActionVerifyKYC, Phone: "9000000000"})

		resp, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "9000000000"})
		require.NoError(t, err)

		assert.Contains(t, resp.Reply, "Customer not found in our records")
		assert.Nil(t, resp.Customer)
		stored := h.sessions.get(t, "s1")
		assert.False(t, stored.KYCVerified())
		assert.Empty(t, stored.AuditLog())
	})

	t.Run("malformed phone asks again", func(t *testing.T) {
		h := newHarness(t)
		resolver := respond(model.Intent{NextAction: valueobject.ActionVerifyKYC, Phone: "12345"})

		resp, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "12345"})
		require.NoError(t, err)
		assert.Equal(t, "collect_phone", resp.NextAction)
	})
}

func TestOrchestrateTurn_Underwriting(t *testing.T) {
	t.Run("instant approval", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST001", "9876543210", 50_000)
		resolver := respond(model.Intent{Reply: "Let me check.", NextAction: valueobject.ActionRunUnderwriting})

		resp, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "yes please"})
		require.NoError(t, err)

		assert.Contains(t, resp.Reply, "🎉 Congratulations! Instant approval!")
		assert.Contains(t, resp.Reply, "- Amount: ₹50,000")
		assert.Contains(t, resp.Reply, "- Tenure: 12 months")
		assert.Contains(t, resp.Reply, "- Interest Rate: 11.99%")
		assert.Contains(t, resp.Reply, "- Monthly EMI: ₹4,442")
		assert.Equal(t, "generate_sanction", resp.NextAction)
		assert.Equal(t, "approved", resp.Step)
		require.NotNil(t, resp.Decision)
		assert.Equal(t, "approved", resp.Decision.Outcome)
	})

	t.Run("credit floor rejection", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST003", "9876543212", 20_000)
		resolver := respond(model.Intent{NextAction: valueobject.ActionRunUnderwriting})

		resp, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "go"})
		require.NoError(t, err)

		assert.Contains(t, resp.Reply, "😔 Your credit score (650)")
		assert.Contains(t, resp.Reply, "Would you like me to help you with an alternative option?")
		assert.Equal(t, "reject", resp.NextAction)
		assert.Equal(t, "rejected", resp.Step)
		assert.Equal(t, "rejected", resp.Status)
	})

	t.Run("not ready keeps the resolver reply", func(t *testing.T) {
		h := newHarness(t)
		resolver := respond(model.Intent{Reply: "What's your phone number?", NextAction: valueobject.ActionRunUnderwriting})

		resp, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "approve me"})
		require.NoError(t, err)
		assert.Equal(t, "What's your phone number?", resp.Reply)
		assert.Nil(t, resp.Decision)
	})

	t.Run("salary required, upload, then approval", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST002", "9876543211", 100_000)
		orch := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionRunUnderwriting}))

		first, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "check"})
		require.NoError(t, err)
		assert.Equal(t, "collect_salary", first.NextAction)
		assert.Equal(t, "salary_required", first.Step)
		assert.Equal(t, "pending", first.Status)

		upload := h.uploader()
		_, err = upload.Execute(context.Background(), dto.UploadSalaryRequest{
			SessionID:     "s1",
			MonthlySalary: decimal.NewFromInt(60_000),
			Filename:      "slip.pdf",
			SizeBytes:     1024,
		})
		require.NoError(t, err)

		second, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "uploaded"})
		require.NoError(t, err)
		assert.Equal(t, "approved", second.Step)
		assert.Contains(t, second.Reply, "Approved! Your salary supports the requested loan amount.")
		assert.Contains(t, second.Reply, "10.99%")

		actions := auditActions(h.sessions.get(t, "s1"))
		assert.Equal(t, []string{
			model.AuditKYCVerified,
			model.AuditSalarySlipRequested,
			model.AuditSalarySlipUploaded,
			model.AuditUnderwritingApprovedWithSalary,
		}, actions)
	})

	t.Run("each evaluation appends exactly one audit entry", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST002", "9876543211", 100_000)
		orch := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionRunUnderwriting}))

		before := len(h.sessions.get(t, "s1").AuditLog())
		for i := 0; i < 3; i++ {
			_, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "again"})
			require.NoError(t, err)
		}
		assert.Len(t, h.sessions.get(t, "s1").AuditLog(), before+3)
	})

	t.Run("terminal session only records the repeated query", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST003", "9876543212", 20_000)
		orch := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionRunUnderwriting}))

		_, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "go"})
		require.NoError(t, err)

		resp, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "try again"})
		require.NoError(t, err)
		assert.Equal(t, "rejected", resp.Step)
		require.NotNil(t, resp.Decision)
		assert.True(t, resp.Decision.RepeatedQuery)

		log := h.sessions.get(t, "s1").AuditLog()
		assert.Equal(t, model.AuditUnderwritingRepeatedQuery, log[len(log)-1].Action)
	})
}

func TestOrchestrateTurn_Sanction(t *testing.T) {
	t.Run("issues a sanction and completes the session", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST001", "9876543210", 50_000)
		approve := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionRunUnderwriting}))
		_, err := approve.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "go"})
		require.NoError(t, err)

		resp, err := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionGenerateSanction})).
			Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "yes, generate it"})
		require.NoError(t, err)

		require.Len(t, h.sanctions.sanctions, 1)
		sanction := h.sanctions.sanctions[0]
		assert.Equal(t, sanction.ID(), resp.SanctionID)
		assert.Equal(t, "/api/sanction/"+sanction.ID()+"/download", resp.DownloadURL)
		assert.Contains(t, resp.Reply, "✅ Sanction letter generated successfully!")
		assert.Contains(t, resp.Reply, "Your sanction ID is: "+sanction.ID())
		assert.Equal(t, "completed", resp.Step)
		assert.Equal(t, "approved", resp.Status)

		stored := h.sessions.get(t, "s1")
		assert.True(t, stored.SanctionGenerated())
		log := stored.AuditLog()
		assert.Equal(t, model.AuditUnderwritingApprovedInstant, log[len(log)-2].Action)
		assert.Equal(t, model.AuditSanctionGenerated, log[len(log)-1].Action)

		require.Len(t, h.renderer.rendered, 1)
		assert.Equal(t, "Customer CUST001", h.renderer.rendered[0].CustomerName)
	})

	t.Run("render failure persists nothing", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST001", "9876543210", 50_000)
		h.renderer.renderFunc = func(context.Context, model.SanctionLetter) (string, error) {
			return "", errors.New("disk full")
		}
		before := h.sessions.get(t, "s1")

		_, err := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionGenerateSanction})).
			Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "generate"})

		var te *apperr.TurnError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, apperr.ErrExternalService)
		assert.Equal(t, apperr.UserMessage(apperr.ErrExternalService), te.Reply)
		assert.Empty(t, h.sanctions.sanctions)
		assert.Equal(t, before.Snapshot(), h.sessions.get(t, "s1").Snapshot())
	})

	t.Run("approved session is sanctioned on its stored terms", func(t *testing.T) {
		h := newHarness(t)
		terms := model.LoanTerms{
			Amount:       decimal.NewFromInt(100_000),
			TenureMonths: 12,
			InterestRate: decimal.RequireFromString("10.99"),
			EMI:          decimal.NewFromInt(8838),
		}
		before := h.approveSession(t, "s1", "CUST002", "9876543211", terms)

		resp, err := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionGenerateSanction})).
			Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "generate"})
		require.NoError(t, err)
		assert.Equal(t, "completed", resp.Step)

		require.Len(t, h.renderer.rendered, 1)
		assert.Equal(t, terms, h.renderer.rendered[0].Terms)
		log := h.sessions.get(t, "s1").AuditLog()
		require.Len(t, log, len(before.AuditLog())+1)
		assert.Equal(t, model.AuditSanctionGenerated, log[len(log)-1].Action)
	})

	t.Run("failed save keeps the session approved and the retry issues once", func(t *testing.T) {
		h := newHarness(t)
		h.approveSession(t, "s1", "CUST001", "9876543210", terms40k())
		h.sessions.failUpdates = 1
		h.sessions.updateErr = errors.New("connection reset")
		orch := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionGenerateSanction}))

		_, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "generate"})
		require.Error(t, err)
		assert.Empty(t, h.sanctions.sanctions)

		resp, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "generate"})
		require.NoError(t, err)
		require.Len(t, h.sanctions.sanctions, 1)
		assert.Equal(t, h.sanctions.sanctions[0].ID(), resp.SanctionID)
	})

	t.Run("completed session does not issue twice", func(t *testing.T) {
		h := newHarness(t)
		h.seedSession(t, "s1", "CUST001", "9876543210", 50_000)
		orch := h.orchestrator(respond(model.Intent{NextAction: valueobject.ActionGenerateSanction}))

		_, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "generate"})
		require.NoError(t, err)
		resp, err := orch.Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "generate again"})
		require.NoError(t, err)

		assert.Len(t, h.sanctions.sanctions, 1)
		assert.Contains(t, resp.Reply, "already been sanctioned")
	})
}

func TestOrchestrateTurn_ResolverFailures(t *testing.T) {
	t.Run("resolver error discards the turn", func(t *testing.T) {
		h := newHarness(t)
		resolver := &mockResolver{resolveFunc: func(context.Context, model.Session) (model.Intent, error) {
			return model.Intent{}, errors.New("503 from upstream")
		}}

		_, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "hello"})
		assert.ErrorIs(t, err, apperr.ErrExternalService)
		assert.Equal(t, "external_service", apperr.Kind(err))
		assert.Equal(t, 0, h.sessions.creates)
		assert.Equal(t, 1, h.locker.unlock)
	})

	t.Run("resolver timeout is an external service failure", func(t *testing.T) {
		h := newHarness(t)
		resolver := &mockResolver{resolveFunc: func(ctx context.Context, _ model.Session) (model.Intent, error) {
			<-ctx.Done()
			return model.Intent{}, ctx.Err()
		}}

		_, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "hello"})
		assert.ErrorIs(t, err, apperr.ErrExternalService)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("invalid extracted tenure is surfaced", func(t *testing.T) {
		h := newHarness(t)
		resolver := respond(model.Intent{NextAction: valueobject.ActionNone, TenureMonths: 600})

		_, err := h.orchestrator(resolver).Execute(context.Background(), dto.ChatRequest{SessionID: "s1", Message: "50 years"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, 0, h.sessions.creates)
	})
}

func auditActions(s model.Session) []string {
	out := make([]string, 0, len(s.AuditLog()))
	for _, e := range s.AuditLog() {
		out = append(out, e.Action)
	}
	return out
}
