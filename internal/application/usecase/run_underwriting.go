package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/port"
	"github.com/bibbank/origination/internal/domain/service"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

var noSalary decimal.NullDecimal

// UnderwritingOutcome is the result of one underwriting step. Repeated is set
// when the session was already final and only the query was recorded.
type UnderwritingOutcome struct {
	Decision service.Decision
	Repeated bool
}

// Underwriter runs the decision engine against a session and applies the
// outcome to it. Persisting the returned session is the caller's job.
type Underwriter struct {
	customers port.CustomerRepository
	bureau    port.CreditBureauClient
	engine    *service.UnderwritingEngine
}

// NewUnderwriter wires dependencies.
func NewUnderwriter(
	customers port.CustomerRepository,
	bureau port.CreditBureauClient,
	engine *service.UnderwritingEngine,
) *Underwriter {
	return &Underwriter{customers: customers, bureau: bureau, engine: engine}
}

// Underwrite evaluates the session's requested amount. salary, when valid,
// takes precedence over the salary on file; the stored salary only counts
// once a salary document has been uploaded on this session.
func (u *Underwriter) Underwrite(
	ctx context.Context,
	s model.Session,
	salary decimal.NullDecimal,
	now time.Time,
) (model.Session, UnderwritingOutcome, error) {
	ctx, span := tracer.Start(ctx, "Underwriter.Underwrite", trace.WithAttributes(attribute.String("session.id", s.ID())))
	defer span.End()

	if s.Step().IsTerminal() {
		return u.repeated(s, now)
	}
	if !s.KYCVerified() {
		return s, UnderwritingOutcome{}, apperr.Validationf("phone verification is required before underwriting")
	}
	amount, ok := s.RequestedAmount()
	if !ok {
		return s, UnderwritingOutcome{}, apperr.Validationf("a requested loan amount is required before underwriting")
	}

	customer, err := u.customers.FindByID(ctx, s.CustomerID())
	if err != nil {
		return s, UnderwritingOutcome{}, fmt.Errorf("load customer: %w", err)
	}
	score, err := u.bureau.GetCreditScore(ctx, customer.ID())
	if err != nil {
		return s, UnderwritingOutcome{}, fmt.Errorf("fetch credit score: %w", err)
	}

	if !salary.Valid && s.SalaryUploaded() {
		if onFile, ok := customer.MonthlySalary(); ok {
			salary = decimal.NewNullDecimal(onFile)
		}
	}

	tenure := s.EffectiveTenure()
	if s.TenureMonths() == 0 {
		if s, err = s.WithTenure(tenure, now); err != nil {
			return s, UnderwritingOutcome{}, err
		}
	}

	decision := u.engine.Evaluate(service.UnderwritingInput{
		CreditScore:      score,
		PreApprovedLimit: customer.PreApprovedLimit(),
		RequestedAmount:  amount,
		TenureMonths:     tenure,
		MonthlySalary:    salary,
	})

	next, err := s.ApplyDecision(decision.Kind, decision.Terms, decision.Audit, now)
	if err != nil {
		return s, UnderwritingOutcome{}, fmt.Errorf("apply decision: %w", err)
	}

	span.SetAttributes(attribute.String("underwriting.outcome", decision.Kind.String()))
	decisionCounter.Add(ctx, 1, outcomeAttr(decision.Kind.String()))
	return next, UnderwritingOutcome{Decision: decision}, nil
}

func (u *Underwriter) repeated(s model.Session, now time.Time) (model.Session, UnderwritingOutcome, error) {
	details := map[string]any{
		"step":   s.Step().String(),
		"status": s.Status().String(),
	}
	decision := service.Decision{
		Kind:   valueobject.DecisionRejected,
		Reason: "Your application has already been reviewed and could not be approved.",
	}
	if s.SanctionGenerated() {
		details["sanction_id"] = s.SanctionID()
		decision = service.Decision{
			Kind:   valueobject.DecisionApproved,
			Reason: fmt.Sprintf("Your loan has already been sanctioned. Your sanction ID is: %s", s.SanctionID()),
		}
	}
	decision.Audit = model.AuditEntry{Action: model.AuditUnderwritingRepeatedQuery, At: now, Details: details}

	next, err := s.RecordRepeatedQuery(details, now)
	if err != nil {
		return s, UnderwritingOutcome{}, fmt.Errorf("record repeated query: %w", err)
	}
	return next, UnderwritingOutcome{Decision: decision, Repeated: true}, nil
}

// RunUnderwritingUseCase evaluates a session outside the chat flow.
type RunUnderwritingUseCase struct {
	workflow    sessionWorkflow
	underwriter *Underwriter
	logger      *slog.Logger
}

// NewRunUnderwritingUseCase wires dependencies.
func NewRunUnderwritingUseCase(
	sessions port.SessionRepository,
	locker port.SessionLocker,
	underwriter *Underwriter,
	logger *slog.Logger,
) *RunUnderwritingUseCase {
	return &RunUnderwritingUseCase{
		workflow:    sessionWorkflow{sessions: sessions, locker: locker},
		underwriter: underwriter,
		logger:      logger,
	}
}

// Execute runs underwriting and persists the decision with its audit entry.
func (uc *RunUnderwritingUseCase) Execute(ctx context.Context, req dto.RunUnderwritingRequest) (dto.DecisionResponse, error) {
	now := time.Now().UTC()

	unlock, err := uc.workflow.lock(ctx, req.SessionID)
	if err != nil {
		return dto.DecisionResponse{}, err
	}
	defer unlock()

	session, err := uc.workflow.load(ctx, req.SessionID)
	if err != nil {
		return dto.DecisionResponse{}, err
	}

	session, outcome, err := uc.underwriter.Underwrite(ctx, session, req.MonthlySalary, now)
	if err != nil {
		return dto.DecisionResponse{}, err
	}
	if _, err := uc.workflow.save(ctx, session); err != nil {
		return dto.DecisionResponse{}, err
	}

	uc.logger.InfoContext(ctx, "underwriting decided",
		"session_id", req.SessionID,
		"outcome", outcome.Decision.Kind.String(),
		"repeated", outcome.Repeated,
	)
	return toDecisionResponse(outcome), nil
}

func toDecisionResponse(o UnderwritingOutcome) dto.DecisionResponse {
	resp := dto.DecisionResponse{
		Outcome:               o.Decision.Kind.String(),
		Reason:                o.Decision.Reason,
		SuggestedMaxPrincipal: o.Decision.SuggestedMaxPrincipal,
		RepeatedQuery:         o.Repeated,
	}
	if o.Decision.Terms.EMI.IsPositive() {
		terms := toTermsResponse(o.Decision.Terms)
		resp.Terms = &terms
	}
	return resp
}

func toTermsResponse(t model.LoanTerms) dto.LoanTermsResponse {
	return dto.LoanTermsResponse{
		Amount:       t.Amount,
		TenureMonths: t.TenureMonths,
		InterestRate: t.InterestRate,
		EMI:          t.EMI,
		TotalPayable: t.TotalPayable(),
	}
}
