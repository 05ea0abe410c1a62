package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/port"
	"github.com/bibbank/origination/internal/domain/service"
	"github.com/bibbank/origination/internal/domain/valueobject"
	"github.com/bibbank/origination/pkg/money"
)

// DefaultResolverTimeout bounds a single intent resolver call.
const DefaultResolverTimeout = 15 * time.Second

// OrchestrateTurnUseCase handles one inbound chat message: it asks the intent
// resolver what to do, drives verification, underwriting and sanction
// issuance accordingly, and persists the whole turn at once.
type OrchestrateTurnUseCase struct {
	workflow        sessionWorkflow
	resolver        port.IntentResolver
	resolverTimeout time.Duration
	verifier        *Verifier
	underwriter     *Underwriter
	coordinator     *SanctionCoordinator
	logger          *slog.Logger
}

// NewOrchestrateTurnUseCase wires dependencies. A zero resolverTimeout uses
// DefaultResolverTimeout.
func NewOrchestrateTurnUseCase(
	sessions port.SessionRepository,
	locker port.SessionLocker,
	resolver port.IntentResolver,
	resolverTimeout time.Duration,
	verifier *Verifier,
	underwriter *Underwriter,
	coordinator *SanctionCoordinator,
	logger *slog.Logger,
) *OrchestrateTurnUseCase {
	if resolverTimeout <= 0 {
		resolverTimeout = DefaultResolverTimeout
	}
	return &OrchestrateTurnUseCase{
		workflow:        sessionWorkflow{sessions: sessions, locker: locker},
		resolver:        resolver,
		resolverTimeout: resolverTimeout,
		verifier:        verifier,
		underwriter:     underwriter,
		coordinator:     coordinator,
		logger:          logger,
	}
}

// turn accumulates what one chat message produced.
type turn struct {
	session  model.Session
	reply    string
	action   valueobject.NextAction
	customer *dto.CustomerSummary
	decision *dto.DecisionResponse
	sanction string
}

// Execute processes req. Failures come back as *apperr.TurnError carrying a
// customer-safe reply; nothing from a failed turn is persisted, so the same
// message can simply be sent again.
func (uc *OrchestrateTurnUseCase) Execute(ctx context.Context, req dto.ChatRequest) (dto.ChatResponse, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "OrchestrateTurn", trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	start := time.Now()
	resp, err := uc.execute(ctx, req)
	turnDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		kind := apperr.Kind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		turnErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
		uc.logger.ErrorContext(ctx, "chat turn failed",
			"session_id", req.SessionID,
			"kind", kind,
			"error", err,
		)
		return dto.ChatResponse{}, apperr.NewTurnError(req.SessionID, err)
	}
	return resp, nil
}

func (uc *OrchestrateTurnUseCase) execute(ctx context.Context, req dto.ChatRequest) (dto.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return dto.ChatResponse{}, apperr.Validationf("message is required")
	}
	now := time.Now().UTC()

	unlock, err := uc.workflow.lock(ctx, req.SessionID)
	if err != nil {
		return dto.ChatResponse{}, err
	}
	defer unlock()

	session, err := uc.workflow.loadOrCreate(ctx, req.SessionID, now)
	if err != nil {
		return dto.ChatResponse{}, err
	}
	if session, err = session.AppendTurn(model.RoleUser, message, now); err != nil {
		return dto.ChatResponse{}, err
	}

	intent, err := uc.resolve(ctx, session)
	if err != nil {
		return dto.ChatResponse{}, err
	}
	if session, err = applyExtracted(session, intent, now); err != nil {
		return dto.ChatResponse{}, err
	}

	t := &turn{session: session, reply: intent.Reply, action: intent.NextAction}
	if err := uc.dispatch(ctx, t, intent, now); err != nil {
		return dto.ChatResponse{}, err
	}

	if t.session, err = t.session.AppendTurn(model.RoleAssistant, t.reply, now); err != nil {
		return dto.ChatResponse{}, err
	}
	saved, err := uc.workflow.save(ctx, t.session)
	if err != nil {
		return dto.ChatResponse{}, err
	}

	resp := dto.ChatResponse{
		SessionID:  saved.ID(),
		Reply:      t.reply,
		NextAction: t.action.String(),
		Step:       saved.Step().String(),
		Status:     saved.Status().String(),
		Customer:   t.customer,
		Decision:   t.decision,
		SanctionID: t.sanction,
	}
	if t.sanction != "" {
		resp.DownloadURL = SanctionDownloadPath(t.sanction)
	}
	return resp, nil
}

// resolve asks the intent resolver about the latest turn, bounded by the
// resolver timeout. Every failure is reported as an external service error.
func (uc *OrchestrateTurnUseCase) resolve(ctx context.Context, s model.Session) (model.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.resolverTimeout)
	defer cancel()

	intent, err := uc.resolver.Resolve(ctx, s)
	if err != nil {
		if !errors.Is(err, apperr.ErrExternalService) {
			err = fmt.Errorf("%w: %w", apperr.ErrExternalService, err)
		}
		return model.Intent{}, fmt.Errorf("resolve intent: %w", err)
	}
	return intent, nil
}

// applyExtracted copies the amount and tenure the resolver pulled out of the
// message onto the session. Final sessions keep their terms.
func applyExtracted(s model.Session, intent model.Intent, now time.Time) (model.Session, error) {
	if s.Step().IsTerminal() {
		return s, nil
	}
	var err error
	if intent.Amount.Valid {
		if s, err = s.WithRequestedAmount(intent.Amount.Decimal, now); err != nil {
			return s, err
		}
	}
	if intent.TenureMonths != 0 {
		if s, err = s.WithTenure(intent.TenureMonths, now); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (uc *OrchestrateTurnUseCase) dispatch(ctx context.Context, t *turn, intent model.Intent, now time.Time) error {
	switch {
	case intent.NextAction.Equal(valueobject.ActionVerifyKYC):
		return uc.verify(ctx, t, intent.Phone, now)
	case intent.NextAction.Equal(valueobject.ActionRunUnderwriting):
		return uc.underwrite(ctx, t, now)
	case intent.NextAction.Equal(valueobject.ActionGenerateSanction):
		return uc.sanction(ctx, t, now)
	}
	return nil
}

func (uc *OrchestrateTurnUseCase) verify(ctx context.Context, t *turn, phone string, now time.Time) error {
	if phone == "" {
		return nil
	}
	session, customer, err := uc.verifier.Verify(ctx, t.session, phone, now)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		t.reply = appendParagraph(t.reply, customerNotFoundMessage)
		return nil
	case errors.Is(err, apperr.ErrValidation):
		t.reply = appendParagraph(t.reply, "That doesn't look like a valid 10-digit mobile number. Could you check and share it again?")
		t.action = valueobject.ActionCollectPhone
		return nil
	case err != nil:
		return err
	}

	t.session = session
	t.customer = toCustomerSummary(customer)
	t.reply = appendParagraph(t.reply, fmt.Sprintf(
		"%s You're pre-approved for up to %s. Would you like to proceed with your loan application?",
		welcomeMessage(customer), money.Rupees(customer.PreApprovedLimit()),
	))
	return nil
}

func (uc *OrchestrateTurnUseCase) underwrite(ctx context.Context, t *turn, now time.Time) error {
	if !uc.readyForUnderwriting(t) {
		return nil
	}
	session, outcome, err := uc.underwriter.Underwrite(ctx, t.session, noSalary, now)
	if err != nil {
		return err
	}
	t.session = session
	t.applyOutcome(outcome)
	return nil
}

func (uc *OrchestrateTurnUseCase) sanction(ctx context.Context, t *turn, now time.Time) error {
	if !uc.readyForUnderwriting(t) {
		return nil
	}
	session, sanction, outcome, err := finalize(ctx, uc.underwriter, uc.coordinator, t.session, now)
	if err != nil {
		return err
	}
	t.session = session
	if sanction.ID() == "" {
		t.applyOutcome(outcome)
		return nil
	}

	sanctionCounter.Add(ctx, 1)
	t.sanction = sanction.ID()
	t.action = valueobject.ActionNone
	t.decision = &dto.DecisionResponse{Outcome: outcome.Decision.Kind.String(), Reason: outcome.Decision.Reason}
	t.reply = fmt.Sprintf(
		"✅ Sanction letter generated successfully!\n\nYour sanction ID is: %s\n\nYou can download your sanction letter using the button below.",
		sanction.ID(),
	)
	uc.logger.InfoContext(ctx, "sanction issued", "session_id", session.ID(), "sanction_id", sanction.ID())
	return nil
}

// readyForUnderwriting leaves the resolver's reply in place when the session
// lacks a verified customer or an amount.
func (uc *OrchestrateTurnUseCase) readyForUnderwriting(t *turn) bool {
	_, hasAmount := t.session.RequestedAmount()
	return t.session.KYCVerified() && hasAmount
}

func (t *turn) applyOutcome(o UnderwritingOutcome) {
	decision := toDecisionResponse(o)
	t.decision = &decision

	d := o.Decision
	switch {
	case o.Repeated:
		t.reply = d.Reason
		t.action = valueobject.ActionNone
	case d.Kind.Equal(valueobject.DecisionApproved):
		t.reply = approvalReply(d)
		t.action = valueobject.ActionGenerateSanction
	case d.Kind.Equal(valueobject.DecisionSalaryRequired):
		t.reply = d.Reason
		t.action = valueobject.ActionCollectSalary
	default:
		t.reply = fmt.Sprintf("😔 %s\n\nWould you like me to help you with an alternative option?", d.Reason)
		t.action = valueobject.ActionReject
	}
}

func approvalReply(d service.Decision) string {
	return fmt.Sprintf(
		"🎉 Congratulations! %s\n\nYour loan details:\n- Amount: %s\n- Tenure: %d months\n- Interest Rate: %s%%\n- Monthly EMI: %s\n\nShall I generate your sanction letter?",
		d.Reason,
		money.Rupees(d.Terms.Amount),
		d.Terms.TenureMonths,
		d.Terms.InterestRate.String(),
		money.Rupees(d.Terms.EMI),
	)
}

func appendParagraph(reply, text string) string {
	if reply == "" {
		return text
	}
	return reply + "\n\n" + text
}

// SanctionDownloadPath is the REST path serving a sanction letter.
func SanctionDownloadPath(sanctionID string) string {
	return "/api/sanction/" + sanctionID + "/download"
}
