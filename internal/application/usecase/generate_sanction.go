package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/port"
	"github.com/bibbank/origination/internal/domain/service"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

// DefaultRenderTimeout bounds a single document render.
const DefaultRenderTimeout = 10 * time.Second

// NewSanctionID mints a globally unique sanction identifier.
func NewSanctionID() string {
	return "SAN-" + uuid.NewString()
}

// SanctionCoordinator issues sanctions for approved sessions.
type SanctionCoordinator struct {
	customers     port.CustomerRepository
	renderer      port.DocumentRenderer
	renderTimeout time.Duration
	newID         func() string
}

// NewSanctionCoordinator wires dependencies. A zero renderTimeout uses
// DefaultRenderTimeout.
func NewSanctionCoordinator(
	customers port.CustomerRepository,
	renderer port.DocumentRenderer,
	renderTimeout time.Duration,
) *SanctionCoordinator {
	if renderTimeout <= 0 {
		renderTimeout = DefaultRenderTimeout
	}
	return &SanctionCoordinator{
		customers:     customers,
		renderer:      renderer,
		renderTimeout: renderTimeout,
		newID:         NewSanctionID,
	}
}

// Issue renders the letter and completes s with the new sanction attached as
// a pending child. Nothing is stored here: the sanction is written in the
// same transaction as the session when the caller saves it. A render failure
// returns an apperr.ErrExternalService error; the renderer is never retried.
func (c *SanctionCoordinator) Issue(
	ctx context.Context,
	s model.Session,
	terms model.LoanTerms,
	now time.Time,
) (model.Session, model.Sanction, error) {
	ctx, span := tracer.Start(ctx, "SanctionCoordinator.Issue", trace.WithAttributes(attribute.String("session.id", s.ID())))
	defer span.End()

	if s.SanctionGenerated() {
		return s, model.Sanction{}, fmt.Errorf("sanction %s already issued: %w", s.SanctionID(), valueobject.ErrInvalidStatusTransition)
	}
	if !s.Status().Equal(valueobject.SessionStatusApproved) {
		return s, model.Sanction{}, fmt.Errorf("%w: sanction requested for %s session", apperr.ErrInvariantViolation, s.Status())
	}

	customer, err := c.customers.FindByID(ctx, s.CustomerID())
	if err != nil {
		return s, model.Sanction{}, fmt.Errorf("load customer: %w", err)
	}

	letter := model.SanctionLetter{
		SanctionID:   c.newID(),
		CustomerID:   customer.ID(),
		CustomerName: customer.Name(),
		Terms:        terms,
		IssuedAt:     now,
	}

	renderCtx, cancel := context.WithTimeout(ctx, c.renderTimeout)
	defer cancel()
	ref, err := c.renderer.Render(renderCtx, letter)
	if err != nil {
		span.SetStatus(codes.Error, "render failed")
		if !errors.Is(err, apperr.ErrExternalService) {
			err = fmt.Errorf("%w: %w", apperr.ErrExternalService, err)
		}
		return s, model.Sanction{}, fmt.Errorf("render sanction letter: %w", err)
	}

	sanction, err := model.NewSanction(letter, s.ID(), ref)
	if err != nil {
		return s, model.Sanction{}, fmt.Errorf("create sanction: %w", err)
	}
	next, err := s.CompleteWithSanction(sanction, now)
	if err != nil {
		return s, model.Sanction{}, fmt.Errorf("complete session: %w", err)
	}

	span.SetAttributes(attribute.String("sanction.id", sanction.ID()))
	return next, sanction, nil
}

// GenerateSanctionUseCase issues the sanction for an approved session on the
// terms that were approved.
type GenerateSanctionUseCase struct {
	workflow    sessionWorkflow
	sanctions   port.SanctionRepository
	coordinator *SanctionCoordinator
	logger      *slog.Logger
}

// NewGenerateSanctionUseCase wires dependencies.
func NewGenerateSanctionUseCase(
	sessions port.SessionRepository,
	sanctions port.SanctionRepository,
	locker port.SessionLocker,
	coordinator *SanctionCoordinator,
	logger *slog.Logger,
) *GenerateSanctionUseCase {
	return &GenerateSanctionUseCase{
		workflow:    sessionWorkflow{sessions: sessions, locker: locker},
		sanctions:   sanctions,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Execute issues a sanction for req.SessionID. A session that already holds
// a sanction gets that sanction back; a session that is not approved is a
// validation failure and is left untouched.
func (uc *GenerateSanctionUseCase) Execute(ctx context.Context, req dto.GenerateSanctionRequest) (dto.SanctionResponse, error) {
	now := time.Now().UTC()

	unlock, err := uc.workflow.lock(ctx, req.SessionID)
	if err != nil {
		return dto.SanctionResponse{}, err
	}
	defer unlock()

	session, err := uc.workflow.load(ctx, req.SessionID)
	if err != nil {
		return dto.SanctionResponse{}, err
	}

	if session.SanctionGenerated() {
		existing, err := uc.sanctions.FindByID(ctx, session.SanctionID())
		if err != nil {
			return dto.SanctionResponse{}, fmt.Errorf("load sanction: %w", err)
		}
		return toSanctionResponse(existing), nil
	}
	terms, ok := session.ApprovedTerms()
	if !ok || !session.Step().Equal(valueobject.StepApproved) {
		return dto.SanctionResponse{}, apperr.Validationf(
			"session %s is at step %s; only an approved application can be sanctioned", session.ID(), session.Step())
	}

	session, sanction, err := uc.coordinator.Issue(ctx, session, terms, now)
	if err != nil {
		return dto.SanctionResponse{}, err
	}
	if _, err := uc.workflow.save(ctx, session); err != nil {
		return dto.SanctionResponse{}, err
	}
	sanctionCounter.Add(ctx, 1)

	uc.logger.InfoContext(ctx, "sanction issued", "session_id", req.SessionID, "sanction_id", sanction.ID())
	return toSanctionResponse(sanction), nil
}

// finalize issues a sanction from the chat flow. An approved session is
// sanctioned on its stored terms without a new decision; a session still in
// progress is underwritten first. An outcome other than approval returns a
// zero Sanction and the session carrying that decision's audit entry.
func finalize(
	ctx context.Context,
	underwriter *Underwriter,
	coordinator *SanctionCoordinator,
	s model.Session,
	now time.Time,
) (model.Session, model.Sanction, UnderwritingOutcome, error) {
	if terms, ok := s.ApprovedTerms(); ok && s.Step().Equal(valueobject.StepApproved) {
		outcome := UnderwritingOutcome{Decision: service.Decision{
			Kind:   valueobject.DecisionApproved,
			Reason: "Approved",
			Terms:  terms,
		}}
		next, sanction, err := coordinator.Issue(ctx, s, terms, now)
		return next, sanction, outcome, err
	}

	s, outcome, err := underwriter.Underwrite(ctx, s, noSalary, now)
	if err != nil {
		return s, model.Sanction{}, outcome, err
	}
	if outcome.Repeated || !outcome.Decision.Approved() {
		return s, model.Sanction{}, outcome, nil
	}

	s, sanction, err := coordinator.Issue(ctx, s, outcome.Decision.Terms, now)
	if err != nil {
		return s, model.Sanction{}, outcome, err
	}
	return s, sanction, outcome, nil
}

func toSanctionResponse(s model.Sanction) dto.SanctionResponse {
	return dto.SanctionResponse{
		SanctionID:   s.ID(),
		SessionID:    s.SessionID(),
		CustomerID:   s.CustomerID(),
		CustomerName: s.CustomerName(),
		Terms:        toTermsResponse(s.Terms()),
		DocumentRef:  s.DocumentRef(),
		Status:       s.Status().String(),
		CreatedAt:    s.CreatedAt(),
		UpdatedAt:    s.UpdatedAt(),
	}
}
