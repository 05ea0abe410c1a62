package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/port"
)

const customerNotFoundMessage = "Customer not found in our records. Please provide your details to proceed."

// Verifier resolves a phone number to a customer and binds it to a session.
type Verifier struct {
	customers port.CustomerRepository
}

// NewVerifier wires dependencies.
func NewVerifier(customers port.CustomerRepository) *Verifier {
	return &Verifier{customers: customers}
}

// Verify binds the customer owning phone to s. A phone with no customer
// returns an apperr.ErrNotFound error and leaves s unchanged.
func (v *Verifier) Verify(ctx context.Context, s model.Session, phone string, now time.Time) (model.Session, model.Customer, error) {
	ctx, span := tracer.Start(ctx, "Verifier.Verify", trace.WithAttributes(attribute.String("session.id", s.ID())))
	defer span.End()

	normalized, err := model.NormalizePhone(phone)
	if err != nil {
		return s, model.Customer{}, err
	}

	customer, err := v.customers.FindByPhone(ctx, normalized)
	if err != nil {
		return s, model.Customer{}, fmt.Errorf("find customer by phone: %w", err)
	}

	if s.KYCVerified() {
		if s.CustomerID() != customer.ID() {
			return s, model.Customer{}, apperr.Validationf("session %s is already bound to another customer", s.ID())
		}
		return s, customer, nil
	}

	next, err := s.BindCustomer(customer.ID(), normalized, now)
	if err != nil {
		return s, model.Customer{}, fmt.Errorf("bind customer: %w", err)
	}
	return next, customer, nil
}

// VerifyKYCUseCase runs verification outside the chat flow.
type VerifyKYCUseCase struct {
	workflow sessionWorkflow
	verifier *Verifier
	logger   *slog.Logger
}

// NewVerifyKYCUseCase wires dependencies.
func NewVerifyKYCUseCase(
	sessions port.SessionRepository,
	locker port.SessionLocker,
	verifier *Verifier,
	logger *slog.Logger,
) *VerifyKYCUseCase {
	return &VerifyKYCUseCase{
		workflow: sessionWorkflow{sessions: sessions, locker: locker},
		verifier: verifier,
		logger:   logger,
	}
}

// Execute verifies req.Phone against the customer base. An unknown phone is
// a normal outcome: Verified is false and the session is not touched.
func (uc *VerifyKYCUseCase) Execute(ctx context.Context, req dto.VerifyKYCRequest) (dto.VerifyKYCResponse, error) {
	if req.SessionID == "" || req.Phone == "" {
		return dto.VerifyKYCResponse{}, apperr.Validationf("sessionId and phone are required")
	}
	now := time.Now().UTC()

	unlock, err := uc.workflow.lock(ctx, req.SessionID)
	if err != nil {
		return dto.VerifyKYCResponse{}, err
	}
	defer unlock()

	session, err := uc.workflow.loadOrCreate(ctx, req.SessionID, now)
	if err != nil {
		return dto.VerifyKYCResponse{}, err
	}

	session, customer, err := uc.verifier.Verify(ctx, session, req.Phone, now)
	if errors.Is(err, apperr.ErrNotFound) {
		uc.logger.InfoContext(ctx, "kyc phone not matched", "session_id", req.SessionID, "phone", req.Phone)
		return dto.VerifyKYCResponse{Verified: false, Message: customerNotFoundMessage}, nil
	}
	if err != nil {
		return dto.VerifyKYCResponse{}, err
	}

	if _, err := uc.workflow.save(ctx, session); err != nil {
		return dto.VerifyKYCResponse{}, err
	}

	uc.logger.InfoContext(ctx, "kyc verified", "session_id", req.SessionID, "customer_id", customer.ID())
	return dto.VerifyKYCResponse{
		Verified: true,
		Message:  welcomeMessage(customer),
		Customer: toCustomerSummary(customer),
	}, nil
}

func welcomeMessage(c model.Customer) string {
	return fmt.Sprintf("Welcome back, %s! Your KYC is verified.", c.Name())
}

func toCustomerSummary(c model.Customer) *dto.CustomerSummary {
	return &dto.CustomerSummary{
		CustomerID:       c.ID(),
		Name:             c.Name(),
		PreApprovedLimit: c.PreApprovedLimit(),
	}
}
