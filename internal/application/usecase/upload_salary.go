package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/port"
)

// MaxSalaryDocumentBytes is the largest salary document accepted.
const MaxSalaryDocumentBytes = 5 << 20

var allowedSalaryDocumentExts = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// UploadSalaryUseCase records a declared salary and its supporting document
// against a verified session.
type UploadSalaryUseCase struct {
	workflow  sessionWorkflow
	customers port.CustomerRepository
	logger    *slog.Logger
}

// NewUploadSalaryUseCase wires dependencies.
func NewUploadSalaryUseCase(
	sessions port.SessionRepository,
	locker port.SessionLocker,
	customers port.CustomerRepository,
	logger *slog.Logger,
) *UploadSalaryUseCase {
	return &UploadSalaryUseCase{
		workflow:  sessionWorkflow{sessions: sessions, locker: locker},
		customers: customers,
		logger:    logger,
	}
}

// ValidateSalaryDocument checks a document's name and size before it is
// stored anywhere.
func ValidateSalaryDocument(filename string, size int64) error {
	if filename == "" {
		return apperr.Validationf("salary document is required")
	}
	if !allowedSalaryDocumentExts[strings.ToLower(filepath.Ext(filename))] {
		return apperr.Validationf("only PDF, JPG, JPEG, and PNG files are allowed")
	}
	if size > MaxSalaryDocumentBytes {
		return apperr.Validationf("salary document exceeds %d bytes", MaxSalaryDocumentBytes)
	}
	return nil
}

// Execute updates the customer's salary and marks the session's salary
// document as received.
func (uc *UploadSalaryUseCase) Execute(ctx context.Context, req dto.UploadSalaryRequest) (dto.UploadSalaryResponse, error) {
	if req.SessionID == "" || !req.MonthlySalary.IsPositive() {
		return dto.UploadSalaryResponse{}, apperr.Validationf("sessionId and a positive salary are required")
	}
	if err := ValidateSalaryDocument(req.Filename, req.SizeBytes); err != nil {
		return dto.UploadSalaryResponse{}, err
	}
	now := time.Now().UTC()

	unlock, err := uc.workflow.lock(ctx, req.SessionID)
	if err != nil {
		return dto.UploadSalaryResponse{}, err
	}
	defer unlock()

	session, err := uc.workflow.load(ctx, req.SessionID)
	if err != nil {
		return dto.UploadSalaryResponse{}, err
	}
	if !session.KYCVerified() {
		return dto.UploadSalaryResponse{}, apperr.NotFoundf("session %s has no verified customer", req.SessionID)
	}

	session, err = session.RecordSalaryUpload(req.MonthlySalary, req.Filename, now)
	if err != nil {
		return dto.UploadSalaryResponse{}, fmt.Errorf("record salary upload: %w", err)
	}

	customer, err := uc.customers.FindByID(ctx, session.CustomerID())
	if err != nil {
		return dto.UploadSalaryResponse{}, fmt.Errorf("load customer: %w", err)
	}
	if _, err := customer.WithSalary(req.MonthlySalary, now); err != nil {
		return dto.UploadSalaryResponse{}, err
	}
	// The salary is written before the session. It is a plain overwrite, so a
	// retry after a failed session save writes the same value again, and
	// underwriting ignores the stored salary until the session records the
	// upload.
	if err := uc.customers.UpdateSalary(ctx, customer.ID(), req.MonthlySalary); err != nil {
		return dto.UploadSalaryResponse{}, fmt.Errorf("update customer salary: %w", err)
	}

	if _, err := uc.workflow.save(ctx, session); err != nil {
		return dto.UploadSalaryResponse{}, err
	}

	uc.logger.InfoContext(ctx, "salary slip uploaded",
		"session_id", req.SessionID,
		"customer_id", customer.ID(),
		"filename", req.Filename,
	)
	return dto.UploadSalaryResponse{
		SessionID:     session.ID(),
		CustomerID:    customer.ID(),
		MonthlySalary: req.MonthlySalary,
		Message:       "Salary slip uploaded successfully",
	}, nil
}
