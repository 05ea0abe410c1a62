package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	pkgkafka "github.com/bibbank/origination/pkg/kafka"
)

// SalaryDocument is the message a document intake system publishes once a
// customer's salary slip has been received and read.
type SalaryDocument struct {
	SessionID     string          `json:"session_id"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	Filename      string          `json:"filename"`
	ContentType   string          `json:"content_type"`
	SizeBytes     int64           `json:"size_bytes"`
}

// SalaryUploader is satisfied by *usecase.UploadSalaryUseCase.
type SalaryUploader interface {
	Execute(ctx context.Context, req dto.UploadSalaryRequest) (dto.UploadSalaryResponse, error)
}

// SalaryDocumentHandler applies salary documents to sessions.
type SalaryDocumentHandler struct {
	uploader SalaryUploader
	logger   *slog.Logger
}

// NewSalaryDocumentHandler wires dependencies.
func NewSalaryDocumentHandler(uploader SalaryUploader, logger *slog.Logger) *SalaryDocumentHandler {
	return &SalaryDocumentHandler{uploader: uploader, logger: logger}
}

// Handle is a pkgkafka.Handler. Messages that can never succeed are logged
// and acknowledged; anything else is returned so the offset is not committed.
func (h *SalaryDocumentHandler) Handle(ctx context.Context, msg pkgkafka.Message) error {
	var doc SalaryDocument
	if err := json.Unmarshal(msg.Value, &doc); err != nil {
		h.logger.WarnContext(ctx, "dropping malformed salary document", "error", err)
		return nil
	}

	resp, err := h.uploader.Execute(ctx, dto.UploadSalaryRequest{
		SessionID:     doc.SessionID,
		MonthlySalary: doc.MonthlySalary,
		Filename:      doc.Filename,
		ContentType:   doc.ContentType,
		SizeBytes:     doc.SizeBytes,
	})
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrInvariantViolation):
		h.logger.WarnContext(ctx, "dropping salary document",
			"session_id", doc.SessionID,
			"kind", apperr.Kind(err),
			"error", err,
		)
		return nil
	case err != nil:
		return fmt.Errorf("apply salary document for session %s: %w", doc.SessionID, err)
	}

	h.logger.InfoContext(ctx, "salary document applied", "session_id", resp.SessionID, "customer_id", resp.CustomerID)
	return nil
}
