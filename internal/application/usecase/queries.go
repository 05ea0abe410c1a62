package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/port"
	"github.com/bibbank/origination/internal/domain/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func listLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	default:
		return n
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// GetSessionUseCase retrieves a session with its turns and audit log.
type GetSessionUseCase struct {
	sessions port.SessionRepository
}

// NewGetSessionUseCase wires dependencies.
func NewGetSessionUseCase(sessions port.SessionRepository) *GetSessionUseCase {
	return &GetSessionUseCase{sessions: sessions}
}

// Execute loads the session.
func (uc *GetSessionUseCase) Execute(ctx context.Context, req dto.GetSessionRequest) (dto.SessionResponse, error) {
	if req.SessionID == "" {
		return dto.SessionResponse{}, apperr.Validationf("session ID is required")
	}
	s, err := uc.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		return dto.SessionResponse{}, fmt.Errorf("find session: %w", err)
	}
	return toSessionResponse(s), nil
}

// ListSessionsUseCase lists recent sessions, newest first.
type ListSessionsUseCase struct {
	sessions port.SessionRepository
}

// NewListSessionsUseCase wires dependencies.
func NewListSessionsUseCase(sessions port.SessionRepository) *ListSessionsUseCase {
	return &ListSessionsUseCase{sessions: sessions}
}

// Execute returns session summaries.
func (uc *ListSessionsUseCase) Execute(ctx context.Context, req dto.ListRequest) (dto.ListSessionsResponse, error) {
	sessions, err := uc.sessions.List(ctx, listLimit(req.Limit))
	if err != nil {
		return dto.ListSessionsResponse{}, fmt.Errorf("list sessions: %w", err)
	}
	resp := dto.ListSessionsResponse{
		TotalSessions: len(sessions),
		Sessions:      make([]dto.SessionSummary, 0, len(sessions)),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, dto.SessionSummary{
			SessionID:     s.ID(),
			CustomerID:    s.CustomerID(),
			Status:        s.Status().String(),
			Step:          s.Step().String(),
			MessageCount:  len(s.Turns()),
			AuditLogCount: len(s.AuditLog()),
			CreatedAt:     s.CreatedAt(),
			UpdatedAt:     s.UpdatedAt(),
		})
	}
	return resp, nil
}

func toSessionResponse(s model.Session) dto.SessionResponse {
	turns := make([]dto.TurnResponse, 0, len(s.Turns()))
	for _, t := range s.Turns() {
		turns = append(turns, dto.TurnResponse{Role: string(t.Role), Content: t.Content, Timestamp: t.At})
	}
	audit := make([]dto.AuditEntryResponse, 0, len(s.AuditLog()))
	for _, a := range s.AuditLog() {
		audit = append(audit, dto.AuditEntryResponse{Action: a.Action, Timestamp: a.At, Details: a.Details})
	}
	amount, ok := s.RequestedAmount()
	resp := dto.SessionResponse{
		SessionID:         s.ID(),
		CustomerID:        s.CustomerID(),
		Step:              s.Step().String(),
		Status:            s.Status().String(),
		TenureMonths:      s.TenureMonths(),
		KYCVerified:       s.KYCVerified(),
		CreditCheckDone:   s.CreditCheckDone(),
		SalaryUploaded:    s.SalaryUploaded(),
		SanctionGenerated: s.SanctionGenerated(),
		SanctionID:        s.SanctionID(),
		Turns:             turns,
		AuditLog:          audit,
		Version:           s.Version(),
		CreatedAt:         s.CreatedAt(),
		UpdatedAt:         s.UpdatedAt(),
	}
	resp.RequestedAmount.Decimal, resp.RequestedAmount.Valid = amount, ok
	return resp
}

// ---------------------------------------------------------------------------
// Sanctions
// ---------------------------------------------------------------------------

// GetSanctionUseCase retrieves a sanction.
type GetSanctionUseCase struct {
	sanctions port.SanctionRepository
}

// NewGetSanctionUseCase wires dependencies.
func NewGetSanctionUseCase(sanctions port.SanctionRepository) *GetSanctionUseCase {
	return &GetSanctionUseCase{sanctions: sanctions}
}

// Execute loads the sanction.
func (uc *GetSanctionUseCase) Execute(ctx context.Context, req dto.GetSanctionRequest) (dto.SanctionResponse, error) {
	if req.SanctionID == "" {
		return dto.SanctionResponse{}, apperr.Validationf("sanction ID is required")
	}
	s, err := uc.sanctions.FindByID(ctx, req.SanctionID)
	if err != nil {
		return dto.SanctionResponse{}, fmt.Errorf("find sanction: %w", err)
	}
	return toSanctionResponse(s), nil
}

// ListSanctionsUseCase lists recent sanctions, newest first.
type ListSanctionsUseCase struct {
	sanctions port.SanctionRepository
}

// NewListSanctionsUseCase wires dependencies.
func NewListSanctionsUseCase(sanctions port.SanctionRepository) *ListSanctionsUseCase {
	return &ListSanctionsUseCase{sanctions: sanctions}
}

// Execute returns the sanctions.
func (uc *ListSanctionsUseCase) Execute(ctx context.Context, req dto.ListRequest) (dto.ListSanctionsResponse, error) {
	sanctions, err := uc.sanctions.List(ctx, listLimit(req.Limit))
	if err != nil {
		return dto.ListSanctionsResponse{}, fmt.Errorf("list sanctions: %w", err)
	}
	resp := dto.ListSanctionsResponse{
		Total:     len(sanctions),
		Sanctions: make([]dto.SanctionResponse, 0, len(sanctions)),
	}
	for _, s := range sanctions {
		resp.Sanctions = append(resp.Sanctions, toSanctionResponse(s))
	}
	return resp, nil
}

// DownloadSanctionUseCase returns a sanction letter and marks it downloaded.
type DownloadSanctionUseCase struct {
	sanctions port.SanctionRepository
	documents port.DocumentStore
}

// NewDownloadSanctionUseCase wires dependencies.
func NewDownloadSanctionUseCase(sanctions port.SanctionRepository, documents port.DocumentStore) *DownloadSanctionUseCase {
	return &DownloadSanctionUseCase{sanctions: sanctions, documents: documents}
}

// Execute reads the rendered letter. Only the first download changes the
// sanction's status.
func (uc *DownloadSanctionUseCase) Execute(ctx context.Context, req dto.GetSanctionRequest) (dto.DownloadSanctionResponse, error) {
	if req.SanctionID == "" {
		return dto.DownloadSanctionResponse{}, apperr.Validationf("sanction ID is required")
	}
	sanction, err := uc.sanctions.FindByID(ctx, req.SanctionID)
	if err != nil {
		return dto.DownloadSanctionResponse{}, fmt.Errorf("find sanction: %w", err)
	}

	content, err := uc.documents.Open(ctx, sanction.DocumentRef())
	if err != nil {
		return dto.DownloadSanctionResponse{}, fmt.Errorf("open sanction letter: %w", err)
	}

	updated, changed, err := sanction.MarkDownloaded(time.Now().UTC())
	if err != nil {
		return dto.DownloadSanctionResponse{}, err
	}
	if changed {
		if err := uc.sanctions.UpdateStatus(ctx, updated); err != nil {
			return dto.DownloadSanctionResponse{}, fmt.Errorf("mark sanction downloaded: %w", err)
		}
	}

	return dto.DownloadSanctionResponse{
		SanctionID:  sanction.ID(),
		Filename:    fmt.Sprintf("Sanction_Letter_%s.pdf", sanction.ID()),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

// ---------------------------------------------------------------------------
// Offers
// ---------------------------------------------------------------------------

// GetOffersUseCase quotes a customer's pre-approved limit.
type GetOffersUseCase struct {
	customers port.CustomerRepository
	bureau    port.CreditBureauClient
}

// NewGetOffersUseCase wires dependencies.
func NewGetOffersUseCase(customers port.CustomerRepository, bureau port.CreditBureauClient) *GetOffersUseCase {
	return &GetOffersUseCase{customers: customers, bureau: bureau}
}

// Execute returns the 12, 24 and 36 month quotes.
func (uc *GetOffersUseCase) Execute(ctx context.Context, req dto.GetOffersRequest) (dto.OffersResponse, error) {
	if req.CustomerID == "" {
		return dto.OffersResponse{}, apperr.Validationf("customer ID is required")
	}
	customer, err := uc.customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		return dto.OffersResponse{}, fmt.Errorf("find customer: %w", err)
	}
	score, err := uc.bureau.GetCreditScore(ctx, customer.ID())
	if err != nil {
		return dto.OffersResponse{}, fmt.Errorf("fetch credit score: %w", err)
	}

	offers := service.PreapprovedOffers(score, customer.PreApprovedLimit())
	resp := dto.OffersResponse{
		CustomerID:       customer.ID(),
		PreApprovedLimit: customer.PreApprovedLimit(),
		Offers:           make([]dto.OfferResponse, 0, len(offers)),
	}
	for _, o := range offers {
		resp.Offers = append(resp.Offers, dto.OfferResponse{
			TenureMonths: o.TenureMonths,
			InterestRate: o.InterestRate,
			MaxAmount:    o.MaxAmount,
			EMI:          o.EMI,
		})
	}
	return resp, nil
}

// GetCreditScoreUseCase reads a customer's score through the bureau port.
type GetCreditScoreUseCase struct {
	bureau port.CreditBureauClient
}

// NewGetCreditScoreUseCase wires dependencies.
func NewGetCreditScoreUseCase(bureau port.CreditBureauClient) *GetCreditScoreUseCase {
	return &GetCreditScoreUseCase{bureau: bureau}
}

func (uc *GetCreditScoreUseCase) Execute(ctx context.Context, req dto.GetOffersRequest) (dto.CreditScoreResponse, error) {
	if req.CustomerID == "" {
		return dto.CreditScoreResponse{}, apperr.Validationf("customer ID is required")
	}
	score, err := uc.bureau.GetCreditScore(ctx, req.CustomerID)
	if err != nil {
		return dto.CreditScoreResponse{}, fmt.Errorf("fetch credit score: %w", err)
	}
	return dto.CreditScoreResponse{CustomerID: req.CustomerID, CreditScore: score}, nil
}
