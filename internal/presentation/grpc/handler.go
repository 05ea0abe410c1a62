package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/application/usecase"
	"github.com/bibbank/origination/internal/domain/apperr"
)

// OriginationHandler serves OriginationService from the application use cases.
type OriginationHandler struct {
	UnimplementedOriginationServiceServer
	svc usecase.Services
}

// NewOriginationHandler creates a new handler over svc.
func NewOriginationHandler(svc usecase.Services) *OriginationHandler {
	return &OriginationHandler{svc: svc}
}

func (h *OriginationHandler) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	return respond(h.svc.Chat.Execute(ctx, *req))
}

func (h *OriginationHandler) VerifyKYC(ctx context.Context, req *dto.VerifyKYCRequest) (*dto.VerifyKYCResponse, error) {
	return respond(h.svc.VerifyKYC.Execute(ctx, *req))
}

func (h *OriginationHandler) RunUnderwriting(ctx context.Context, req *dto.RunUnderwritingRequest) (*dto.DecisionResponse, error) {
	return respond(h.svc.RunUnderwriting.Execute(ctx, *req))
}

func (h *OriginationHandler) GenerateSanction(ctx context.Context, req *dto.GenerateSanctionRequest) (*dto.SanctionResponse, error) {
	return respond(h.svc.GenerateSanction.Execute(ctx, *req))
}

func (h *OriginationHandler) UploadSalary(ctx context.Context, req *dto.UploadSalaryRequest) (*dto.UploadSalaryResponse, error) {
	return respond(h.svc.UploadSalary.Execute(ctx, *req))
}

func (h *OriginationHandler) GetOffers(ctx context.Context, req *dto.GetOffersRequest) (*dto.OffersResponse, error) {
	return respond(h.svc.GetOffers.Execute(ctx, *req))
}

func (h *OriginationHandler) GetCreditScore(ctx context.Context, req *dto.GetOffersRequest) (*dto.CreditScoreResponse, error) {
	return respond(h.svc.GetCreditScore.Execute(ctx, *req))
}

func (h *OriginationHandler) GetSession(ctx context.Context, req *dto.GetSessionRequest) (*dto.SessionResponse, error) {
	return respond(h.svc.GetSession.Execute(ctx, *req))
}

func (h *OriginationHandler) ListSessions(ctx context.Context, req *dto.ListRequest) (*dto.ListSessionsResponse, error) {
	return respond(h.svc.ListSessions.Execute(ctx, *req))
}

func (h *OriginationHandler) GetSanction(ctx context.Context, req *dto.GetSanctionRequest) (*dto.SanctionResponse, error) {
	return respond(h.svc.GetSanction.Execute(ctx, *req))
}

func (h *OriginationHandler) ListSanctions(ctx context.Context, req *dto.ListRequest) (*dto.ListSanctionsResponse, error) {
	return respond(h.svc.ListSanctions.Execute(ctx, *req))
}

func (h *OriginationHandler) DownloadSanction(ctx context.Context, req *dto.GetSanctionRequest) (*dto.DownloadSanctionResponse, error) {
	return respond(h.svc.DownloadSanction.Execute(ctx, *req))
}

func respond[T any](resp T, err error) (*T, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

// toStatus maps application error kinds onto gRPC codes. Internal and
// upstream failures carry only the customer-safe message.
func toStatus(err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, apperr.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, apperr.ErrVersionConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, apperr.ErrInvariantViolation):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, apperr.ErrExternalService):
		return status.Error(codes.Unavailable, apperr.UserMessage(err))
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, apperr.UserMessage(err))
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, apperr.UserMessage(err))
	}
}
