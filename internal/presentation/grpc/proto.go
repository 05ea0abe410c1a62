package grpc

// proto.go is a stand-in for buf-generated code of
// origination/v1/origination.proto. Messages are the application dto types,
// serialised by the JSON codec.

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bibbank/origination/internal/application/dto"
)

const serviceName = "origination.v1.OriginationService"

// OriginationServiceServer is the server API for OriginationService.
type OriginationServiceServer interface {
	Chat(context.Context, *dto.ChatRequest) (*dto.ChatResponse, error)
	VerifyKYC(context.Context, *dto.VerifyKYCRequest) (*dto.VerifyKYCResponse, error)
	RunUnderwriting(context.Context, *dto.RunUnderwritingRequest) (*dto.DecisionResponse, error)
	GenerateSanction(context.Context, *dto.GenerateSanctionRequest) (*dto.SanctionResponse, error)
	UploadSalary(context.Context, *dto.UploadSalaryRequest) (*dto.UploadSalaryResponse, error)
	GetOffers(context.Context, *dto.GetOffersRequest) (*dto.OffersResponse, error)
	GetCreditScore(context.Context, *dto.GetOffersRequest) (*dto.CreditScoreResponse, error)
	GetSession(context.Context, *dto.GetSessionRequest) (*dto.SessionResponse, error)
	ListSessions(context.Context, *dto.ListRequest) (*dto.ListSessionsResponse, error)
	GetSanction(context.Context, *dto.GetSanctionRequest) (*dto.SanctionResponse, error)
	ListSanctions(context.Context, *dto.ListRequest) (*dto.ListSanctionsResponse, error)
	DownloadSanction(context.Context, *dto.GetSanctionRequest) (*dto.DownloadSanctionResponse, error)
	mustEmbedUnimplementedOriginationServiceServer()
}

// UnimplementedOriginationServiceServer provides forward-compatible default implementations.
type UnimplementedOriginationServiceServer struct{}

func (UnimplementedOriginationServiceServer) Chat(context.Context, *dto.ChatRequest) (*dto.ChatResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Chat not implemented")
}
func (UnimplementedOriginationServiceServer) VerifyKYC(context.Context, *dto.VerifyKYCRequest) (*dto.VerifyKYCResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method VerifyKYC not implemented")
}
func (UnimplementedOriginationServiceServer) RunUnderwriting(context.Context, *dto.RunUnderwritingRequest) (*dto.DecisionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RunUnderwriting not implemented")
}
func (UnimplementedOriginationServiceServer) GenerateSanction(context.Context, *dto.GenerateSanctionRequest) (*dto.SanctionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GenerateSanction not implemented")
}
func (UnimplementedOriginationServiceServer) UploadSalary(context.Context, *dto.UploadSalaryRequest) (*dto.UploadSalaryResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method UploadSalary not implemented")
}
func (UnimplementedOriginationServiceServer) GetOffers(context.Context, *dto.GetOffersRequest) (*dto.OffersResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetOffers not implemented")
}
func (UnimplementedOriginationServiceServer) GetCreditScore(context.Context, *dto.GetOffersRequest) (*dto.CreditScoreResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetCreditScore not implemented")
}
func (UnimplementedOriginationServiceServer) GetSession(context.Context, *dto.GetSessionRequest) (*dto.SessionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetSession not implemented")
}
func (UnimplementedOriginationServiceServer) ListSessions(context.Context, *dto.ListRequest) (*dto.ListSessionsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListSessions not implemented")
}
func (UnimplementedOriginationServiceServer) GetSanction(context.Context, *dto.GetSanctionRequest) (*dto.SanctionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetSanction not implemented")
}
func (UnimplementedOriginationServiceServer) ListSanctions(context.Context, *dto.ListRequest) (*dto.ListSanctionsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListSanctions not implemented")
}
func (UnimplementedOriginationServiceServer) DownloadSanction(context.Context, *dto.GetSanctionRequest) (*dto.DownloadSanctionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DownloadSanction not implemented")
}
func (UnimplementedOriginationServiceServer) mustEmbedUnimplementedOriginationServiceServer() {}

// RegisterOriginationServiceServer registers srv with the gRPC server.
func RegisterOriginationServiceServer(s grpclib.ServiceRegistrar, srv OriginationServiceServer) {
	s.RegisterService(&originationServiceDesc, srv)
}

var originationServiceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OriginationServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		{MethodName: "Chat", Handler: unary("Chat", OriginationServiceServer.Chat)},
		{MethodName: "VerifyKYC", Handler: unary("VerifyKYC", OriginationServiceServer.VerifyKYC)},
		{MethodName: "RunUnderwriting", Handler: unary("RunUnderwriting", OriginationServiceServer.RunUnderwriting)},
		{MethodName: "GenerateSanction", Handler: unary("GenerateSanction", OriginationServiceServer.GenerateSanction)},
		{MethodName: "UploadSalary", Handler: unary("UploadSalary", OriginationServiceServer.UploadSalary)},
		{MethodName: "GetOffers", Handler: unary("GetOffers", OriginationServiceServer.GetOffers)},
		{MethodName: "GetCreditScore", Handler: unary("GetCreditScore", OriginationServiceServer.GetCreditScore)},
		{MethodName: "GetSession", Handler: unary("GetSession", OriginationServiceServer.GetSession)},
		{MethodName: "ListSessions", Handler: unary("ListSessions", OriginationServiceServer.ListSessions)},
		{MethodName: "GetSanction", Handler: unary("GetSanction", OriginationServiceServer.GetSanction)},
		{MethodName: "ListSanctions", Handler: unary("ListSanctions", OriginationServiceServer.ListSanctions)},
		{MethodName: "DownloadSanction", Handler: unary("DownloadSanction", OriginationServiceServer.DownloadSanction)},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "origination/v1/origination.proto",
}

// FullMethod returns the gRPC method path of an OriginationService method.
func FullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unary adapts a typed server method to the generic handler signature the
// service descriptor expects.
func unary[Req, Resp any](
	method string,
	call func(OriginationServiceServer, context.Context, *Req) (*Resp, error),
) grpclib.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OriginationServiceServer), ctx, in)
		}
		info := &grpclib.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OriginationServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
