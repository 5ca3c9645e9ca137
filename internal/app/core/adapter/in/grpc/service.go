package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpcx "github.com/JoeShih716/go-credit-ledger/pkg/grpc"
)

// ServiceName gRPC 服務全名
const ServiceName = "ledger.v1.LedgerService"

const (
	applyTransactionMethod = "/" + ServiceName + "/ApplyTransaction"
	getStatementMethod     = "/" + ServiceName + "/GetStatement"
)

// LedgerServiceServer 是 ledger.v1.LedgerService 的伺服器端介面
type LedgerServiceServer interface {
	ApplyTransaction(ctx context.Context, req *ApplyTransactionRequest) (*ApplyTransactionResponse, error)
	GetStatement(ctx context.Context, req *GetStatementRequest) (*GetStatementResponse, error)
}

// LedgerServiceDesc 手寫的 ServiceDesc，訊息由 JSON codec 編解碼
var LedgerServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "ApplyTransaction", Handler: applyTransactionHandler},
		{MethodName: "GetStatement", Handler: getStatementHandler},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "ledger/v1/ledger",
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s gogrpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

func applyTransactionHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(ApplyTransactionRequest)
	if err := dec(in); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request body")
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).ApplyTransaction(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: applyTransactionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).ApplyTransaction(ctx, req.(*ApplyTransactionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatementHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatementRequest)
	if err := dec(in); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request body")
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetStatement(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: getStatementMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).GetStatement(ctx, req.(*GetStatementRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// LedgerServiceClient 是 ledger.v1.LedgerService 的客戶端
type LedgerServiceClient struct {
	cc gogrpc.ClientConnInterface
}

func NewLedgerServiceClient(cc gogrpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

func (c *LedgerServiceClient) ApplyTransaction(ctx context.Context, in *ApplyTransactionRequest, opts ...gogrpc.CallOption) (*ApplyTransactionResponse, error) {
	out := new(ApplyTransactionResponse)
	opts = append([]gogrpc.CallOption{gogrpc.CallContentSubtype(grpcx.CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, applyTransactionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerServiceClient) GetStatement(ctx context.Context, in *GetStatementRequest, opts ...gogrpc.CallOption) (*GetStatementResponse, error) {
	out := new(GetStatementResponse)
	opts = append([]gogrpc.CallOption{gogrpc.CallContentSubtype(grpcx.CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, getStatementMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
