package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
)

// Service 是 GrpcServer 需要的業務操作，由 usecase.CoreUseCase 實作
type Service interface {
	ApplyTransaction(ctx context.Context, req usecase.TransactionRequest) (domain.Balance, error)
	GetStatement(ctx context.Context, customerID int64) (*domain.Statement, error)
}

type GrpcServer struct {
	core Service
}

func NewGrpcServer(core Service) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

func (s *GrpcServer) ApplyTransaction(ctx context.Context, req *ApplyTransactionRequest) (*ApplyTransactionResponse, error) {
	// 1. 轉換金額與交易類型
	amount, err := domain.AmountFromDecimal(req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	kind, err := domain.ParseTransactionKind(req.Kind)
	if err != nil {
		return nil, toStatus(err)
	}

	// 2. 執行交易
	res, err := s.core.ApplyTransaction(ctx, usecase.TransactionRequest{
		CustomerID:  req.CustomerID,
		Amount:      amount,
		Kind:        kind,
		Description: req.Description,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ApplyTransactionResponse{Limit: res.Limit, Balance: res.Balance}, nil
}

func (s *GrpcServer) GetStatement(ctx context.Context, req *GetStatementRequest) (*GetStatementResponse, error) {
	stmt, err := s.core.GetStatement(ctx, req.CustomerID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &GetStatementResponse{
		Limit:            stmt.Limit,
		Balance:          stmt.Balance,
		AsOf:             stmt.AsOf,
		LastTransactions: make([]StatementEntry, 0, len(stmt.LastTransactions)),
	}
	for _, t := range stmt.LastTransactions {
		resp.LastTransactions = append(resp.LastTransactions, StatementEntry{
			TransactionID: t.TransactionID.String(),
			Sequence:      t.Sequence,
			Amount:        t.Amount,
			Kind:          t.Kind.Code(),
			Description:   t.Description,
			OccurredAt:    t.OccurredAt,
		})
	}
	return resp, nil
}

// toStatus 將 domain 錯誤轉為 gRPC status
func toStatus(err error) error {
	switch {
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrLimitExceeded):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, domain.ErrAccountNotFound.Error())
	case domain.IsRetryable(err):
		return status.Error(codes.Aborted, domain.ErrConflict.Error())
	case errors.Is(err, domain.ErrLedgerClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
