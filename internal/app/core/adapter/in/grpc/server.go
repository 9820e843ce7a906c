package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/ledgerrpc"
)

type GrpcServer struct {
	core   *usecase.CoreUseCase
	logger *zap.Logger
	srv    *grpc.Server
	addr   string
}

func NewGrpcServer(addr string, core *usecase.CoreUseCase, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GrpcServer{
		core:   core,
		logger: logger,
		addr:   addr,
	}
	s.srv = grpc.NewServer(
		ledgerrpc.ServerOption(),
		grpc.ChainUnaryInterceptor(s.logInterceptor),
	)
	ledgerrpc.RegisterLedgerServiceServer(s.srv, s)
	reflection.Register(s.srv) // 方便 grpcurl / Postman 直接查詢服務定義
	return s
}

// Start 監聽 addr 並阻塞直到 Stop
func (s *GrpcServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve 使用指定的 listener (測試時傳入 bufconn)
func (s *GrpcServer) Serve(lis net.Listener) error {
	s.logger.Info("starting gRPC server", zap.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

func (s *GrpcServer) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}

func (s *GrpcServer) CreateAccount(ctx context.Context, req *ledgerrpc.CreateAccountRequest) (*ledgerrpc.CreateAccountResponse, error) {
	account, err := s.core.CreateAccount(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ledgerrpc.CreateAccountResponse{
		AccountID: account.ID,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *ledgerrpc.GetBalanceRequest) (*ledgerrpc.GetBalanceResponse, error) {
	account, err := s.core.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ledgerrpc.GetBalanceResponse{
		AccountID:      account.ID,
		Balance:        account.Balance,
		BalanceDisplay: domain.FormatMinor(account.Balance),
		Version:        account.Version,
	}, nil
}

func (s *GrpcServer) Transfer(ctx context.Context, req *ledgerrpc.TransferRequest) (*ledgerrpc.TransferResponse, error) {
	receipt, err := s.core.Transfer(ctx, req.FromAccountID, req.ToAccountID, req.Amount)
	if err != nil {
		if hardFailure(err) {
			return nil, toStatus(err)
		}
		// 業務邏輯錯誤，回傳 Success=false (Soft Failure)
		return &ledgerrpc.TransferResponse{
			Success: false,
			Code:    domain.ErrorCode(err),
			Message: err.Error(),
		}, nil
	}
	return &ledgerrpc.TransferResponse{
		Success:     true,
		GroupID:     receipt.GroupID,
		FromBalance: receipt.FromBalance,
		ToBalance:   receipt.ToBalance,
	}, nil
}

func (s *GrpcServer) ApplyExternalPayment(ctx context.Context, req *ledgerrpc.ApplyExternalPaymentRequest) (*ledgerrpc.ApplyExternalPaymentResponse, error) {
	result, err := s.core.ApplyExternalPayment(ctx, req.ExternalRef, req.AccountID, req.Amount)
	if err != nil {
		if hardFailure(err) {
			return nil, toStatus(err)
		}
		return &ledgerrpc.ApplyExternalPaymentResponse{
			Success: false,
			Code:    domain.ErrorCode(err),
			Message: err.Error(),
		}, nil
	}
	return &ledgerrpc.ApplyExternalPaymentResponse{
		Success: true,
		Status:  string(result.Status),
		EntryID: result.EntryID,
		Balance: result.Balance,
	}, nil
}

func (s *GrpcServer) ListEntries(ctx context.Context, req *ledgerrpc.ListEntriesRequest) (*ledgerrpc.ListEntriesResponse, error) {
	entries, err := s.core.ListEntries(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ledgerrpc.ListEntriesResponse{
		AccountID: req.AccountID,
		Entries:   make([]ledgerrpc.Entry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, ledgerrpc.Entry{
			ID:                    e.ID,
			AccountID:             e.AccountID,
			Kind:                  string(e.Kind),
			Amount:                e.Amount,
			CounterpartyAccountID: e.CounterpartyAccountID,
			ExternalRef:           e.ExternalRef,
			GroupID:               e.GroupID,
			CreatedAt:             e.CreatedAt,
		})
	}
	return resp, nil
}

func (s *GrpcServer) Audit(ctx context.Context, req *ledgerrpc.AuditRequest) (*ledgerrpc.AuditResponse, error) {
	report, err := s.core.Audit(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ledgerrpc.AuditResponse{
		OK:               report.OK(),
		Accounts:         report.Accounts,
		Entries:          report.Entries,
		UnbalancedGroups: report.UnbalancedGroups,
	}
	for _, m := range report.Mismatches {
		resp.Mismatches = append(resp.Mismatches, ledgerrpc.AuditMismatch{
			AccountID:       m.AccountID,
			StoredBalance:   m.StoredBalance,
			ReplayedBalance: m.ReplayedBalance,
		})
	}
	return resp, nil
}

// hardFailure 儲存層不可用或未知錯誤不屬於業務結果，改用 gRPC status 回傳
func hardFailure(err error) bool {
	return errors.Is(err, domain.ErrStorageUnavailable) || domain.ErrorCode(err) == "INTERNAL"
}

// toStatus domain 錯誤轉 gRPC status；儲存層的原始錯誤訊息不往外傳
func toStatus(err error) error {
	code := domain.ErrorCode(err)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, err.Error())
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsTransient(err):
		return status.Error(codes.Unavailable, code)
	default:
		return status.Error(codes.Internal, code)
	}
}

func (s *GrpcServer) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		st, _ := status.FromError(err)
		fields = append(fields, zap.String("code", st.Code().String()))
		if st.Code() == codes.Internal || st.Code() == codes.Unavailable {
			s.logger.Warn("rpc failed", fields...)
		} else {
			s.logger.Debug("rpc rejected", fields...)
		}
		return resp, err
	}
	s.logger.Debug("rpc handled", fields...)
	return resp, nil
}

var _ ledgerrpc.LedgerServiceServer = (*GrpcServer)(nil)
