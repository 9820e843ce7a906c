package ledgerrpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceShortName = "LedgerService"
	ServiceName      = packageName + "." + serviceShortName
)

// Full method names
const (
	MethodCreateAccount        = "/" + ServiceName + "/CreateAccount"
	MethodGetBalance           = "/" + ServiceName + "/GetBalance"
	MethodTransfer             = "/" + ServiceName + "/Transfer"
	MethodApplyExternalPayment = "/" + ServiceName + "/ApplyExternalPayment"
	MethodListEntries          = "/" + ServiceName + "/ListEntries"
	MethodAudit                = "/" + ServiceName + "/Audit"
)

// LedgerServiceServer 伺服器端要實作的介面
type LedgerServiceServer interface {
	CreateAccount(context.Context, *CreateAccountRequest) (*CreateAccountResponse, error)
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error)
	Transfer(context.Context, *TransferRequest) (*TransferResponse, error)
	ApplyExternalPayment(context.Context, *ApplyExternalPaymentRequest) (*ApplyExternalPaymentResponse, error)
	ListEntries(context.Context, *ListEntriesRequest) (*ListEntriesResponse, error)
	Audit(context.Context, *AuditRequest) (*AuditResponse, error)
}

// ServiceDesc 手寫的 grpc.ServiceDesc，等同 protoc-gen-go-grpc 產生的內容。
// 伺服器需要以 ServerOption() 建立，請求才會以 Codec 解碼
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateAccount", Handler: unaryHandler(MethodCreateAccount, LedgerServiceServer.CreateAccount)},
		{MethodName: "GetBalance", Handler: unaryHandler(MethodGetBalance, LedgerServiceServer.GetBalance)},
		{MethodName: "Transfer", Handler: unaryHandler(MethodTransfer, LedgerServiceServer.Transfer)},
		{MethodName: "ApplyExternalPayment", Handler: unaryHandler(MethodApplyExternalPayment, LedgerServiceServer.ApplyExternalPayment)},
		{MethodName: "ListEntries", Handler: unaryHandler(MethodListEntries, LedgerServiceServer.ListEntries)},
		{MethodName: "Audit", Handler: unaryHandler(MethodAudit, LedgerServiceServer.Audit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
