package ledgerrpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client LedgerService 的客戶端，所有呼叫都使用 Codec
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*CreateAccountResponse, error) {
	return invoke[CreateAccountResponse](ctx, c.cc, MethodCreateAccount, in, opts)
}

func (c *Client) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error) {
	return invoke[GetBalanceResponse](ctx, c.cc, MethodGetBalance, in, opts)
}

func (c *Client) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c.cc, MethodTransfer, in, opts)
}

func (c *Client) ApplyExternalPayment(ctx context.Context, in *ApplyExternalPaymentRequest, opts ...grpc.CallOption) (*ApplyExternalPaymentResponse, error) {
	return invoke[ApplyExternalPaymentResponse](ctx, c.cc, MethodApplyExternalPayment, in, opts)
}

func (c *Client) ListEntries(ctx context.Context, in *ListEntriesRequest, opts ...grpc.CallOption) (*ListEntriesResponse, error) {
	return invoke[ListEntriesResponse](ctx, c.cc, MethodListEntries, in, opts)
}

func (c *Client) Audit(ctx context.Context, in *AuditRequest, opts ...grpc.CallOption) (*AuditResponse, error) {
	return invoke[AuditResponse](ctx, c.cc, MethodAudit, in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.ForceCodec(Codec)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}
