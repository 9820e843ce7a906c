package ledgerrpc

import "time"

// 金額一律為最小貨幣單位 (int64)，*Display 欄位只供顯示
//
// protobuf tag 同時決定 ledger/v1/ledger.proto 的描述 (見 descriptor.go)：
// 欄位編號一經發布就不能更動，新增欄位只能往後加號碼。

type CreateAccountRequest struct{}

type CreateAccountResponse struct {
	AccountID string    `protobuf:"bytes,1,opt,name=account_id"`
	CreatedAt time.Time `protobuf:"bytes,2,opt,name=created_at"`
}

type GetBalanceRequest struct {
	AccountID string `protobuf:"bytes,1,opt,name=account_id"`
}

type GetBalanceResponse struct {
	AccountID      string `protobuf:"bytes,1,opt,name=account_id"`
	Balance        int64  `protobuf:"varint,2,opt,name=balance"`
	BalanceDisplay string `protobuf:"bytes,3,opt,name=balance_display"`
	Version        int64  `protobuf:"varint,4,opt,name=version"`
}

type TransferRequest struct {
	FromAccountID string `protobuf:"bytes,1,opt,name=from_account_id"`
	ToAccountID   string `protobuf:"bytes,2,opt,name=to_account_id"`
	Amount        int64  `protobuf:"varint,3,opt,name=amount"`
}

// TransferResponse 業務錯誤回傳 Success=false + Code (Soft Failure)
type TransferResponse struct {
	Success     bool   `protobuf:"varint,1,opt,name=success"`
	Code        string `protobuf:"bytes,2,opt,name=code"`
	Message     string `protobuf:"bytes,3,opt,name=message"`
	GroupID     string `protobuf:"bytes,4,opt,name=group_id"`
	FromBalance int64  `protobuf:"varint,5,opt,name=from_balance"`
	ToBalance   int64  `protobuf:"varint,6,opt,name=to_balance"`
}

type ApplyExternalPaymentRequest struct {
	ExternalRef string `protobuf:"bytes,1,opt,name=external_ref"`
	AccountID   string `protobuf:"bytes,2,opt,name=account_id"`
	Amount      int64  `protobuf:"varint,3,opt,name=amount"`
}

type ApplyExternalPaymentResponse struct {
	Success bool   `protobuf:"varint,1,opt,name=success"`
	Code    string `protobuf:"bytes,2,opt,name=code"`
	Message string `protobuf:"bytes,3,opt,name=message"`
	// Status "applied" 或 "already_applied"
	Status  string `protobuf:"bytes,4,opt,name=status"`
	EntryID string `protobuf:"bytes,5,opt,name=entry_id"`
	Balance int64  `protobuf:"varint,6,opt,name=balance"`
}

type ListEntriesRequest struct {
	AccountID string `protobuf:"bytes,1,opt,name=account_id"`
}

type Entry struct {
	ID                    string    `protobuf:"bytes,1,opt,name=id"`
	AccountID             string    `protobuf:"bytes,2,opt,name=account_id"`
	Kind                  string    `protobuf:"bytes,3,opt,name=kind"`
	Amount                int64     `protobuf:"varint,4,opt,name=amount"`
	CounterpartyAccountID string    `protobuf:"bytes,5,opt,name=counterparty_account_id"`
	ExternalRef           string    `protobuf:"bytes,6,opt,name=external_ref"`
	GroupID               string    `protobuf:"bytes,7,opt,name=group_id"`
	CreatedAt             time.Time `protobuf:"bytes,8,opt,name=created_at"`
}

type ListEntriesResponse struct {
	AccountID string  `protobuf:"bytes,1,opt,name=account_id"`
	Entries   []Entry `protobuf:"bytes,2,rep,name=entries"`
}

// AuditRequest AccountID 為空時稽核全部帳戶
type AuditRequest struct {
	AccountID string `protobuf:"bytes,1,opt,name=account_id"`
}

type AuditMismatch struct {
	AccountID       string `protobuf:"bytes,1,opt,name=account_id"`
	StoredBalance   int64  `protobuf:"varint,2,opt,name=stored_balance"`
	ReplayedBalance int64  `protobuf:"varint,3,opt,name=replayed_balance"`
}

type AuditResponse struct {
	OK               bool            `protobuf:"varint,1,opt,name=ok"`
	Accounts         int             `protobuf:"varint,2,opt,name=accounts"`
	Entries          int             `protobuf:"varint,3,opt,name=entries"`
	Mismatches       []AuditMismatch `protobuf:"bytes,4,rep,name=mismatches"`
	UnbalancedGroups []string        `protobuf:"bytes,5,rep,name=unbalanced_groups"`
}
