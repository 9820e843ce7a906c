package ledgerrpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestFile_DescribesService(t *testing.T) {
	assert.Equal(t, FileName, File.Path())
	assert.Equal(t, protoreflect.FullName("ledger.v1"), File.Package())

	svc := File.Services().ByName("LedgerService")
	require.NotNil(t, svc)
	assert.Equal(t, protoreflect.FullName(ServiceName), svc.FullName())
	require.Equal(t, len(ServiceDesc.Methods), svc.Methods().Len())

	transfer := svc.Methods().ByName("Transfer")
	require.NotNil(t, transfer)
	assert.Equal(t, protoreflect.FullName("ledger.v1.TransferRequest"), transfer.Input().FullName())
	assert.Equal(t, protoreflect.FullName("ledger.v1.TransferResponse"), transfer.Output().FullName())

	entries := File.Messages().ByName("ListEntriesResponse").Fields().ByName("entries")
	assert.True(t, entries.IsList())
	assert.Equal(t, protoreflect.FullName("ledger.v1.Entry"), entries.Message().FullName())

	createdAt := File.Messages().ByName("Entry").Fields().ByNumber(8)
	assert.Equal(t, protoreflect.FullName("google.protobuf.Timestamp"), createdAt.Message().FullName())

	// reflection 服務從 GlobalFiles 查得到
	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(protoreflect.FullName(ServiceName))
	require.NoError(t, err)
	assert.Equal(t, FileName, desc.ParentFile().Path())
}

func TestCodec_RoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	in := &ListEntriesResponse{
		AccountID: "acc-1",
		Entries: []Entry{
			{ID: "e1", AccountID: "acc-1", Kind: "deposit", Amount: 1000, ExternalRef: "ext-1", GroupID: "g1", CreatedAt: created},
			{ID: "e2", AccountID: "acc-1", Kind: "transfer_out", Amount: 400, CounterpartyAccountID: "acc-2", GroupID: "g2", CreatedAt: created.Add(time.Second)},
		},
	}

	raw, err := Codec.Marshal(in)
	require.NoError(t, err)
	var out ListEntriesResponse
	require.NoError(t, Codec.Unmarshal(raw, &out))
	assert.Equal(t, *in, out)

	audit := &AuditResponse{
		OK:               false,
		Accounts:         3,
		Entries:          12,
		Mismatches:       []AuditMismatch{{AccountID: "acc-9", StoredBalance: 10, ReplayedBalance: -5}},
		UnbalancedGroups: []string{"g7", "g8"},
	}
	raw, err = Codec.Marshal(audit)
	require.NoError(t, err)
	var gotAudit AuditResponse
	require.NoError(t, Codec.Unmarshal(raw, &gotAudit))
	assert.Equal(t, *audit, gotAudit)

	// 空訊息編成 0 bytes
	raw, err = Codec.Marshal(&CreateAccountRequest{})
	require.NoError(t, err)
	assert.Empty(t, raw)
	require.NoError(t, Codec.Unmarshal(raw, &CreateAccountRequest{}))
}

func TestCodec_WireIsStandardProtobuf(t *testing.T) {
	md := File.Messages().ByName("TransferRequest")

	// 本 package 編碼 → 任何 protobuf 實作都能依描述解開
	raw, err := Codec.Marshal(&TransferRequest{FromAccountID: "a", ToAccountID: "b", Amount: 250})
	require.NoError(t, err)
	msg := dynamicpb.NewMessage(md)
	require.NoError(t, proto.Unmarshal(raw, msg))
	assert.Equal(t, "a", msg.Get(md.Fields().ByName("from_account_id")).String())
	assert.Equal(t, "b", msg.Get(md.Fields().ByName("to_account_id")).String())
	assert.Equal(t, int64(250), msg.Get(md.Fields().ByName("amount")).Int())

	// 反方向：外部以描述編碼的訊息可以解回 Go struct
	resp := File.Messages().ByName("GetBalanceResponse")
	ext := dynamicpb.NewMessage(resp)
	ext.Set(resp.Fields().ByName("account_id"), protoreflect.ValueOfString("acc-1"))
	ext.Set(resp.Fields().ByName("balance"), protoreflect.ValueOfInt64(-1))
	ext.Set(resp.Fields().ByName("version"), protoreflect.ValueOfInt64(7))
	raw, err = proto.Marshal(ext)
	require.NoError(t, err)

	var got GetBalanceResponse
	require.NoError(t, Codec.Unmarshal(raw, &got))
	assert.Equal(t, GetBalanceResponse{AccountID: "acc-1", Balance: -1, Version: 7}, got)
}

func TestCodec_PassesThroughProtoMessages(t *testing.T) {
	ts := timestamppb.New(time.Unix(1700000000, 5))
	raw, err := Codec.Marshal(ts)
	require.NoError(t, err)

	var got timestamppb.Timestamp
	require.NoError(t, Codec.Unmarshal(raw, &got))
	assert.True(t, proto.Equal(ts, &got))
}

func TestCodec_RejectsUnknownTypes(t *testing.T) {
	_, err := Codec.Marshal(42)
	assert.Error(t, err)

	type notAMessage struct {
		Name string `protobuf:"bytes,1,opt,name=name"`
	}
	_, err = Codec.Marshal(&notAMessage{Name: "x"})
	assert.Error(t, err)

	assert.Error(t, Codec.Unmarshal(nil, GetBalanceRequest{}))
}

func TestParseTag(t *testing.T) {
	f, err := parseTag("bytes,2,rep,name=entries")
	require.NoError(t, err)
	assert.Equal(t, protoreflect.FieldNumber(2), f.number)
	assert.Equal(t, "entries", f.name)
	assert.True(t, f.repeated)

	for _, bad := range []string{"bytes,1", "bytes,x,opt,name=a", "bytes,0,opt,name=a", "bytes,1,opt,json=a"} {
		_, err := parseTag(bad)
		assert.Error(t, err, bad)
	}
}
