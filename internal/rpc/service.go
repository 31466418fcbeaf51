package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "blockguardian.v1.Ledger"

// LedgerServer is the server-side interface for the Ledger gRPC service.
type LedgerServer interface {
	StoreProof(context.Context, *StoreProofRequest) (*model.ProofReceipt, error)
	QueryRecords(context.Context, *QueryRecordsRequest) (*QueryRecordsResponse, error)
	FindByCommitment(context.Context, *FindByCommitmentRequest) (*FindByCommitmentResponse, error)
	GetRecord(context.Context, *GetRecordRequest) (*ledger.Account, error)
	SendMessage(context.Context, *SendMessageRequest) (*model.Receipt, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	VerifyInclusion(context.Context, *VerifyInclusionRequest) (*service.VerifyResult, error)
}

// RegisterLedgerServer registers srv on a gRPC server.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler, running the
// server's interceptor chain when one is installed.
func unary[Req, Resp any](name string, call func(LedgerServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, r any) (any, error) {
				return call(srv.(LedgerServer), ctx, r.(*Req))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, method)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StoreProof", LedgerServer.StoreProof),
		unary("QueryRecords", LedgerServer.QueryRecords),
		unary("FindByCommitment", LedgerServer.FindByCommitment),
		unary("GetRecord", LedgerServer.GetRecord),
		unary("SendMessage", LedgerServer.SendMessage),
		unary("ListMessages", LedgerServer.ListMessages),
		unary("VerifyInclusion", LedgerServer.VerifyInclusion),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "blockguardian/v1/ledger.json",
}
