package rpc

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// Metadata keys carrying the signer and admin tokens.
const (
	AuthorizationKey = "authorization"
	AdminTokenKey    = "x-admin-token"
)

// Compile-time interface check.
var _ LedgerServer = (*Server)(nil)

// Server implements LedgerServer over the proof and message services.
type Server struct {
	proofs *service.ProofService
	msgs   *service.MessageService
	store  ledger.Store
	health *grpchealth.Server
	logger *zap.Logger
}

// NewServer creates a Server.
func NewServer(proofs *service.ProofService, msgs *service.MessageService, store ledger.Store, logger *zap.Logger) *Server {
	return &Server{
		proofs: proofs,
		msgs:   msgs,
		store:  store,
		health: grpchealth.NewServer(),
		logger: logger,
	}
}

// NewGRPCServer returns a grpc.Server with the logging and recovery
// interceptors installed.
func NewGRPCServer(logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(logger), RecoveryInterceptor(logger)))
	return grpc.NewServer(opts...)
}

// Register adds the Ledger and standard health services to gs.
func (s *Server) Register(gs *grpc.Server) {
	RegisterLedgerServer(gs, s)
	grpc_health_v1.RegisterHealthServer(gs, s.health)
	s.SetServing(true)
}

// SetServing flips the health status reported for the Ledger service.
func (s *Server) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
}

func bearer(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimPrefix(vals[0], "Bearer ")
}

func signerFromContext(ctx context.Context) (identity.PublicKey, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	tok := bearer(md, AuthorizationKey)
	if tok == "" {
		return identity.PublicKey{}, status.Error(codes.Unauthenticated, "signer token required")
	}
	signer, _, err := identity.VerifySignerToken(tok)
	if err != nil {
		return identity.PublicKey{}, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	return signer, nil
}

func adminFromContext(ctx context.Context) (*identity.PublicKey, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	tok := bearer(md, AdminTokenKey)
	if tok == "" {
		return nil, nil
	}
	admin, _, err := identity.VerifySignerToken(tok)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid admin token: %v", err)
	}
	return &admin, nil
}

// StoreProof implements LedgerServer.
func (s *Server) StoreProof(ctx context.Context, req *StoreProofRequest) (*model.ProofReceipt, error) {
	signer, err := signerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	admin, err := adminFromContext(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := s.proofs.StoreProof(ctx, service.StoreProofRequest{
		RecordID:   req.RecordID,
		Submitter:  signer,
		Admin:      admin,
		Commitment: req.Commitment,
	})
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return receipt, nil
}

// QueryRecords implements LedgerServer.
func (s *Server) QueryRecords(ctx context.Context, req *QueryRecordsRequest) (*QueryRecordsResponse, error) {
	accts, err := s.proofs.QueryRecords(ctx, service.Query{Size: req.Size, Offset: req.Offset, Value: req.Value})
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &QueryRecordsResponse{Accounts: accts}, nil
}

// FindByCommitment implements LedgerServer.
func (s *Server) FindByCommitment(ctx context.Context, req *FindByCommitmentRequest) (*FindByCommitmentResponse, error) {
	proofs, err := s.proofs.FindByCommitment(ctx, req.Commitment)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &FindByCommitmentResponse{Proofs: proofs}, nil
}

// GetRecord implements LedgerServer.
func (s *Server) GetRecord(ctx context.Context, req *GetRecordRequest) (*ledger.Account, error) {
	acct, err := s.store.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return acct, nil
}

// SendMessage implements LedgerServer.
func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*model.Receipt, error) {
	author, err := signerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := s.msgs.SendMessage(ctx, service.SendMessageRequest{
		RecordID: req.RecordID,
		Author:   author,
		Content:  req.Content,
	})
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return receipt, nil
}

// ListMessages implements LedgerServer.
func (s *Server) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	var (
		msgs []*model.Message
		err  error
	)
	if req.Author != nil {
		msgs, err = s.msgs.ListByAuthor(ctx, *req.Author)
	} else {
		msgs, err = s.msgs.List(ctx)
	}
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &ListMessagesResponse{Messages: msgs}, nil
}

// VerifyInclusion implements LedgerServer.
func (s *Server) VerifyInclusion(ctx context.Context, req *VerifyInclusionRequest) (*service.VerifyResult, error) {
	types := req.Types
	if len(types) == 0 {
		types = []string{"string"}
	}
	res, err := s.proofs.VerifyInclusion(ctx, service.VerifyRequest{
		Root: req.Root, Types: types, Value: req.Value, Proof: req.Proof,
	})
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return res, nil
}

// LoggingInterceptor returns a unary server interceptor that logs each call.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

// RecoveryInterceptor turns a panicking handler into a codes.Internal error
// so one bad call cannot take the process down.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc handler panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
