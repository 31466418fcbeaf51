package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// reasonKey is the trailer carrying a stable error reason alongside the
// status code, so clients can recover the exact sentinel.
const reasonKey = "x-error-reason"

type reason struct {
	name string
	code codes.Code
	err  error
}

var reasons = []reason{
	{"unauthorized", codes.PermissionDenied, service.ErrUnauthorized},
	{"already_exists", codes.AlreadyExists, service.ErrAlreadyExists},
	{"invalid_length", codes.InvalidArgument, service.ErrInvalidLength},
	{"content_too_long", codes.InvalidArgument, service.ErrContentTooLong},
	{"invalid_content", codes.InvalidArgument, model.ErrInvalidContent},
	{"missing_id", codes.InvalidArgument, service.ErrMissingID},
	{"invalid_filter", codes.InvalidArgument, service.ErrInvalidFilter},
	{"wrong_type", codes.NotFound, service.ErrWrongType},
	{"not_found", codes.NotFound, service.ErrNotFound},
	{"backend_unavailable", codes.Unavailable, service.ErrUnavailable},
}

// toStatus converts a service error into a gRPC status error and attaches
// the reason trailer.
func toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			_ = grpc.SetTrailer(ctx, metadata.Pairs(reasonKey, r.name))
			return status.Error(r.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus converts a gRPC error back into an error that matches the
// service sentinels under errors.Is.
func fromStatus(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if vals := trailer.Get(reasonKey); len(vals) > 0 {
		for _, r := range reasons {
			if r.name == vals[0] {
				return fmt.Errorf("%w: %s", r.err, st.Message())
			}
		}
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", service.ErrUnavailable, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", service.ErrUnauthorized, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", service.ErrAlreadyExists, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", service.ErrNotFound, st.Message())
	}
	return err
}
