package models

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound    = status.Errorf(codes.NotFound, "not found")
	ErrUnavailable = status.Errorf(codes.Unavailable, "temporarily unavailable")
)

// ErrInvalidArgument builds a validation error. The request is rejected and no
// state is written.
func ErrInvalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// ErrPermissionDenied builds an authorization error (not a member, not the
// sender, insufficient role).
func ErrPermissionDenied(format string, args ...any) error {
	return status.Errorf(codes.PermissionDenied, format, args...)
}

// CodeOf extracts the grpc code from an error chain, Unknown if none.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	st, ok := status.FromError(err)
	if !ok {
		return status.Code(errors.Unwrap(err))
	}
	return st.Code()
}

func IsNotFound(err error) bool {
	return CodeOf(err) == codes.NotFound
}

func IsInvalidArgument(err error) bool {
	return CodeOf(err) == codes.InvalidArgument
}

func IsPermissionDenied(err error) bool {
	return CodeOf(err) == codes.PermissionDenied
}
