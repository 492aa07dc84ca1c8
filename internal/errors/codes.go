// Package errors provides the structured error type returned by every store
// operation. Callers branch on the Code instead of inspecting messages.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an error that did not originate in this module.
	CodeUnknown Code = "UNKNOWN"

	// Registry errors
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Chat errors
	CodeChatNotFound Code = "CHAT_NOT_FOUND"
	CodeRateLimited  Code = "RATE_LIMITED"

	// Backend errors: network, auth, quota or a malformed document
	CodeExternalStoreFailure Code = "EXTERNAL_STORE_FAILURE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeAlreadyExists:
		return codes.AlreadyExists
	case CodeNotFound, CodeChatNotFound:
		return codes.NotFound
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeRateLimited:
		return codes.ResourceExhausted
	case CodeExternalStoreFailure:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
