// Package errors provides coded domain errors shared by the calculator
// transports.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeSessionClosed   Code = "SESSION_CLOSED"

	// Input errors
	CodeInvalidAction Code = "INVALID_ACTION"
	CodeInvalidKey    Code = "INVALID_KEY"

	// Session token errors
	CodeTokenInvalid Code = "TOKEN_INVALID"
	CodeTokenExpired Code = "TOKEN_EXPIRED"

	// History query errors
	CodeInvalidFilter    Code = "INVALID_FILTER"
	CodeInvalidPageToken Code = "INVALID_PAGE_TOKEN"

	// Transport limits
	CodeRateLimited Code = "RATE_LIMITED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - malformed input
	case CodeInvalidAction,
		CodeInvalidKey,
		CodeInvalidFilter,
		CodeInvalidPageToken:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeSessionClosed:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeSessionNotFound:
		return codes.NotFound

	// Unauthenticated - missing or bad credentials
	case CodeTokenInvalid, CodeTokenExpired:
		return codes.Unauthenticated

	case CodeRateLimited:
		return codes.ResourceExhausted

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WireName returns the canonical gRPC code name used in WebSocket and JSON
// error payloads, e.g. "INVALID_ARGUMENT".
func (c Code) WireName() string {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return "INVALID_ARGUMENT"
	case codes.NotFound:
		return "NOT_FOUND"
	case codes.FailedPrecondition:
		return "FAILED_PRECONDITION"
	case codes.Unauthenticated:
		return "UNAUTHENTICATED"
	case codes.ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	default:
		return "INTERNAL"
	}
}
