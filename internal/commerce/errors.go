package commerce

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// apiError is the error body returned by the commerce backend.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// statusFromHTTP classifies a backend reply as a grpc status error so callers
// can branch on codes instead of HTTP details.
func statusFromHTTP(httpStatus int, body apiError) error {
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(httpStatus)
	}

	var code codes.Code
	switch {
	case httpStatus == http.StatusNotFound || body.Type == "not_found":
		code = codes.NotFound
	case httpStatus == http.StatusBadRequest || body.Type == "invalid_data":
		code = codes.InvalidArgument
	case httpStatus == http.StatusUnauthorized:
		code = codes.Unauthenticated
	case httpStatus == http.StatusForbidden:
		code = codes.PermissionDenied
	case httpStatus == http.StatusConflict || body.Type == "not_allowed":
		code = codes.FailedPrecondition
	case httpStatus == http.StatusTooManyRequests:
		code = codes.ResourceExhausted
	case httpStatus == http.StatusServiceUnavailable || httpStatus == http.StatusBadGateway:
		code = codes.Unavailable
	case httpStatus == http.StatusGatewayTimeout:
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, msg)
}

// Message returns the backend's own message carried by err, even when err was
// wrapped on the way up. ok is false for failures that never reached the
// backend's error reply.
func Message(err error) (msg string, ok bool) {
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		return "", false
	}
	return se.GRPCStatus().Message(), true
}

// Code returns the status code carried by err, codes.Unknown when there is none.
func Code(err error) codes.Code {
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		return codes.Unknown
	}
	return se.GRPCStatus().Code()
}

// IsNotFound reports whether the backend no longer knows the cart or item.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// IsTransient reports whether the failure is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return true // transport level failure
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Unknown,
		codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}
