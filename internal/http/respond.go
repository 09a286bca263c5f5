package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/checkout"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/order"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/payment"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ErrorResponse struct {
	Error    string   `json:"error"`
	Code     string   `json:"code,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleError maps domain and backend errors to HTTP replies. Processor and
// completion messages are passed through unchanged.
func handleError(w http.ResponseWriter, err error) {
	var (
		verr *order.ValidationError
		cerr *order.CompletionError
		perr *payment.ProcessorError
		ierr *payment.InitializationError
	)
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:    "checkout is not complete",
			Code:     "validation_failed",
			Problems: verr.Problems,
		})
	case errors.As(err, &cerr):
		respondError(w, completionStatus(cerr.Code), "completion_failed", cerr.Message)
	case errors.As(err, &perr):
		respondError(w, http.StatusPaymentRequired, "payment_failed", perr.Message)
	case errors.As(err, &ierr):
		respondError(w, http.StatusBadGateway, "payment_initialization_failed", "payment could not be started, please try again")
	case errors.Is(err, domain.ErrNoCart):
		respondError(w, http.StatusNotFound, "no_cart", err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, checkout.ErrStepLocked):
		respondError(w, http.StatusConflict, "step_locked", err.Error())
	case errors.Is(err, payment.ErrNoSession):
		respondError(w, http.StatusConflict, "no_payment_session", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		handleGRPCError(w, err)
	}
}

// completionStatus keeps the backend's message for every failed completion and
// only picks the HTTP status from how it failed.
func completionStatus(code codes.Code) int {
	switch code {
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusPaymentRequired
	}
}

func handleGRPCError(w http.ResponseWriter, err error) {
	// Convert gRPC status codes to HTTP status codes. The status is looked up
	// through any wrapping so the backend's message reaches the shopper as is.
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	st := se.GRPCStatus()

	var httpStatus int
	var code string

	switch st.Code() {
	case codes.InvalidArgument:
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case codes.NotFound:
		httpStatus = http.StatusNotFound
		code = "not_found"
	case codes.AlreadyExists, codes.FailedPrecondition:
		httpStatus = http.StatusConflict
		code = "conflict"
	case codes.Unauthenticated:
		httpStatus = http.StatusUnauthorized
		code = "unauthenticated"
	case codes.PermissionDenied:
		httpStatus = http.StatusForbidden
		code = "permission_denied"
	case codes.ResourceExhausted:
		httpStatus = http.StatusTooManyRequests
		code = "rate_limit_exceeded"
	case codes.Unavailable:
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case codes.DeadlineExceeded:
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, st.Message())
}
