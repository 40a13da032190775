package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/repository"
)

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

// validationDetails собирает все нарушения из ошибки, в том числе объединённой errors.Join.
func validationDetails(err error) []model.FieldError {
	var fields []model.FieldError
	if errors.Is(err, model.ErrInvalidRating) {
		fields = append(fields, model.FieldError{Field: "rating", Message: model.ErrInvalidRating.Error()})
	}
	if errors.Is(err, model.ErrCommentTooLong) {
		fields = append(fields, model.FieldError{Field: "comment", Message: model.ErrCommentTooLong.Error()})
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		fields = append(fields, verr.Fields...)
	}
	return fields
}

// classify сопоставляет ошибку с HTTP-статусом и машиночитаемой причиной.
func classify(err error) (int, errorResponse) {
	var unavailable *model.ItemUnavailableError

	switch {
	case errors.Is(err, model.ErrInvalidRating):
		return http.StatusBadRequest, errorResponse{Error: "invalid review", Reason: "invalid_rating", Details: validationDetails(err)}
	case errors.Is(err, model.ErrCommentTooLong):
		return http.StatusBadRequest, errorResponse{Error: "invalid review", Reason: "comment_too_long", Details: validationDetails(err)}
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: "validation failed", Reason: "validation_failed", Details: validationDetails(err)}

	case errors.As(err, &unavailable):
		return http.StatusConflict, errorResponse{Error: "items unavailable", Reason: "item_unavailable", Details: unavailable.Names}
	case errors.Is(err, model.ErrInsufficientStock):
		return http.StatusConflict, errorResponse{Error: err.Error(), Reason: "insufficient_stock"}

	case errors.Is(err, model.ErrCodeExpired):
		return http.StatusBadRequest, errorResponse{Error: "menu code has expired", Reason: "code_expired"}
	case errors.Is(err, model.ErrUsageLimitReached):
		return http.StatusBadRequest, errorResponse{Error: "menu code has no uses left", Reason: "usage_limit_reached"}
	case errors.Is(err, model.ErrInvalidCode):
		return http.StatusBadRequest, errorResponse{Error: "menu code not recognised", Reason: "invalid_code"}
	case errors.Is(err, model.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable, errorResponse{Error: "could not allocate a unique code", Reason: "code_space_exhausted"}

	case errors.Is(err, model.ErrStockItemNotFound),
		errors.Is(err, model.ErrOrderNotFound),
		errors.Is(err, model.ErrReviewNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error(), Reason: "not_found"}

	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrInvalidPaymentTransition):
		return http.StatusConflict, errorResponse{Error: err.Error(), Reason: "invalid_transition"}
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, errorResponse{Error: "order was modified concurrently, retry", Reason: "conflict"}
	case errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict, errorResponse{Error: "login already taken", Reason: "user_exists"}

	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: "invalid login or password", Reason: "invalid_credentials"}
	}

	return http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)}
}

// writeError отправляет ошибку клиенту. Непредвиденные ошибки логируются с полями fields.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status, resp := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   "validation failed",
		Reason:  "validation_failed",
		Details: []model.FieldError{{Field: field, Message: message}},
	})
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: http.StatusText(http.StatusUnauthorized)})
}
