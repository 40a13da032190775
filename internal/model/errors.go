package model

import (
	"errors"
	"strings"
)

// Доменные ошибки. Обработчики HTTP сопоставляют их с кодами ответа через errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrItemUnavailable   = errors.New("item unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockItemNotFound = errors.New("stock item not found")

	ErrInvalidCode        = errors.New("invalid menu code")
	ErrCodeExpired        = errors.New("menu code expired")
	ErrUsageLimitReached  = errors.New("menu code usage limit reached")
	ErrCodeSpaceExhausted = errors.New("menu code space exhausted")

	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrInvalidPaymentTransition = errors.New("invalid payment status transition")

	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrCommentTooLong = errors.New("comment too long")
	ErrReviewNotFound = errors.New("review not found")

	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldError описывает нарушение правила для одного поля запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError содержит все нарушения, найденные во входных данных, а не только первое.
type ValidationError struct {
	Fields []FieldError
}

// Add добавляет нарушение для поля.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil возвращает nil, если нарушений нет.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ItemUnavailableError перечисляет все выбранные позиции, которых нет в наличии.
type ItemUnavailableError struct {
	Names []string
}

func (e *ItemUnavailableError) Error() string {
	return "item unavailable: " + strings.Join(e.Names, ", ")
}

func (e *ItemUnavailableError) Is(target error) bool {
	return target == ErrItemUnavailable
}
