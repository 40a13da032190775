// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

const (
	// CodeLength задаёт длину кода меню и кода отслеживания без префикса.
	CodeLength = 5

	// CodeAlphabet содержит символы, из которых генерируются коды.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// TrackingPrefix задаёт маркер перед кодом отслеживания.
	TrackingPrefix = "#"

	MaxInstructionsLength = 200
	MaxCommentLength      = 500
	MaxCustomerNameLength = 50
)

// NormalizeMenuCode приводит код меню к каноническому виду без учёта регистра.
func NormalizeMenuCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidMenuCode проверяет, что код состоит ровно из пяти заглавных букв или цифр.
func IsValidMenuCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(CodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// NormalizeTrackingCode приводит код отслеживания к виду "#XXXXX".
// Ведущий маркер необязателен, регистр не учитывается.
func NormalizeTrackingCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, TrackingPrefix)
	return TrackingPrefix + strings.ToUpper(code)
}

// ValidateOrderRequest проверяет запрос на заказ и возвращает все найденные нарушения.
func ValidateOrderRequest(req model.OrderRequest) error {
	verr := &model.ValidationError{}

	if !IsValidMenuCode(NormalizeMenuCode(req.MenuCode)) {
		verr.Add("menuCode", "must be 5 letters or digits")
	}
	if strings.TrimSpace(req.Flavor.Name) == "" {
		verr.Add("flavor", "is required")
	}
	if req.Flavor.Weight < 0 {
		verr.Add("flavor.weight", "must not be negative")
	}
	if len(req.Toppings) > model.MaxToppings {
		verr.Add("toppings", fmt.Sprintf("at most %d toppings allowed", model.MaxToppings))
	}
	for i, t := range req.Toppings {
		if strings.TrimSpace(t.Name) == "" {
			verr.Add(fmt.Sprintf("toppings[%d]", i), "name is required")
		}
		if t.Weight < 0 {
			verr.Add(fmt.Sprintf("toppings[%d].weight", i), "must not be negative")
		}
	}
	if utf8.RuneCountInString(req.SpecialInstructions) > MaxInstructionsLength {
		verr.Add("specialInstructions", fmt.Sprintf("must be at most %d characters", MaxInstructionsLength))
	}

	return verr.OrNil()
}

// ValidateReview проверяет отзыв. Ошибка сопоставляется с model.ErrInvalidRating,
// model.ErrCommentTooLong и model.ErrValidation через errors.Is.
func ValidateReview(rating int, comment, customerName string) error {
	var errs []error

	if rating < 1 || rating > 5 {
		errs = append(errs, fmt.Errorf("%w: got %d", model.ErrInvalidRating, rating))
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		errs = append(errs, fmt.Errorf("%w: limit is %d characters", model.ErrCommentTooLong, MaxCommentLength))
	}

	verr := &model.ValidationError{}
	name := strings.TrimSpace(customerName)
	if name == "" {
		verr.Add("customerName", "is required")
	} else if utf8.RuneCountInString(name) > MaxCustomerNameLength {
		verr.Add("customerName", fmt.Sprintf("must be at most %d characters", MaxCustomerNameLength))
	}
	if err := verr.OrNil(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateStockRef проверяет категорию и название складской позиции.
func ValidateStockRef(category model.Category, name string) error {
	verr := &model.ValidationError{}
	if !category.Valid() {
		verr.Add("category", "must be flavor or topping")
	}
	if strings.TrimSpace(name) == "" {
		verr.Add("name", "is required")
	}
	return verr.OrNil()
}
