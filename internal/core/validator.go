package core

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"duepoint/internal/types"
)

// Validator wraps go-playground/validator to translate struct-tag violations
// into the platform's AppError shape.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its validation tags.
// The first failing field is reported in the error details; handlers surface
// the result via core.Error.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"request validation failed",
			err,
			map[string]any{
				"field": fe.Field(),
				"rule":  fe.Tag(),
			},
		)
	}

	return types.NewAppError(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
	)
}
