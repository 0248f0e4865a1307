package validation

import (
	"fmt"
	"regexp"

	errors "github.com/sokofresh/mpesa-checkout/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	v.fields = append(v.fields, FieldValidator{FieldName: name, Value: value})
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		missing := false
		switch v := value.(type) {
		case string:
			missing = v == ""
		case float64:
			missing = v == 0
		}
		if missing {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinFloat(min float64, message string, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(float64); ok && v < min {
			return errors.NewValidationFieldError(fv.FieldName, message, code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxFloat(max float64, message string, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(float64); ok && v > max {
			return errors.NewValidationFieldError(fv.FieldName, message, code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Matches(pattern *regexp.Regexp, message string, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && !pattern.MatchString(v) {
			return errors.NewValidationFieldError(fv.FieldName, message, code)
		}
		return nil
	})
	return fv
}

// Validate runs every registered check and collapses the failures into
// a single validation AppError with per-field details.
func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			err := validator(field.Value)
			if err == nil {
				continue
			}
			if details, ok := err.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
			} else {
				validationErrors = append(validationErrors, errors.ValidationError{
					Field:   field.FieldName,
					Message: err.Message,
					Code:    string(err.Code),
				})
			}
		}
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}

// phonePattern is the Safaricom MSISDN contract: country code 254
// followed by exactly nine digits.
var phonePattern = regexp.MustCompile(`^254\d{9}$`)

const (
	MinAmountKES = 1
	MaxAmountKES = 100000
)

func ValidatePhone(phone string) *errors.AppError {
	validator := NewValidator()
	validator.Field("phone", phone).
		Required().
		Matches(phonePattern, "phone number must be in format 254XXXXXXXXX", errors.ErrCodeInvalidPhone)
	return validator.Validate()
}

func ValidateAmount(amount float64) *errors.AppError {
	validator := NewValidator()
	validator.Field("amount", amount).
		Required().
		MinFloat(MinAmountKES, fmt.Sprintf("amount must be at least KES %d", MinAmountKES), errors.ErrCodeAmountTooLow).
		MaxFloat(MaxAmountKES, fmt.Sprintf("amount cannot exceed KES %d", MaxAmountKES), errors.ErrCodeAmountTooHigh)
	return validator.Validate()
}
