package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
)

// ParamValidator is a function type that validates a parameter.
type ParamValidator func(valueToTest int64) bool

func newComparisonValidator(valueInClosure int64, compareFn func(argValue, closedValue int64) bool) ParamValidator {
	return func(argValue int64) bool {
		return compareFn(argValue, valueInClosure)
	}
}

// gte returns a ParamValidator that checks if the argument is greater than or equal to the value captured in the closure.
func gte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue >= closedValue
	})
}

// gt returns a ParamValidator that checks if the argument is greater than the value captured in the closure.
func gt(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue > closedValue
	})
}

// ParseOptionalGte parses an optional integer query parameter that must be >= value.
// An absent parameter yields (0, true).
func ParseOptionalGte(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, value int64) (int64, bool) {
	return parseValidate(r, w, logger, key, false, gte(value))
}

// ParseValidateGt parses a required integer query parameter that must be > value.
func ParseValidateGt(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, value int64) (int64, bool) {
	return parseValidate(r, w, logger, key, true, gt(value))
}

// ParseOptionalDecimal parses an optional non-negative decimal query parameter.
func ParseOptionalDecimal(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string) (decimal.Decimal, bool, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return decimal.Zero, false, true
	}
	d, err := decimal.NewFromString(value)
	if err != nil || d.IsNegative() {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s value: %s", key, value))
		return decimal.Zero, false, false
	}
	return d, true, true
}

func parseValidate(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, required bool, pValidator ParamValidator) (int64, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		if !required {
			return 0, true
		}
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("%s url parameter is required", key))
		return 0, false
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil || !pValidator(intValue) {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return 0, false
	}
	return intValue, true
}
