// Package faults defines the coded error taxonomy shared by every
// allocation-path component. Callers match on the code via errors.As or
// the IsCode helper; the Context map carries the limits, counts and
// identifiers needed to render an actionable message.
package faults

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeCapacityExhausted   Code = "CAPACITY_EXHAUSTED"
	CodeQuotaExceeded       Code = "QUOTA_EXCEEDED"
	CodeDuplicateAllocation Code = "DUPLICATE_ALLOCATION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeCountryNotFound     Code = "COUNTRY_NOT_FOUND"
)

type Error struct {
	Code    Code
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, message string, context map[string]any) *Error {
	return &Error{Code: code, Message: message, Context: context}
}

// CapacityExhausted reports that a hierarchy level has no free coordinate
// left. Level is "region" or "host".
func CapacityExhausted(level string, capacity, allocated int) *Error {
	return &Error{
		Code:    CodeCapacityExhausted,
		Message: fmt.Sprintf("no free %s coordinate: %d of %d allocated", level, allocated, capacity),
		Context: map[string]any{
			"level":     level,
			"capacity":  capacity,
			"allocated": allocated,
		},
	}
}

// QuotaExceeded reports that a user namespace hit its limit. Kind is
// "region" or "host".
func QuotaExceeded(kind string, limit, current int64) *Error {
	return &Error{
		Code:    CodeQuotaExceeded,
		Message: fmt.Sprintf("%s quota reached: %d of %d used", kind, current, limit),
		Context: map[string]any{
			"kind":    kind,
			"limit":   limit,
			"current": current,
		},
	}
}

// DuplicateAllocation covers name collisions, coordinate collisions and
// races that exhausted the retry budget.
func DuplicateAllocation(message string, context map[string]any) *Error {
	return &Error{Code: CodeDuplicateAllocation, Message: message, Context: context}
}

// NotFound deliberately does not distinguish "wrong owner" from "does not
// exist" so one user cannot probe another's address space.
func NotFound(resourceType, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resourceType),
		Context: map[string]any{"resource_type": resourceType, "resource_id": id},
	}
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func CountryNotFound(key string) *Error {
	return &Error{
		Code:    CodeCountryNotFound,
		Message: fmt.Sprintf("no mapping for %q", key),
		Context: map[string]any{"country": key},
	}
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code Code) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}
