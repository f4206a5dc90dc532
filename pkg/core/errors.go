package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: no_device, invalid_action, command_failed...
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code.
// This lets errors.Is match against the predefined sentinels even after
// WithCause/WithMessage produced a copy.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with fmt formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Connectivity errors
	ErrNoDevice = &ExecutionError{
		Category: ErrCategoryConnectivity,
		Code:     "no_device",
		Message:  "No Android device connected",
	}

	// Validation errors
	ErrInvalidAction = &ExecutionError{
		Category: ErrCategoryValidation,
		Code:     "invalid_action",
		Message:  "invalid action descriptor",
	}

	// Device command errors
	ErrCommandFailed = &ExecutionError{
		Category: ErrCategoryDeviceCommand,
		Code:     "command_failed",
		Message:  "device command failed",
	}
	ErrCommandTimeout = &ExecutionError{
		Category: ErrCategoryDeviceCommand,
		Code:     "command_timeout",
		Message:  "device command timed out",
	}
	ErrScreenshotFailed = &ExecutionError{
		Category: ErrCategoryDeviceCommand,
		Code:     "screenshot_failed",
		Message:  "failed to take screenshot",
	}

	// Parse errors
	ErrParse = &ExecutionError{
		Category: ErrCategoryParse,
		Code:     "parse_error",
		Message:  "XML parse error",
	}
	ErrImageUnreadable = &ExecutionError{
		Category: ErrCategoryParse,
		Code:     "image_unreadable",
		Message:  "Failed to load images for processing",
	}

	// Not found outcomes
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryNotFound,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrTemplateMissing = &ExecutionError{
		Category: ErrCategoryNotFound,
		Code:     "template_missing",
		Message:  "template file not found",
	}

	// Script errors
	ErrScriptFault = &ExecutionError{
		Category: ErrCategoryScript,
		Code:     "script_fault",
		Message:  "script raised an error",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of err, or ErrCategoryNone when err is not
// an ExecutionError.
func CategoryOf(err error) ErrorCategory {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryNone
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}
