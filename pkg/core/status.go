// Package core provides the shared execution model for droid-agent: the
// device gateway contract, result types and the error taxonomy.
package core

// Status is the outcome reported for an action, script run or match.
type Status string

const (
	StatusSuccess  Status = "success"   // Primary step completed
	StatusError    Status = "error"     // Operation failed, nothing further attempted
	StatusWarning  Status = "warning"   // Primary step succeeded, a secondary step failed
	StatusNotFound Status = "not_found" // Normal negative outcome (query or template miss)
)

// String returns the wire representation of Status
func (s Status) String() string {
	return string(s)
}

// IsSuccess returns true if the status indicates the primary step happened
// (success or warning)
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || s == StatusWarning
}

// IsError returns true for StatusError only
func (s Status) IsError() bool {
	return s == StatusError
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone          ErrorCategory = iota // No error
	ErrCategoryConnectivity                       // No authorized device
	ErrCategoryValidation                         // Malformed descriptor, never dispatched
	ErrCategoryDeviceCommand                      // Non-zero exit or timeout from the gateway
	ErrCategoryParse                              // Malformed dump, bounds or image data
	ErrCategoryNotFound                           // Query or template yielded no match
	ErrCategoryScript                             // Caller script fault
	ErrCategoryConfig                             // Invalid configuration
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryConnectivity:
		return "connectivity"
	case ErrCategoryValidation:
		return "validation"
	case ErrCategoryDeviceCommand:
		return "device_command"
	case ErrCategoryParse:
		return "parse"
	case ErrCategoryNotFound:
		return "not_found"
	case ErrCategoryScript:
		return "script"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}
