package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MarshalJSON encodes the point as [x, y]
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON decodes [x, y]
func (p *Point) UnmarshalJSON(data []byte) error {
	var xy []int
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	if len(xy) != 2 {
		return fmt.Errorf("point must be [x, y], got %d values", len(xy))
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// String returns "(x, y)"
func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// ActionResult is produced once per action descriptor.
// Payload keys are flattened into the top-level JSON object.
type ActionResult struct {
	Status  Status                 `json:"status"`
	Action  string                 `json:"action,omitempty"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"-"`
}

// Success builds a success result
func Success(action, message string) *ActionResult {
	return &ActionResult{Status: StatusSuccess, Action: action, Message: message}
}

// Warning builds a warning result
func Warning(action, message string) *ActionResult {
	return &ActionResult{Status: StatusWarning, Action: action, Message: message}
}

// Failure builds an error result
func Failure(action, message string) *ActionResult {
	return &ActionResult{Status: StatusError, Action: action, Message: message}
}

// FailureFromError builds an error result from err, keeping its code in the payload
// when err is an ExecutionError.
func FailureFromError(action string, err error) *ActionResult {
	r := Failure(action, err.Error())
	var ee *ExecutionError
	if errors.As(err, &ee) {
		r.Message = ee.Message
		if ee.Cause != nil {
			r.Message = ee.Error()
		}
		r.With("code", ee.Code)
	}
	return r
}

// With sets a payload key and returns the result for chaining
func (r *ActionResult) With(key string, value interface{}) *ActionResult {
	if r.Payload == nil {
		r.Payload = make(map[string]interface{})
	}
	r.Payload[key] = value
	return r
}

// MarshalJSON flattens the payload into the result object. Reserved keys
// (status, action, message) are never overwritten by payload entries.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Payload)+3)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["status"] = r.Status
	out["message"] = r.Message
	if r.Action != "" {
		out["action"] = r.Action
	} else {
		delete(out, "action")
	}
	return json.Marshal(out)
}
