package action

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

// Decode parses and validates one action descriptor:
//
//	{"action": "<kind>", ...kind-specific fields}
//
// Unknown extra fields (such as "reason") are ignored. Every failure is an
// ErrInvalidAction.
func Decode(data []byte) (Action, error) {
	if !gjson.ValidBytes(data) {
		return nil, invalid("Action must be valid JSON")
	}
	obj := gjson.ParseBytes(data)
	if !obj.IsObject() {
		return nil, invalid("Action must be a JSON object")
	}

	kind, err := peekKind(obj)
	if err != nil {
		return nil, err
	}

	a, err := decodeKind(kind, obj)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// PeekKind returns the raw "action" value of a descriptor, or "" when it is
// absent or not a string. It does not validate the kind.
func PeekKind(data []byte) string {
	v := gjson.GetBytes(data, "action")
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

func peekKind(obj gjson.Result) (Kind, error) {
	v := obj.Get("action")
	if !v.Exists() {
		return "", invalid("Missing 'action' field")
	}
	kind := Kind(v.Str)
	if v.Type != gjson.String || !kind.IsValid() {
		return "", invalidf("Invalid action type '%s'. Must be one of: %s", v.String(), kindList())
	}
	return kind, nil
}

func decodeKind(kind Kind, obj gjson.Result) (Action, error) {
	switch kind {
	case KindTap:
		p, err := pointField(obj, kind, "coordinates")
		if err != nil {
			return nil, err
		}
		return Tap{Coordinates: p}, nil

	case KindLongPress:
		p, err := pointField(obj, kind, "coordinates")
		if err != nil {
			return nil, err
		}
		d, err := durationField(obj)
		if err != nil {
			return nil, err
		}
		return LongPress{Coordinates: p, Duration: d}, nil

	case KindSwipe, KindDragAndDrop:
		start, err := pointField(obj, kind, "start_coordinates")
		if err != nil {
			return nil, err
		}
		end, err := pointField(obj, kind, "end_coordinates")
		if err != nil {
			return nil, err
		}
		d, err := durationField(obj)
		if err != nil {
			return nil, err
		}
		if kind == KindSwipe {
			return Swipe{Start: start, End: end, Duration: d}, nil
		}
		return DragAndDrop{Start: start, End: end, Duration: d}, nil

	case KindType:
		text, err := stringField(obj, kind, "text", true)
		if err != nil {
			return nil, err
		}
		return TypeText{Text: text}, nil

	case KindHome:
		return Home{}, nil

	case KindBack:
		return Back{}, nil

	case KindWait:
		d, err := durationField(obj)
		if err != nil {
			return nil, err
		}
		return Wait{Duration: d}, nil

	case KindDone:
		reason, _ := stringField(obj, kind, "reason", false)
		return Done{Reason: reason}, nil

	case KindStartIntent:
		uri, err := stringField(obj, kind, "uri", true)
		if err != nil {
			return nil, err
		}
		pkg, err := stringField(obj, kind, "package", true)
		if err != nil {
			return nil, err
		}
		return StartIntent{URI: uri, Package: pkg}, nil

	case KindOpenApp:
		pkg, err := stringField(obj, kind, "package_name", true)
		if err != nil {
			return nil, err
		}
		return OpenApp{Package: pkg}, nil

	case KindScreenshot:
		path, err := stringField(obj, kind, "file_path", false)
		if err != nil {
			return nil, err
		}
		return Screenshot{FilePath: path}, nil

	case KindGetCurrentPackage:
		return GetCurrentPackage{}, nil
	}

	return nil, invalidf("Invalid action type '%s'", kind)
}

// pointField reads a 2-element numeric array, truncating each component
// toward zero.
func pointField(obj gjson.Result, kind Kind, name string) (core.Point, error) {
	v := obj.Get(name)
	if !v.Exists() {
		return core.Point{}, invalidf("%s action requires '%s' field", kind, name)
	}
	if !v.IsArray() {
		return core.Point{}, invalidf("%s must be [x, y] array", name)
	}
	items := v.Array()
	if len(items) != 2 {
		return core.Point{}, invalidf("%s must be [x, y] array", name)
	}
	for _, c := range items {
		if c.Type != gjson.Number {
			return core.Point{}, invalid("coordinates must be numeric")
		}
	}
	return core.Point{X: int(items[0].Num), Y: int(items[1].Num)}, nil
}

// durationField reads the optional "duration" (ms).
func durationField(obj gjson.Result) (*int, error) {
	v := obj.Get("duration")
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if v.Type != gjson.Number {
		return nil, invalid("duration must be a number")
	}
	if v.Num < 0 {
		return nil, invalid("duration cannot be negative")
	}
	d := int(v.Num)
	return &d, nil
}

func stringField(obj gjson.Result, kind Kind, name string, required bool) (string, error) {
	v := obj.Get(name)
	if !v.Exists() || (!required && v.Type == gjson.Null) {
		if required {
			return "", invalidf("%s action requires '%s' field", kind, name)
		}
		return "", nil
	}
	if v.Type != gjson.String {
		return "", invalidf("%s must be a string", name)
	}
	return v.Str, nil
}

// DecodeBatch splits a JSON array of descriptors without decoding them, so
// a batch can fail lazily at the first bad element.
func DecodeBatch(data []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, invalid("Input must be valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, invalid("Input must be a JSON array of actions")
	}
	items := root.Array()
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw = append(raw, json.RawMessage(item.Raw))
	}
	return raw, nil
}

func kindList() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
