package query

import (
	"fmt"

	"github.com/devicelab-dev/droid-agent/pkg/hierarchy"
)

// Field selects which attribute Search matches against.
type Field string

// Search fields
const (
	FieldAuto Field = "auto"
	FieldText Field = "text"
	FieldID   Field = "id"
	FieldDesc Field = "desc"
)

// ParseField validates a search field name. Empty means auto.
func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case "":
		return FieldAuto, nil
	case FieldAuto, FieldText, FieldID, FieldDesc:
		return f, nil
	}
	return "", fmt.Errorf("unknown search field %q (expected auto, text, id or desc)", s)
}

// Search returns every element matching q in the given field. Unlike Find it
// does not stop at the first hit.
func Search(elements []hierarchy.Element, q string, field Field) []hierarchy.Element {
	if q == "" {
		return []hierarchy.Element{}
	}

	var c Criteria
	switch field {
	case FieldText:
		c.Text = q
	case FieldID:
		c.ID = q
	case FieldDesc:
		c.Description = q
	default:
		c.Query = q
	}

	result := []hierarchy.Element{}
	for _, e := range elements {
		if c.matches(e) {
			result = append(result, e)
		}
	}
	return result
}

// ReplyHints are tried in order when looking for a message input field.
var ReplyHints = []string{"message", "edit", "reply", "comment", "nhập", "tin nhắn", "bình luận"}

// FirstByHints runs a free-text Find for each hint in order and returns the
// first hit together with the hint that produced it. Later hints are not
// tried once one matches.
func FirstByHints(elements []hierarchy.Element, hints []string) (hierarchy.Element, string, bool) {
	for _, hint := range hints {
		if e, ok := Find(elements, Criteria{Query: hint}); ok {
			return e, hint, true
		}
	}
	return hierarchy.Element{}, "", false
}
