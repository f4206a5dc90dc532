// Package query resolves human-style criteria against a parsed element list.
//
// All matching is case-insensitive substring containment. "Not found" is a
// normal outcome reported through a boolean, never an error.
package query

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/droid-agent/pkg/hierarchy"
)

// Criteria selects a single element.
// When Query is set it is matched against text, description and id together.
// Otherwise each supplied field is checked against its own attribute and any
// hit counts; Text sees only the dumped text attribute, not the description
// fallback.
type Criteria struct {
	Query       string `json:"query,omitempty"`
	Text        string `json:"text,omitempty"`
	ID          string `json:"id,omitempty"`
	Description string `json:"desc,omitempty"`
}

// IsEmpty reports whether no criterion is set.
func (c Criteria) IsEmpty() bool {
	return c.Query == "" && c.Text == "" && c.ID == "" && c.Description == ""
}

// String describes the criteria for messages.
func (c Criteria) String() string {
	if c.Query != "" {
		return fmt.Sprintf("query=%q", c.Query)
	}
	var parts []string
	if c.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", c.Text))
	}
	if c.ID != "" {
		parts = append(parts, fmt.Sprintf("id=%q", c.ID))
	}
	if c.Description != "" {
		parts = append(parts, fmt.Sprintf("desc=%q", c.Description))
	}
	return strings.Join(parts, ", ")
}

// Filter selects every element satisfying all supplied predicates.
type Filter struct {
	Text        string `json:"text,omitempty"`
	ID          string `json:"id,omitempty"`
	Description string `json:"desc,omitempty"`
	Type        string `json:"type,omitempty"` // exact, case-insensitive
	Clickable   *bool  `json:"clickable,omitempty"`
}

// Find returns the first element, in pre-order, matching c.
func Find(elements []hierarchy.Element, c Criteria) (hierarchy.Element, bool) {
	if c.IsEmpty() {
		return hierarchy.Element{}, false
	}
	for _, e := range elements {
		if c.matches(e) {
			return e, true
		}
	}
	return hierarchy.Element{}, false
}

func (c Criteria) matches(e hierarchy.Element) bool {
	if c.Query != "" {
		return containsIgnoreCase(e.Text, c.Query) ||
			containsIgnoreCase(e.Description, c.Query) ||
			containsIgnoreCase(e.ID, c.Query)
	}
	return (c.Text != "" && containsIgnoreCase(e.RawText, c.Text)) ||
		(c.ID != "" && containsIgnoreCase(e.ID, c.ID)) ||
		(c.Description != "" && containsIgnoreCase(e.Description, c.Description))
}

// List returns every element satisfying the conjunction of f's predicates.
// An empty filter returns all elements.
func List(elements []hierarchy.Element, f Filter) []hierarchy.Element {
	result := []hierarchy.Element{}
	for _, e := range elements {
		if f.matches(e) {
			result = append(result, e)
		}
	}
	return result
}

func (f Filter) matches(e hierarchy.Element) bool {
	if f.Text != "" && !containsIgnoreCase(e.RawText, f.Text) {
		return false
	}
	if f.ID != "" && !containsIgnoreCase(e.ID, f.ID) {
		return false
	}
	if f.Description != "" && !containsIgnoreCase(e.Description, f.Description) {
		return false
	}
	if f.Type != "" && !strings.EqualFold(e.Type, f.Type) {
		return false
	}
	if f.Clickable != nil && e.Clickable != *f.Clickable {
		return false
	}
	return true
}

// containsIgnoreCase checks if s contains substr (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
