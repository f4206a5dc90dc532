package hierarchy

import (
	"strings"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

// SummaryElement is the compact form of an Element.
type SummaryElement struct {
	Text   string     `json:"text"`
	Desc   string     `json:"desc"`
	ID     string     `json:"id"`
	Center core.Point `json:"center"`
	Type   string     `json:"type"`
}

// Summarize keeps elements with text, a description, or a path-style
// resource id ("pkg:id/name"), rewriting the id to its trailing segment.
func Summarize(elements []Element) []SummaryElement {
	summary := []SummaryElement{}
	for _, e := range elements {
		if e.Text == "" && e.Description == "" && !strings.Contains(e.ID, "id/") {
			continue
		}
		summary = append(summary, SummaryElement{
			Text:   e.Text,
			Desc:   e.Description,
			ID:     shortID(e.ID),
			Center: e.Center,
			Type:   e.Type,
		})
	}
	return summary
}

func shortID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
