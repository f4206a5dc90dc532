package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/hierarchy"
)

const screen = `<hierarchy>
  <node text="Inbox" resource-id="com.chat:id/toolbar_title" class="android.widget.TextView" bounds="[0,0][500,100]"/>
  <node text="" content-desc="Search messages" resource-id="com.chat:id/search" class="android.widget.ImageButton" clickable="true" bounds="[900,0][1000,100]"/>
  <node text="Hello there" resource-id="com.chat:id/message_text" class="android.widget.TextView" bounds="[0,200][800,300]"/>
  <node text="Login" resource-id="com.chat:id/login" class="android.widget.Button" clickable="true" bounds="[100,200][300,400]"/>
  <node text="" resource-id="com.chat:id/compose_edit" class="android.widget.EditText" clickable="true" focusable="true" bounds="[0,2200][900,2300]"/>
  <node text="LOGIN help" resource-id="com.chat:id/help" class="android.widget.TextView" bounds="[0,500][400,600]"/>
</hierarchy>`

func parsed(t *testing.T) []hierarchy.Element {
	t.Helper()
	elements, err := hierarchy.Parse(screen)
	require.NoError(t, err)
	require.Len(t, elements, 6)
	return elements
}

func TestFind_FreeTextFirstInPreOrder(t *testing.T) {
	elements := parsed(t)

	e, ok := Find(elements, Criteria{Query: "login"})
	require.True(t, ok)
	assert.Equal(t, "Login", e.Text)
	assert.Equal(t, core.Point{X: 200, Y: 300}, e.Center)
}

func TestFind_FreeTextUnion(t *testing.T) {
	elements := parsed(t)

	// Description only
	e, ok := Find(elements, Criteria{Query: "search MESSAGES"})
	require.True(t, ok)
	assert.Equal(t, "com.chat:id/search", e.ID)

	// Id only
	e, ok = Find(elements, Criteria{Query: "compose_edit"})
	require.True(t, ok)
	assert.Equal(t, "EditText", e.Type)
}

func TestFind_FieldModeChecksOwnAttributeOnly(t *testing.T) {
	elements := parsed(t)

	// "toolbar" appears only in an id, so a text criterion must miss it.
	_, ok := Find(elements, Criteria{Text: "toolbar"})
	assert.False(t, ok)

	e, ok := Find(elements, Criteria{ID: "toolbar"})
	require.True(t, ok)
	assert.Equal(t, "Inbox", e.Text)
}

func TestFind_TextIgnoresDescriptionFallback(t *testing.T) {
	elements, err := hierarchy.ParseAll(`<hierarchy><node text="" content-desc="Settings" clickable="true" bounds="[0,0][100,100]"/></hierarchy>`)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	require.Equal(t, "Settings", elements[0].Text)

	_, ok := Find(elements, Criteria{Text: "settings"})
	assert.False(t, ok)
	assert.Empty(t, Search(elements, "settings", FieldText))
	assert.Empty(t, List(elements, Filter{Text: "settings"}))

	_, ok = Find(elements, Criteria{Description: "settings"})
	assert.True(t, ok)
	_, ok = Find(elements, Criteria{Query: "settings"})
	assert.True(t, ok)
	assert.Len(t, Search(elements, "settings", FieldDesc), 1)
}

func TestFind_FieldModeUnion(t *testing.T) {
	elements := parsed(t)

	// Text misses everywhere, id hits on the third element.
	e, ok := Find(elements, Criteria{Text: "nothing-like-this", ID: "message_text"})
	require.True(t, ok)
	assert.Equal(t, "Hello there", e.Text)
}

func TestFind_NotFound(t *testing.T) {
	elements := parsed(t)

	_, ok := Find(elements, Criteria{Query: "logout"})
	assert.False(t, ok)

	_, ok = Find(elements, Criteria{})
	assert.False(t, ok, "empty criteria never match")

	_, ok = Find(nil, Criteria{Query: "login"})
	assert.False(t, ok)
}

func TestList_Conjunction(t *testing.T) {
	elements := parsed(t)

	got := List(elements, Filter{Text: "login", ID: "help"})
	require.Len(t, got, 1)
	assert.Equal(t, "LOGIN help", got[0].Text)

	// Both conditions must hold: "login" text with a "search" id matches nothing.
	assert.Empty(t, List(elements, Filter{Text: "login", ID: "search"}))
}

func TestList_SubsetAndPredicates(t *testing.T) {
	elements := parsed(t)
	clickable := true

	filters := []Filter{
		{},
		{Text: "l"},
		{Type: "textview"},
		{Clickable: &clickable},
		{ID: "com.chat", Clickable: &clickable, Type: "Button"},
	}

	for _, f := range filters {
		got := List(elements, f)
		for _, e := range got {
			assert.Contains(t, elements, e)
			assert.True(t, f.matches(e), "element %+v does not satisfy %+v", e, f)
		}
		// Everything excluded must fail some predicate.
		for _, e := range elements {
			if !f.matches(e) {
				assert.NotContains(t, got, e)
			}
		}
	}

	assert.Len(t, List(elements, Filter{}), len(elements))
	assert.Len(t, List(elements, Filter{Type: "TEXTVIEW"}), 3)
	assert.Len(t, List(elements, Filter{Clickable: &clickable}), 3)
}

func TestList_TypeIsExact(t *testing.T) {
	elements := parsed(t)
	assert.Empty(t, List(elements, Filter{Type: "Text"}))
}

func TestSearch(t *testing.T) {
	elements := parsed(t)

	assert.Len(t, Search(elements, "login", FieldAuto), 2)
	assert.Len(t, Search(elements, "login", FieldText), 2)
	assert.Len(t, Search(elements, "com.chat", FieldID), 6)
	assert.Len(t, Search(elements, "com.chat", FieldText), 0)
	assert.Len(t, Search(elements, "search", FieldDesc), 1)
	assert.Empty(t, Search(elements, "", FieldAuto))
}

func TestParseField(t *testing.T) {
	f, err := ParseField("")
	require.NoError(t, err)
	assert.Equal(t, FieldAuto, f)

	f, err = ParseField("desc")
	require.NoError(t, err)
	assert.Equal(t, FieldDesc, f)

	_, err = ParseField("class")
	assert.Error(t, err)
}

func TestFirstByHints(t *testing.T) {
	elements := parsed(t)

	// "message" hits the search button description before the message text.
	e, hint, ok := FirstByHints(elements, ReplyHints)
	require.True(t, ok)
	assert.Equal(t, "message", hint)
	assert.Equal(t, "com.chat:id/search", e.ID)

	e, hint, ok = FirstByHints(elements, []string{"nope", "edit", "message"})
	require.True(t, ok)
	assert.Equal(t, "edit", hint)
	assert.Equal(t, "com.chat:id/compose_edit", e.ID)

	_, _, ok = FirstByHints(elements, []string{"tin nhắn"})
	assert.False(t, ok)
}

func TestCriteriaString(t *testing.T) {
	assert.Equal(t, `query="login"`, Criteria{Query: "login"}.String())
	assert.Equal(t, `text="a", desc="b"`, Criteria{Text: "a", Description: "b"}.String())
}
