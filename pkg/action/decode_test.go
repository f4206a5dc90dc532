package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

func TestDecode_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{`{"action":"tap","coordinates":[540,1200],"reason":"open"}`, Tap{Coordinates: core.Point{X: 540, Y: 1200}}},
		{`{"action":"tap","coordinates":[200.9,300.2]}`, Tap{Coordinates: core.Point{X: 200, Y: 300}}},
		{`{"action":"long_press","coordinates":[10,20]}`, LongPress{Coordinates: core.Point{X: 10, Y: 20}}},
		{`{"action":"long_press","coordinates":[10,20],"duration":1500}`, LongPress{Coordinates: core.Point{X: 10, Y: 20}, Duration: IntPtr(1500)}},
		{`{"action":"swipe","start_coordinates":[1,2],"end_coordinates":[3,4]}`, Swipe{Start: core.Point{X: 1, Y: 2}, End: core.Point{X: 3, Y: 4}}},
		{`{"action":"swipe","start_coordinates":[1,2],"end_coordinates":[3,4],"duration":300}`, Swipe{Start: core.Point{X: 1, Y: 2}, End: core.Point{X: 3, Y: 4}, Duration: IntPtr(300)}},
		{`{"action":"drag_and_drop","start_coordinates":[1,2],"end_coordinates":[3,4],"duration":0}`, DragAndDrop{Start: core.Point{X: 1, Y: 2}, End: core.Point{X: 3, Y: 4}, Duration: IntPtr(0)}},
		{`{"action":"type","text":"hello world"}`, TypeText{Text: "hello world"}},
		{`{"action":"type","text":""}`, TypeText{}},
		{`{"action":"home"}`, Home{}},
		{`{"action":"back"}`, Back{}},
		{`{"action":"wait","duration":5000}`, Wait{Duration: IntPtr(5000)}},
		{`{"action":"done","reason":"logged in"}`, Done{Reason: "logged in"}},
		{`{"action":"start_intent","uri":"https://example.com","package":"com.android.chrome"}`, StartIntent{URI: "https://example.com", Package: "com.android.chrome"}},
		{`{"action":"open_app","package_name":"com.android.settings"}`, OpenApp{Package: "com.android.settings"}},
		{`{"action":"screenshot"}`, Screenshot{}},
		{`{"action":"screenshot","file_path":"out.png"}`, Screenshot{FilePath: "out.png"}},
		{`{"action":"get_current_package"}`, GetCurrentPackage{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		in  string
		msg string
	}{
		{`not json`, "Action must be valid JSON"},
		{`[1,2]`, "Action must be a JSON object"},
		{`"tap"`, "Action must be a JSON object"},
		{`{}`, "Missing 'action' field"},
		{`{"action":"fly"}`, "Invalid action type 'fly'"},
		{`{"action":42}`, "Invalid action type '42'"},

		{`{"action":"tap"}`, "tap action requires 'coordinates' field"},
		{`{"action":"tap","coordinates":[1]}`, "coordinates must be [x, y] array"},
		{`{"action":"tap","coordinates":[1,2,3]}`, "coordinates must be [x, y] array"},
		{`{"action":"tap","coordinates":"1,2"}`, "coordinates must be [x, y] array"},
		{`{"action":"tap","coordinates":["1","2"]}`, "coordinates must be numeric"},
		{`{"action":"tap","coordinates":[true,2]}`, "coordinates must be numeric"},

		{`{"action":"long_press"}`, "long_press action requires 'coordinates' field"},
		{`{"action":"long_press","coordinates":[1,2],"duration":"1s"}`, "duration must be a number"},
		{`{"action":"long_press","coordinates":[1,2],"duration":-1}`, "duration cannot be negative"},

		{`{"action":"swipe","end_coordinates":[3,4]}`, "swipe action requires 'start_coordinates' field"},
		{`{"action":"swipe","start_coordinates":[1,2]}`, "swipe action requires 'end_coordinates' field"},
		{`{"action":"swipe","start_coordinates":[1,2],"end_coordinates":[3,4],"duration":-0.5}`, "duration cannot be negative"},

		{`{"action":"drag_and_drop","start_coordinates":[1,2]}`, "drag_and_drop action requires 'end_coordinates' field"},
		{`{"action":"drag_and_drop","end_coordinates":[1,2]}`, "drag_and_drop action requires 'start_coordinates' field"},

		{`{"action":"type"}`, "type action requires 'text' field"},
		{`{"action":"type","text":5}`, "text must be a string"},

		{`{"action":"wait","duration":-5}`, "duration cannot be negative"},

		{`{"action":"start_intent","package":"p"}`, "start_intent action requires 'uri' field"},
		{`{"action":"start_intent","uri":"u"}`, "start_intent action requires 'package' field"},
		{`{"action":"start_intent","uri":"u","package":7}`, "package must be a string"},
		{`{"action":"start_intent","uri":"","package":"p"}`, "start_intent action requires 'uri' field"},

		{`{"action":"open_app"}`, "open_app action requires 'package_name' field"},
		{`{"action":"open_app","package_name":["a"]}`, "package_name must be a string"},

		{`{"action":"screenshot","file_path":1}`, "file_path must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := Decode([]byte(tt.in))
			require.Error(t, err)
			assert.Nil(t, a)
			assert.True(t, errors.Is(err, core.ErrInvalidAction), "expected ErrInvalidAction, got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidate_Programmatic(t *testing.T) {
	assert.Error(t, LongPress{Duration: IntPtr(-1)}.Validate())
	assert.Error(t, Swipe{Duration: IntPtr(-10)}.Validate())
	assert.Error(t, OpenApp{}.Validate())
	assert.Error(t, StartIntent{URI: "u"}.Validate())
	assert.NoError(t, Tap{}.Validate())
	assert.NoError(t, Swipe{}.Validate())
}

func TestPeekKind(t *testing.T) {
	assert.Equal(t, "tap", PeekKind([]byte(`{"action":"tap"}`)))
	assert.Equal(t, "fly", PeekKind([]byte(`{"action":"fly"}`)))
	assert.Equal(t, "", PeekKind([]byte(`{"action":1}`)))
	assert.Equal(t, "", PeekKind([]byte(`nonsense`)))
}

func TestDecodeBatch(t *testing.T) {
	items, err := DecodeBatch([]byte(`[{"action":"home"}, {"action":"fly"}, 3]`))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.JSONEq(t, `{"action":"fly"}`, string(items[1]))

	_, err = DecodeBatch([]byte(`{"action":"home"}`))
	assert.ErrorContains(t, err, "JSON array")

	_, err = DecodeBatch([]byte(`[`))
	assert.Error(t, err)
}

func TestKindIsValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, Kind("fly").IsValid())
	assert.Len(t, Kinds, 13)
}
