package hierarchy

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/device/mock"
)

const loginDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" content-desc="" clickable="false" focusable="false" bounds="[0,0][1080,2400]">
    <node index="0" text="Welcome" resource-id="com.example:id/title" class="android.widget.TextView" content-desc="" clickable="false" focusable="false" bounds="[40,100][1040,180]" />
    <node index="1" text="" resource-id="com.example:id/username" class="android.widget.EditText" content-desc="" clickable="true" focusable="true" bounds="[40,300][1040,400]" />
    <node index="2" text="Login" resource-id="com.example:id/login" class="android.widget.Button" content-desc="" clickable="true" focusable="true" bounds="[100,200][300,400]" />
    <node index="3" text="" resource-id="" class="android.widget.ImageView" content-desc="Settings" clickable="false" focusable="false" bounds="[900,50][1000,150]" />
    <node index="4" text="" resource-id="com.example:id/spacer" class="android.view.View" content-desc="" clickable="false" focusable="false" bounds="[0,0][10,10]" />
  </node>
</hierarchy>`

func TestParseBounds(t *testing.T) {
	tests := []struct {
		in      string
		want    Rect
		wantErr bool
	}{
		{"[10,20][110,220]", Rect{10, 20, 110, 220}, false},
		{"[0,0][1080,2400]", Rect{0, 0, 1080, 2400}, false},
		{"[-5,-10][5,10]", Rect{-5, -10, 5, 10}, false},
		{"", Rect{}, true},
		{"[10,20][110]", Rect{}, true},
		{"[10,20,110,220]", Rect{}, true},
		{"[a,b][c,d]", Rect{}, true},
		{" [10,20][110,220]", Rect{}, true},
		{"[1.5,2][3,4]", Rect{}, true},
	}

	for _, tt := range tests {
		got, err := ParseBounds(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBounds(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBounds(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestRectCenter(t *testing.T) {
	r, err := ParseBounds("[10,20][110,220]")
	if err != nil {
		t.Fatal(err)
	}
	if c := r.Center(); c != (core.Point{X: 60, Y: 120}) {
		t.Errorf("expected (60, 120), got %s", c)
	}

	// Truncating, not rounding
	if c := (Rect{0, 0, 3, 5}).Center(); c != (core.Point{X: 1, Y: 2}) {
		t.Errorf("expected (1, 2), got %s", c)
	}
	if c := (Rect{-3, -3, 0, 0}).Center(); c != (core.Point{X: -1, Y: -1}) {
		t.Errorf("expected (-1, -1), got %s", c)
	}
}

func TestParse(t *testing.T) {
	elements, err := Parse(loginDump)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []Element{
		{ID: "com.example:id/title", Text: "Welcome", RawText: "Welcome", Type: "TextView", Bounds: "[40,100][1040,180]",
			Center: core.Point{X: 540, Y: 140}, Action: ActionRead},
		{ID: "com.example:id/username", Type: "EditText", Bounds: "[40,300][1040,400]",
			Center: core.Point{X: 540, Y: 350}, Clickable: true, Focusable: true, Action: ActionTap},
		{ID: "com.example:id/login", Text: "Login", RawText: "Login", Type: "Button", Bounds: "[100,200][300,400]",
			Center: core.Point{X: 200, Y: 300}, Clickable: true, Focusable: true, Action: ActionTap},
		{Text: "Settings", Description: "Settings", Type: "ImageView", Bounds: "[900,50][1000,150]",
			Center: core.Point{X: 950, Y: 100}, Action: ActionRead},
	}

	if diff := cmp.Diff(want, elements, cmpopts.IgnoreFields(Element{}, "Rect")); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_RetentionInvariant(t *testing.T) {
	elements, err := Parse(loginDump)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range elements {
		if !e.Clickable && !e.Focusable && e.Text == "" && e.Description == "" {
			t.Errorf("element should have been dropped: %+v", e)
		}
	}
}

func TestParse_MalformedBoundsSkipsOnlyOwner(t *testing.T) {
	dump := `<hierarchy>
  <node text="Broken" bounds="[0,0][10]" clickable="true">
    <node text="Child" bounds="[0,0][10,10]" />
  </node>
  <node text="Sibling" bounds="[20,20][40,40]" />
  <node text="NoBounds" />
</hierarchy>`

	elements, err := Parse(dump)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var texts []string
	for _, e := range elements {
		texts = append(texts, e.Text)
	}
	if diff := cmp.Diff([]string{"Child", "Sibling"}, texts); diff != "" {
		t.Errorf("unexpected elements (-want +got):\n%s", diff)
	}
}

func TestParse_FocusAttribute(t *testing.T) {
	dump := `<hierarchy><node focus="true" bounds="[0,0][10,10]" class="android.widget.EditText"/></hierarchy>`

	elements, err := Parse(dump)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 1 || !elements[0].Focusable {
		t.Fatalf("expected one focusable element, got %+v", elements)
	}
	if elements[0].Action != ActionRead {
		t.Errorf("expected action read, got %s", elements[0].Action)
	}
}

func TestParse_TypeWithoutClass(t *testing.T) {
	dump := `<hierarchy><node text="x" bounds="[0,0][10,10]"/><node text="y" class="Plain" bounds="[0,0][10,10]"/></hierarchy>`

	elements, err := Parse(dump)
	if err != nil {
		t.Fatal(err)
	}
	if elements[0].Type != "" {
		t.Errorf("expected empty type, got %q", elements[0].Type)
	}
	if elements[1].Type != "Plain" {
		t.Errorf("expected Plain, got %q", elements[1].Type)
	}
}

func TestParse_PreOrder(t *testing.T) {
	dump := `<hierarchy>
  <node text="a" bounds="[0,0][1,1]">
    <node text="b" bounds="[0,0][1,1]">
      <node text="c" bounds="[0,0][1,1]"/>
    </node>
    <node text="d" bounds="[0,0][1,1]"/>
  </node>
  <node text="e" bounds="[0,0][1,1]"/>
</hierarchy>`

	elements, err := Parse(dump)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, e := range elements {
		order = append(order, e.Text)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_BrokenDocument(t *testing.T) {
	tests := []struct {
		name string
		dump string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"unclosed", `<hierarchy><node text="a" bounds="[0,0][1,1]">`},
		{"mismatched", `<hierarchy><node></hierarchy>`},
		{"not xml", "ERROR: could not get idle state."},
		{"two roots", `<hierarchy/><hierarchy/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elements, err := Parse(tt.dump)
			if err == nil {
				t.Fatalf("expected parse error, got %+v", elements)
			}
			if elements != nil {
				t.Errorf("expected nil elements, got %+v", elements)
			}
			if !errors.Is(err, core.ErrParse) {
				t.Errorf("expected ErrParse, got %v", err)
			}
		})
	}
}

func TestParseAll(t *testing.T) {
	elements, err := ParseAll(loginDump)
	if err != nil {
		t.Fatal(err)
	}
	// Root frame and spacer are included; hierarchy has no bounds.
	if len(elements) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(elements))
	}
	if elements[0].Type != "FrameLayout" {
		t.Errorf("expected FrameLayout first, got %s", elements[0].Type)
	}
}

func TestSummarize(t *testing.T) {
	elements, err := Parse(loginDump)
	if err != nil {
		t.Fatal(err)
	}

	summary := Summarize(elements)
	want := []SummaryElement{
		{Text: "Welcome", ID: "title", Center: core.Point{X: 540, Y: 140}, Type: "TextView"},
		{ID: "username", Center: core.Point{X: 540, Y: 350}, Type: "EditText"},
		{Text: "Login", ID: "login", Center: core.Point{X: 200, Y: 300}, Type: "Button"},
		{Text: "Settings", Desc: "Settings", Center: core.Point{X: 950, Y: 100}, Type: "ImageView"},
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_DropsPlainInteractive(t *testing.T) {
	elements := []Element{{ID: "", Clickable: true, Action: ActionTap}}
	if got := Summarize(elements); len(got) != 0 {
		t.Errorf("expected empty summary, got %+v", got)
	}
}

// isolateTemp points the process temp dir at a fresh directory.
func isolateTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)
	return dir
}

func assertNoLocalDumps(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("local artifact left behind: %s", e.Name())
	}
}

func TestCapture(t *testing.T) {
	tmp := isolateTemp(t)
	gw := mock.New(mock.Config{DumpXML: loginDump})

	dump, err := Capture(context.Background(), gw, CaptureOptions{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if dump != loginDump {
		t.Error("expected captured dump to match device dump")
	}
	if gw.HasFile(DefaultDumpPath) {
		t.Error("expected device dump to be removed")
	}

	want := []string{
		"shell uiautomator dump /sdcard/window_dump.xml",
		"pull /sdcard/window_dump.xml",
		"shell rm /sdcard/window_dump.xml",
	}
	cmds := gw.Commands()
	if len(cmds) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), cmds)
	}
	for i, prefix := range want {
		if len(cmds[i]) < len(prefix) || cmds[i][:len(prefix)] != prefix {
			t.Errorf("command %d: expected prefix %q, got %q", i, prefix, cmds[i])
		}
	}
	assertNoLocalDumps(t, tmp)
}

func TestCapture_Disconnected(t *testing.T) {
	gw := mock.New(mock.Config{Disconnected: true})

	_, err := Capture(context.Background(), gw, CaptureOptions{})
	if !errors.Is(err, core.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if gw.CallCount() != 0 {
		t.Errorf("expected no commands, got %v", gw.Commands())
	}
}

func TestCapture_DumpErrorStillCleansUp(t *testing.T) {
	gw := mock.New(mock.Config{})
	gw.On("shell uiautomator dump", core.CommandOutput{Stderr: "ERROR: null root node returned by UiTestAutomationBridge."})

	_, err := Capture(context.Background(), gw, CaptureOptions{DumpPath: "/sdcard/custom.xml"})
	if err == nil {
		t.Fatal("expected dump failure")
	}
	if gw.Count("shell rm /sdcard/custom.xml") != 1 {
		t.Errorf("expected cleanup rm, got %v", gw.Commands())
	}
}

func TestCapture_PullFailure(t *testing.T) {
	tmp := isolateTemp(t)
	gw := mock.New(mock.Config{DumpXML: loginDump, FailPull: true})

	_, err := Capture(context.Background(), gw, CaptureOptions{})
	if err == nil {
		t.Fatal("expected pull failure")
	}
	if gw.HasFile(DefaultDumpPath) {
		t.Error("expected device dump to be removed after pull failure")
	}
	assertNoLocalDumps(t, tmp)
}

func TestSnapshot_BrokenDumpCleansUp(t *testing.T) {
	tmp := isolateTemp(t)
	gw := mock.New(mock.Config{DumpXML: "<hierarchy><node"})

	elements, err := Snapshot(context.Background(), gw, CaptureOptions{})
	if !errors.Is(err, core.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if elements != nil {
		t.Errorf("expected nil elements, got %+v", elements)
	}
	if gw.HasFile(DefaultDumpPath) {
		t.Error("expected device dump to be removed")
	}
	assertNoLocalDumps(t, tmp)
}

func TestSnapshot_EndToEndLogin(t *testing.T) {
	dump := `<hierarchy><node text="Login" clickable="true" bounds="[100,200][300,400]" class="android.widget.Button"/></hierarchy>`
	gw := mock.New(mock.Config{DumpXML: dump})

	elements, err := Snapshot(context.Background(), gw, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 1 || elements[0].Center != (core.Point{X: 200, Y: 300}) {
		t.Errorf("unexpected elements: %+v", elements)
	}
}
