// Package visual is the screenshot-based fallback when the accessibility
// tree is not enough: it finds a reference image on the current screen.
package visual

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder.
	_ "image/png"  // Register PNG decoder.
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
)

// DefaultThreshold is the minimum confidence for a match.
const DefaultThreshold = 0.8

// TemplateExtensions are tried in order by FindInDirectory.
var TemplateExtensions = []string{".png", ".jpg", ".jpeg"}

// Match is the outcome of a template search. A score below the threshold is
// a normal not_found outcome, not an error.
type Match struct {
	Status     core.Status `json:"status"`
	Template   string      `json:"template,omitempty"`
	Location   core.Point  `json:"location"`
	Center     *core.Point `json:"center,omitempty"`
	Confidence float64     `json:"confidence"`
	Threshold  float64     `json:"threshold"`
}

// Found reports whether the match cleared the threshold.
func (m *Match) Found() bool {
	return m.Status == core.StatusSuccess
}

// Options configures a Matcher.
type Options struct {
	DeviceTempDir string        // default /sdcard
	Timeout       time.Duration // per-command timeout; 0 uses the gateway default
}

// Matcher captures screenshots through a gateway and matches templates
// against them.
type Matcher struct {
	gw   core.Gateway
	opts Options
}

// NewMatcher creates a matcher over gw.
func NewMatcher(gw core.Gateway, opts Options) *Matcher {
	if opts.DeviceTempDir == "" {
		opts.DeviceTempDir = "/sdcard"
	}
	return &Matcher{gw: gw, opts: opts}
}

// Find looks for the template at templatePath on a fresh screenshot. A
// threshold <= 0 means DefaultThreshold.
//
// Errors: ErrTemplateMissing, ErrNoDevice, ErrScreenshotFailed,
// ErrImageUnreadable. Local and device screenshots are removed on every path.
func (m *Matcher) Find(ctx context.Context, templatePath string, threshold float64) (*Match, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if _, err := os.Stat(templatePath); err != nil {
		return nil, core.ErrTemplateMissing.WithMessagef("Template file not found: %s", templatePath)
	}

	local, err := m.capture(ctx)
	if local != "" {
		defer os.Remove(local)
	}
	if err != nil {
		return nil, err
	}

	screen, err := LoadImage(local)
	if err != nil {
		return nil, err
	}
	tmpl, err := LoadImage(templatePath)
	if err != nil {
		return nil, err
	}

	match, err := Compare(screen, tmpl, threshold)
	if err != nil {
		return nil, err
	}
	match.Template = templatePath

	logger.Debug("visual: %s confidence=%.3f threshold=%.2f", templatePath, match.Confidence, threshold)
	return match, nil
}

// FindInDirectory looks for dir/name with each of TemplateExtensions and
// matches the first one that exists.
func (m *Matcher) FindInDirectory(ctx context.Context, dir, name string, threshold float64) (*Match, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, core.ErrTemplateMissing.WithMessagef("Directory not found: %s", dir)
	}
	for _, ext := range TemplateExtensions {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return m.Find(ctx, p, threshold)
		}
	}
	return nil, core.ErrTemplateMissing.WithMessagef("Template '%s' not found in %s", name, dir)
}

// capture takes a screenshot on the device and pulls it to a local temp
// file. The returned path, when non-empty, must be removed by the caller
// even if err is set. The device file is always removed.
func (m *Matcher) capture(ctx context.Context) (string, error) {
	if !m.gw.IsConnected(ctx) {
		return "", core.ErrNoDevice
	}

	remote := path.Join(m.opts.DeviceTempDir, "visual_"+uuid.NewString()+".png")
	defer m.gw.Execute(ctx, []string{"shell", "rm", remote}, m.opts.Timeout)

	out := m.gw.Execute(ctx, []string{"shell", "screencap", "-p", remote}, m.opts.Timeout)
	if !out.OK() {
		return "", core.ErrScreenshotFailed.WithMessagef("Failed to take screenshot: %s", out.Diagnostic())
	}

	f, err := os.CreateTemp("", "visual_*.png")
	if err != nil {
		return "", core.ErrScreenshotFailed.WithCause(err)
	}
	local := f.Name()
	f.Close()

	out = m.gw.Execute(ctx, []string{"pull", remote, local}, m.opts.Timeout)
	if !out.OK() {
		return local, core.ErrScreenshotFailed.WithMessagef("Failed to pull screenshot: %s", out.Diagnostic())
	}
	if info, err := os.Stat(local); err != nil || info.Size() == 0 {
		return local, core.ErrScreenshotFailed.WithMessage("Screenshot file not found after pull")
	}
	return local, nil
}

// Compare matches tmpl against screen and applies the threshold.
func Compare(screen, tmpl image.Image, threshold float64) (*Match, error) {
	loc, confidence, err := MatchTemplate(screen, tmpl)
	if err != nil {
		return nil, core.ErrImageUnreadable.WithMessage(err.Error())
	}

	match := &Match{
		Status:     core.StatusNotFound,
		Location:   core.Point{X: loc.X, Y: loc.Y},
		Confidence: confidence,
		Threshold:  threshold,
	}
	if confidence >= threshold {
		b := tmpl.Bounds()
		match.Status = core.StatusSuccess
		match.Center = &core.Point{X: loc.X + b.Dx()/2, Y: loc.Y + b.Dy()/2}
	}
	return match, nil
}

// LoadImage decodes a PNG or JPEG file.
func LoadImage(p string) (image.Image, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, core.ErrImageUnreadable.WithCause(err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, core.ErrImageUnreadable.
			WithMessage(fmt.Sprintf("Failed to load images for processing: %s", filepath.Base(p))).
			WithCause(err)
	}
	return img, nil
}
