package cli

import (
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/visual"
)

var visualCommand = &cli.Command{
	Name:  "visual",
	Usage: "Locate a template image on the current screen",
	Description: `Takes a screenshot and searches it for the template. The argument is
either an image path or a template name looked up in --dir with the
extensions .png, .jpg and .jpeg.

Exits 1 when the best match is below the threshold.

Examples:
  droid-agent visual ./templates/send.png
  droid-agent visual --dir ./templates --threshold 0.9 send`,
	ArgsUsage: "<template>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Template directory (default: <home>/templates)",
		},
		&cli.Float64Flag{
			Name:  "threshold",
			Usage: "Minimum confidence (default from config, 0.8)",
		},
	},
	Action: withSession(runVisual),
}

func runVisual(c *cli.Context, s *session) error {
	name := c.Args().First()
	if name == "" {
		return fail(c, core.ErrTemplateMissing.WithMessage("Template name or path required"))
	}

	threshold := s.cfg.VisualThreshold
	if c.IsSet("threshold") {
		threshold = c.Float64("threshold")
	}

	var (
		match *visual.Match
		err   error
	)
	if isImagePath(name) {
		match, err = s.matcher().Find(c.Context, name, threshold)
	} else {
		dir := c.String("dir")
		if dir == "" {
			dir = s.cfg.TemplatesDir()
		}
		match, err = s.matcher().FindInDirectory(c.Context, dir, name, threshold)
	}
	if err != nil {
		return fail(c, err)
	}

	code := exitOK
	if !match.Found() {
		code = exitFailure
	}
	return emit(c, match, code)
}

// isImagePath reports whether p looks like an image path rather than a
// template name.
func isImagePath(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range visual.TemplateExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
