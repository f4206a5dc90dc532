package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/hierarchy"
	"github.com/devicelab-dev/droid-agent/pkg/query"
)

var screenCommand = &cli.Command{
	Name:  "screen",
	Usage: "Print the elements currently on screen",
	Description: `Dump the UI hierarchy of the connected device and print every
interactive or labelled element as JSON.

Examples:
  droid-agent screen
  droid-agent screen --summary
  droid-agent -s emulator-5554 screen`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "summary",
			Usage: "Compact output: text, desc, short id, center and type only",
		},
	},
	Action: withSession(runScreen),
}

var findCommand = &cli.Command{
	Name:  "find",
	Usage: "Find an element and print its center",
	Description: `Without --all, prints the first element (in screen order) whose text,
description or id contains the query, or that matches any of --text,
--id and --desc. With --all, prints every element matching all of the
given filters.

Exits 1 when nothing matches.

Examples:
  droid-agent find Login
  droid-agent find --id send_button
  droid-agent find --all --type EditText --clickable true`,
	ArgsUsage: "[query]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "text", Usage: "Text contains (case-insensitive)"},
		&cli.StringFlag{Name: "id", Usage: "Resource id contains"},
		&cli.StringFlag{Name: "desc", Usage: "Content description contains"},
		&cli.BoolFlag{Name: "all", Usage: "List every element matching all filters"},
		&cli.StringFlag{Name: "type", Usage: "Element type, exact (with --all)"},
		&cli.StringFlag{Name: "clickable", Usage: "true or false (with --all)"},
	},
	Action: withSession(runFind),
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "List every element matching a query",
	ArgsUsage: "<query>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "field",
			Usage: "auto, text, id or desc",
			Value: string(query.FieldAuto),
		},
	},
	Action: withSession(runSearch),
}

func runScreen(c *cli.Context, s *session) error {
	elements, err := hierarchy.Snapshot(c.Context, s.gw, s.capture)
	if err != nil {
		return fail(c, err)
	}
	if c.Bool("summary") {
		return emit(c, hierarchy.Summarize(elements), exitOK)
	}
	return emit(c, elements, exitOK)
}

func runFind(c *cli.Context, s *session) error {
	if c.Bool("all") {
		return runList(c, s)
	}

	criteria := query.Criteria{
		Query:       c.Args().First(),
		Text:        c.String("text"),
		ID:          c.String("id"),
		Description: c.String("desc"),
	}
	if criteria.IsEmpty() {
		return fail(c, core.ErrInvalidAction.WithMessage("find requires a query or one of --text, --id, --desc"))
	}

	elements, err := hierarchy.SnapshotAll(c.Context, s.gw, s.capture)
	if err != nil {
		return fail(c, err)
	}
	e, ok := query.Find(elements, criteria)
	if !ok {
		return emit(c, notFound(criteria.String()), exitFailure)
	}
	return emit(c, e, exitOK)
}

func runList(c *cli.Context, s *session) error {
	filter := query.Filter{
		Text:        c.String("text"),
		ID:          c.String("id"),
		Description: c.String("desc"),
		Type:        c.String("type"),
	}
	if c.IsSet("clickable") {
		switch c.String("clickable") {
		case "true":
			filter.Clickable = boolPtr(true)
		case "false":
			filter.Clickable = boolPtr(false)
		default:
			return fail(c, core.ErrInvalidAction.WithMessage("--clickable must be true or false"))
		}
	}

	elements, err := hierarchy.Snapshot(c.Context, s.gw, s.capture)
	if err != nil {
		return fail(c, err)
	}
	matches := query.List(elements, filter)
	code := exitOK
	if len(matches) == 0 {
		code = exitFailure
	}
	return emit(c, matches, code)
}

func runSearch(c *cli.Context, s *session) error {
	q := c.Args().First()
	if q == "" {
		return fail(c, core.ErrInvalidAction.WithMessage("Query required"))
	}
	field, err := query.ParseField(c.String("field"))
	if err != nil {
		return fail(c, core.ErrInvalidAction.WithMessage(err.Error()))
	}

	elements, err := hierarchy.SnapshotAll(c.Context, s.gw, s.capture)
	if err != nil {
		return fail(c, err)
	}
	return emit(c, map[string]interface{}{"elements": query.Search(elements, q, field)}, exitOK)
}

func notFound(what string) *core.ActionResult {
	return &core.ActionResult{Status: core.StatusNotFound, Message: "No element matches " + what}
}

func boolPtr(b bool) *bool { return &b }
