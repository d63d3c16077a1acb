package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yungbote/lotline-backend/internal/app"
)

type TraceOptions struct {
	*RootOptions
	Direction string
	Depth     int
	Refresh   bool
}

func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "trace <lot-code>",
		Short: "Walk a lot's genealogy",
		Long: `Walk the genealogy of a lot.

  back     ancestors (inputs) up to --depth hops
  forward  descendants (outputs) up to --depth hops
  tree     both directions up to --depth hops
  report   the recall report: full tree, inspections, temperature violations

Examples:
  lotline trace RAW-20260124-DUNA-0001 --direction forward --depth 3
  lotline trace MIX-20260124-DUNA-0002 --direction report --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Direction, "direction", "tree", "back|forward|tree|report")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "maximum hops (default from policy)")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "recompute the report instead of using the stored one")
	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	dir := strings.ToLower(strings.TrimSpace(opts.Direction))
	switch dir {
	case "back", "forward", "tree", "report":
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid direction %q: must be back, forward, tree or report", opts.Direction))
	}
	if opts.Depth < 0 {
		return NewExitError(ExitCommandError, "--depth must not be negative")
	}

	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		r := TreeRenderer{Color: !color.NoColor}
		trace := a.Services.Trace

		switch dir {
		case "back", "forward":
			walk := trace.TraceBack
			if dir == "forward" {
				walk = trace.TraceForward
			}
			res, err := walk(ctx, code, opts.Depth)
			if err != nil {
				return domainFailure("trace "+dir, err)
			}
			if opts.Format == "json" {
				return writeJSON(out, res)
			}
			return r.RenderTrace(out, res)
		case "tree":
			tree, err := trace.TraceTree(ctx, code, opts.Depth)
			if err != nil {
				return domainFailure("trace tree", err)
			}
			if opts.Format == "json" {
				return writeJSON(out, tree)
			}
			return r.RenderTree(out, tree)
		}

		report := trace.GenealogyReport
		if opts.Refresh {
			report = trace.BuildReport
		}
		rep, err := report(ctx, code)
		if err != nil {
			return domainFailure("genealogy report", err)
		}
		if opts.Format == "json" {
			return writeJSON(out, rep)
		}
		if err := r.RenderTree(out, &rep.Tree); err != nil {
			return err
		}
		fmt.Fprintf(out, "inspections: %d  temperature violations: %d  held lots: %d\n",
			len(rep.Inspections), len(rep.TemperatureViolations), len(rep.HeldLots))
		for _, h := range rep.HeldLots {
			fmt.Fprintf(out, "  %s %s\n", color.YellowString("HOLD"), h)
		}
		return nil
	})
}
