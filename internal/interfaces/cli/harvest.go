package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/pipeline"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// NewHarvestCmd creates the harvest command. Each named source gets one full
// pipeline run: scan, harvest, analyze, normalize, validate, score, publish.
func NewHarvestCmd(build DepsBuilder) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "harvest [source ...]",
		Short: "Run the harvest pipeline for one or more sources",
		Long: "Harvest runs the full pipeline for each named source and reports the\n" +
			"per-run outcome and stage counters. Sources run sequentially; a failing\n" +
			"source does not stop the remaining ones.",
		Example: "  respool harvest news\n" +
			"  respool harvest news biomed --timeout 5m\n" +
			"  respool harvest --all -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			if len(args) == 0 && !all {
				return appErrors.InvalidParam("name at least one source or pass --all")
			}
			if len(args) > 0 && all {
				return appErrors.InvalidParam("--all cannot be combined with named sources")
			}

			// Parse before building dependencies so a typo costs nothing.
			named := make([]rtypes.Source, 0, len(args))
			for _, raw := range args {
				source, parseErr := rtypes.ParseSource(raw)
				if parseErr != nil {
					return appErrors.InvalidParam(parseErr.Error())
				}
				named = append(named, source)
			}

			deps, err := build(cmd.Context(), cliCtx)
			if err != nil {
				return err
			}
			defer deps.shutdown(cliCtx.Logger)

			sources := named
			if all {
				sources = deps.Runner.Sources()
				if len(sources) == 0 {
					return appErrors.NotFound("no sources are configured")
				}
			}

			report := &harvestReport{}
			failed := 0
			for _, source := range sources {
				result, runErr := runSource(cmd.Context(), deps.Runner, source, cliCtx.Timeout)
				if runErr != nil {
					failed++
					PrintError(cmd, fmt.Errorf("harvest %s: %w", source, runErr))
					continue
				}
				report.Runs = append(report.Runs, result)
			}

			if len(report.Runs) > 0 {
				if err := PrintResult(cmd, report); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d source run(s) failed", failed, len(sources))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "run every configured source")

	return cmd
}

// runSource executes one pipeline run bounded by the per-operation timeout.
func runSource(parent context.Context, runner PipelineRunner, source rtypes.Source, timeout time.Duration) (*pipeline.Result, error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}
	return runner.Run(ctx, source)
}

// harvestReport aggregates run results for output formatting.
type harvestReport struct {
	Runs []*pipeline.Result `json:"runs"`
}

func (r *harvestReport) TableHeaders() []string {
	return []string{"SOURCE", "OUTCOME", "FOUND", "PUBLISHED", "FAILED", "DURATION"}
}

func (r *harvestReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Runs))
	for _, run := range r.Runs {
		rows = append(rows, []string{
			string(run.Source),
			string(run.Outcome),
			strconv.FormatInt(run.Stats.Found, 10),
			strconv.FormatInt(run.Stats.Published, 10),
			strconv.FormatInt(run.Stats.Failed, 10),
			run.Duration().Round(time.Millisecond).String(),
		})
	}
	return rows
}

func (r *harvestReport) String() string {
	var sb strings.Builder
	for _, run := range r.Runs {
		fmt.Fprintf(&sb, "%s: %s (found %d, published %d, failed %d) in %s\n",
			run.Source, run.Outcome,
			run.Stats.Found, run.Stats.Published, run.Stats.Failed,
			run.Duration().Round(time.Millisecond))
		if run.ErrorSummary != "" {
			fmt.Fprintf(&sb, "  errors: %s\n", run.ErrorSummary)
		}
		if run.RetryScheduled {
			fmt.Fprintf(&sb, "  retry scheduled in %s\n", run.RetryAfter)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
