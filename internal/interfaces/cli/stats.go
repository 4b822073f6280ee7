package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// NewStatsCmd creates the stats command: pool-wide counters and averages.
func NewStatsCmd(build DepsBuilder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show research pool statistics",
		Long: "Stats reports pool-wide totals: item counts by source and compliance\n" +
			"status, the average score, and the most frequent tags.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			deps, err := build(cmd.Context(), cliCtx)
			if err != nil {
				return err
			}
			defer deps.shutdown(cliCtx.Logger)

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			stats, err := deps.Repo.Stats(ctx)
			if err != nil {
				return err
			}

			return PrintResult(cmd, &statsReport{PoolStats: stats})
		},
	}

	return cmd
}

// statsReport wraps PoolStats for output formatting. JSON output keeps the
// PoolStats field names through embedding.
type statsReport struct {
	*research.PoolStats
}

func (r *statsReport) TableHeaders() []string {
	return []string{"METRIC", "VALUE"}
}

func (r *statsReport) TableRows() [][]string {
	rows := [][]string{
		{"total items", strconv.FormatInt(r.Total, 10)},
		{"average score", strconv.FormatFloat(r.AverageScore, 'f', 2, 64)},
	}
	for _, source := range rtypes.AllSources() {
		if count, ok := r.BySource[source]; ok {
			rows = append(rows, []string{"source " + string(source), strconv.FormatInt(count, 10)})
		}
	}
	for _, status := range []rtypes.ComplianceStatus{
		rtypes.ComplianceCompliant, rtypes.ComplianceWarning, rtypes.ComplianceRejected,
	} {
		if count, ok := r.ByCompliance[status]; ok {
			rows = append(rows, []string{
				"compliance " + strings.ToLower(string(status)),
				strconv.FormatInt(count, 10),
			})
		}
	}
	for _, tc := range r.TopTags {
		rows = append(rows, []string{"tag " + tc.Tag, strconv.FormatInt(tc.Count, 10)})
	}
	return rows
}

func (r *statsReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pool: %d item(s), average score %.2f\n", r.Total, r.AverageScore)

	if len(r.BySource) > 0 {
		sb.WriteString("by source:\n")
		for _, source := range rtypes.AllSources() {
			if count, ok := r.BySource[source]; ok {
				fmt.Fprintf(&sb, "  %-12s %d\n", source, count)
			}
		}
	}
	if len(r.ByCompliance) > 0 {
		sb.WriteString("by compliance:\n")
		for _, status := range []rtypes.ComplianceStatus{
			rtypes.ComplianceCompliant, rtypes.ComplianceWarning, rtypes.ComplianceRejected,
		} {
			if count, ok := r.ByCompliance[status]; ok {
				fmt.Fprintf(&sb, "  %-12s %d\n", strings.ToLower(string(status)), count)
			}
		}
	}
	if len(r.TopTags) > 0 {
		sb.WriteString("top tags:\n")
		for _, tc := range r.TopTags {
			fmt.Fprintf(&sb, "  %-12s %d\n", tc.Tag, tc.Count)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
