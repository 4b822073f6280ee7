package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// queryOptions holds the pool query flags before translation to a filter.
type queryOptions struct {
	source     string
	tags       []string
	minScore   float64
	maxScore   float64
	compliance string
	from       string
	to         string
	limit      int
	offset     int
	sortBy     string
}

// NewQueryCmd creates the query command: filtered, paginated pool reads.
func NewQueryCmd(build DepsBuilder) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the research pool with filters",
		Long: "Query reads a page of pool items matching the given predicates. All set\n" +
			"predicates are combined with AND; unset ones match everything.",
		Example: "  respool query --source news --tag creatine --min-score 7\n" +
			"  respool query --compliance warning --sort date --limit 20 -o json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			filter, err := opts.toFilter(cmd)
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

			items, total, err := deps.Repo.Query(ctx, filter)
			if err != nil {
				return err
			}

			return PrintResult(cmd, newItemPage(items, total, filter))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "", "filter by source (aggregator, video, image, news, biomed)")
	f.StringSliceVar(&opts.tags, "tag", nil, "filter by tag, repeatable (items must carry all given tags)")
	f.Float64Var(&opts.minScore, "min-score", 0, "minimum score, inclusive")
	f.Float64Var(&opts.maxScore, "max-score", 0, "maximum score, inclusive")
	f.StringVar(&opts.compliance, "compliance", "", "filter by compliance status (compliant, warning, rejected)")
	f.StringVar(&opts.from, "from", "", "items created at or after this RFC3339 time")
	f.StringVar(&opts.to, "to", "", "items created at or before this RFC3339 time")
	f.IntVar(&opts.limit, "limit", rtypes.DefaultQueryLimit, "page size")
	f.IntVar(&opts.offset, "offset", 0, "page offset")
	f.StringVar(&opts.sortBy, "sort", string(rtypes.SortByScore), "sort key (score, date)")

	return cmd
}

// toFilter translates the flags into a normalized, validated QueryFilter.
// Changed() distinguishes an explicit --min-score 0 from the flag's default.
func (o *queryOptions) toFilter(cmd *cobra.Command) (rtypes.QueryFilter, error) {
	filter := rtypes.NewQueryFilter()
	flags := cmd.Flags()

	if o.source != "" {
		source, err := rtypes.ParseSource(o.source)
		if err != nil {
			return filter, appErrors.InvalidParam(err.Error())
		}
		filter.Source = &source
	}
	filter.Tags = o.tags
	if flags.Changed("min-score") {
		v := o.minScore
		filter.MinScore = &v
	}
	if flags.Changed("max-score") {
		v := o.maxScore
		filter.MaxScore = &v
	}
	if o.compliance != "" {
		status, err := rtypes.ParseComplianceStatus(o.compliance)
		if err != nil {
			return filter, appErrors.InvalidParam(err.Error())
		}
		filter.Compliance = &status
	}
	if o.from != "" {
		t, err := time.Parse(time.RFC3339, o.from)
		if err != nil {
			return filter, appErrors.InvalidParam(fmt.Sprintf("invalid from timestamp: %v", err))
		}
		filter.From = &t
	}
	if o.to != "" {
		t, err := time.Parse(time.RFC3339, o.to)
		if err != nil {
			return filter, appErrors.InvalidParam(fmt.Sprintf("invalid to timestamp: %v", err))
		}
		filter.To = &t
	}
	filter.Limit = o.limit
	filter.Offset = o.offset
	filter.Sort = rtypes.SortKey(strings.ToLower(strings.TrimSpace(o.sortBy)))

	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return filter, appErrors.InvalidParam(err.Error())
	}
	return filter, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Item page output
// ─────────────────────────────────────────────────────────────────────────────

// itemPage wraps one page of pool items for output formatting. Query and
// search both print through it.
type itemPage struct {
	Items  []rtypes.ResearchItemDTO `json:"items"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

func newItemPage(items []*research.ResearchItem, total int64, filter rtypes.QueryFilter) *itemPage {
	page := &itemPage{
		Items:  make([]rtypes.ResearchItemDTO, 0, len(items)),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, item := range items {
		page.Items = append(page.Items, item.ToDTO())
	}
	return page
}

func (p *itemPage) TableHeaders() []string {
	return []string{"ID", "SOURCE", "SCORE", "COMPLIANCE", "TITLE"}
}

func (p *itemPage) TableRows() [][]string {
	rows := make([][]string, 0, len(p.Items))
	for _, item := range p.Items {
		rows = append(rows, []string{
			item.ID.String(),
			string(item.Source),
			strconv.FormatFloat(item.Score, 'f', 2, 64),
			string(item.ComplianceStatus),
			truncate(item.Title, 60),
		})
	}
	return rows
}

func (p *itemPage) String() string {
	if len(p.Items) == 0 {
		return "no items matched"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d item(s):\n", len(p.Items), p.Total)
	for _, item := range p.Items {
		fmt.Fprintf(&sb, "  [%.2f] %-10s %s  %s\n",
			item.Score, item.Source, item.ID, item.Title)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// truncate shortens s to at most max runes, ending in an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
