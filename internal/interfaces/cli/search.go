package cli

import (
	"strings"

	"github.com/spf13/cobra"

	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// NewSearchCmd creates the search command: full-text search over the pool,
// ranked by relevance.
func NewSearchCmd(build DepsBuilder) *cobra.Command {
	var (
		source string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "search <text> ...",
		Short: "Full-text search over the research pool",
		Long: "Search matches the given text against item titles, content, and tags,\n" +
			"ranked by relevance. Multiple arguments are joined into one query.",
		Example: "  respool search creatine loading\n" +
			"  respool search \"sleep quality\" --source biomed --limit 10 -o table",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return appErrors.InvalidParam("search text must not be blank")
			}

			filter := rtypes.NewQueryFilter()
			filter.Sort = rtypes.SortByRelevance
			filter.Limit = limit
			filter.Offset = offset
			if source != "" {
				parsed, parseErr := rtypes.ParseSource(source)
				if parseErr != nil {
					return appErrors.InvalidParam(parseErr.Error())
				}
				filter.Source = &parsed
			}
			filter.Normalize()
			if err := filter.Validate(); err != nil {
				return appErrors.InvalidParam(err.Error())
			}

			deps, err := build(cmd.Context(), cliCtx)
			if err != nil {
				return err
			}
			defer deps.shutdown(cliCtx.Logger)

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			items, total, err := deps.Repo.Search(ctx, query, filter)
			if err != nil {
				return err
			}

			return PrintResult(cmd, newItemPage(items, total, filter))
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "restrict results to one source")
	cmd.Flags().IntVar(&limit, "limit", rtypes.DefaultQueryLimit, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")

	return cmd
}
