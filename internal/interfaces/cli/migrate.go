package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// NewMigrateCmd groups the schema migration subcommands. Migrations talk to
// the configured database directly; no other platform services are touched,
// so no DepsBuilder is involved.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: "Migrate applies, rolls back, and inspects the research pool schema using\n" +
			"the migration files configured under database.migration_path.",
	}

	cmd.AddCommand(
		newMigrateUpCmd(),
		newMigrateDownCmd(),
		newMigrateStatusCmd(),
		newMigrateForceCmd(),
	)

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			dbURL := postgres.DSN(cliCtx.Config.Database)
			if err := postgres.MigrateUp(dbURL, migrationSourceURL(cliCtx, path)); err != nil {
				return err
			}
			PrintSuccess(cmd, "migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "migrations directory (default: database.migration_path)")

	return cmd
}

func newMigrateDownCmd() *cobra.Command {
	var (
		path  string
		steps int
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  "Down rolls the schema back by --steps migrations. Development and test\nenvironments only.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			dbURL := postgres.DSN(cliCtx.Config.Database)
			if err := postgres.MigrateDown(dbURL, migrationSourceURL(cliCtx, path), steps); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "migrations directory (default: database.migration_path)")
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			dbURL := postgres.DSN(cliCtx.Config.Database)
			version, dirty, err := postgres.MigrationStatus(dbURL, migrationSourceURL(cliCtx, path))
			if err != nil {
				return err
			}
			return PrintResult(cmd, migrationStatus{Version: version, Dirty: dirty})
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "migrations directory (default: database.migration_path)")

	return cmd
}

func newMigrateForceCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the recorded schema version without running migrations",
		Long: "Force overwrites the recorded schema version. Only for manual recovery\n" +
			"after a failed migration left the schema dirty.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			version, err := strconv.Atoi(args[0])
			if err != nil {
				return appErrors.InvalidParam(fmt.Sprintf("version must be an integer: %q", args[0]))
			}

			dbURL := postgres.DSN(cliCtx.Config.Database)
			if err := postgres.ForceMigrationVersion(dbURL, migrationSourceURL(cliCtx, path), version); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("schema version forced to %d", version))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "migrations directory (default: database.migration_path)")

	return cmd
}

// migrationSourceURL resolves the migrations source URL. The --path flag wins
// over database.migration_path; bare directories get the file:// scheme.
func migrationSourceURL(cliCtx *CLIContext, pathFlag string) string {
	path := pathFlag
	if path == "" {
		path = cliCtx.Config.Database.MigrationPath
	}
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}

// migrationStatus reports the applied schema version for output formatting.
type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s migrationStatus) TableHeaders() []string {
	return []string{"VERSION", "DIRTY"}
}

func (s migrationStatus) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty)}}
}

func (s migrationStatus) String() string {
	if s.Version == 0 && !s.Dirty {
		return "no migrations applied"
	}
	state := "clean"
	if s.Dirty {
		state = "dirty"
	}
	return fmt.Sprintf("schema version %d (%s)", s.Version, state)
}
