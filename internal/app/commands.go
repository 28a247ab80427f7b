package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"identity-center-reporter/internal/config"
	"identity-center-reporter/internal/datetime"
	"identity-center-reporter/internal/report"
)

// columnSets maps --columns values onto export column sets
var columnSets = map[string][]string{
	"default": report.DefaultColumns,
	"profile": report.ProfileColumns,
}

func columnsFor(name string) ([]string, error) {
	columns, ok := columnSets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown column set %q (expected default or profile)", name)
	}
	return columns, nil
}

// outputPath returns the configured output file or a timestamped default
func outputPath(configured string, prefix string) string {
	if configured != "" {
		return configured
	}
	return report.DefaultFilename(prefix, time.Now())
}

// applicationScope is an opened directory with the resolved identity store and application
type applicationScope struct {
	directory      Directory
	directoryID    string
	applicationARN string
}

func openApplication(ctx context.Context, openDirectory DirectoryFactory, rt *runtime) (*applicationScope, error) {
	directory, err := openDirectory(ctx, rt.cfg, rt.logger)
	if err != nil {
		return nil, err
	}
	directoryID, err := directory.ResolveDirectoryID(ctx)
	if err != nil {
		return nil, err
	}
	applicationARN, err := directory.ApplicationARN(ctx, rt.cfg.ApplicationARN)
	if err != nil {
		return nil, err
	}
	return &applicationScope{directory: directory, directoryID: directoryID, applicationARN: applicationARN}, nil
}

func newAppUsersCommand(openDirectory DirectoryFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app-users",
		Short: "Export every user that can reach an application",
		Long:  "Collects direct and group assignments of an Identity Center application, resolves each user once and writes them to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if err := config.ValidateApplicationConfig(rt.cfg); err != nil {
				return err
			}

			columnSet, _ := cmd.Flags().GetString("columns")
			columns, err := columnsFor(columnSet)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			scope, err := openApplication(ctx, openDirectory, rt)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "🔍 Collecting users for %s\n", scope.applicationARN)

			users, err := report.NewAggregator(scope.directory, rt.logger).Aggregate(ctx, scope.directoryID, scope.applicationARN)
			if err != nil {
				return err
			}
			if users.Len() == 0 {
				fmt.Fprintf(out, "ℹ️  No users are assigned to %s\n", scope.applicationARN)
				return nil
			}

			profiles, err := report.NewResolver(scope.directory, rt.logger).ResolveAll(ctx, scope.directoryID, users.Sorted())
			if err != nil {
				return err
			}
			degraded := 0
			for _, profile := range profiles {
				if profile.Degraded {
					degraded++
				}
			}

			path := outputPath(rt.cfg.OutputFile, "app_users")
			if err := report.ExportCSV(report.ProfileRecords(profiles, columns), columns, path); err != nil {
				if errors.Is(err, report.ErrNoRecords) {
					fmt.Fprintf(out, "ℹ️  No user data to export\n")
					return nil
				}
				return err
			}

			fmt.Fprintf(out, "✅ Exported %d users to %s\n", len(profiles), path)
			if degraded > 0 {
				fmt.Fprintf(out, "⚠️  %d users could not be resolved and carry only their id\n", degraded)
			}
			return nil
		},
	}

	cmd.Flags().String("application", "", "Application ARN or apl- id")
	cmd.Flags().String("output", "", "CSV output path (default app_users_<timestamp>.csv)")
	cmd.Flags().String("columns", "default", "Column set: default or profile")

	return cmd
}

// groupColumns heads the group membership export
var groupColumns = append([]string{"GroupId", "GroupName"}, report.DefaultColumns...)

func newGroupsCommand(openDirectory DirectoryFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Summarize the groups assigned to an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if err := config.ValidateApplicationConfig(rt.cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			scope, err := openApplication(ctx, openDirectory, rt)
			if err != nil {
				return err
			}

			resolver := report.NewResolver(scope.directory, rt.logger)
			summary, err := report.NewAggregator(scope.directory, rt.logger).GroupSummary(ctx, scope.directoryID, scope.applicationARN, resolver)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "👥 Groups assigned to %s\n\n", scope.applicationARN)
			var records []report.ExportRecord
			for _, group := range summary.Groups {
				fmt.Fprintf(out, "%s (%s): %d users\n", group.DisplayName, group.ID, len(group.Members))
				for _, member := range group.Members {
					name := member.DisplayName
					if name == "" {
						name = member.UserID
					}
					fmt.Fprintf(out, "   - %s %s\n", name, member.Email)

					record := report.NewExportRecord("GroupId", group.ID, "GroupName", group.DisplayName)
					for _, field := range report.ProfileRecord(member, report.DefaultColumns).Fields() {
						record.Set(field.Key, field.Value)
					}
					records = append(records, record)
				}
			}

			fmt.Fprintf(out, "\n📊 %d groups, %d memberships, %d unique users\n", len(summary.Groups), summary.TotalUsers, summary.UniqueUsers)

			if rt.cfg.OutputFile == "" {
				return nil
			}
			if err := report.ExportCSV(records, groupColumns, rt.cfg.OutputFile); err != nil {
				if errors.Is(err, report.ErrNoRecords) {
					fmt.Fprintf(out, "ℹ️  No group members to export\n")
					return nil
				}
				return err
			}
			fmt.Fprintf(out, "✅ Exported %d memberships to %s\n", len(records), rt.cfg.OutputFile)
			return nil
		},
	}

	cmd.Flags().String("application", "", "Application ARN or apl- id")
	cmd.Flags().String("output", "", "Optional CSV output path for group memberships")

	return cmd
}

func newActivityCommand(openDirectory DirectoryFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Resolve the users of a last-activity report",
		Long:  "Reads a CSV of user id and last-activity date, resolves each user in the directory and writes an enriched CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if err := config.ValidateDirectoryConfig(rt.cfg); err != nil {
				return err
			}

			input, _ := cmd.Flags().GetString("input")
			if input == "" {
				return fmt.Errorf("--input is required")
			}

			out := cmd.OutOrStdout()
			rows, err := report.ReadActivityCSV(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "📥 Read %d activity rows from %s\n", len(rows), input)

			dateFormat, _ := cmd.Flags().GetString("date-format")
			if dateFormat != "" {
				timezone, _ := cmd.Flags().GetString("timezone")
				parser, err := datetime.NewParser(timezone)
				if err != nil {
					return err
				}
				rows = report.NormalizeActivityDates(rows, parser, dateFormat, rt.logger)
			}

			ctx := cmd.Context()
			directory, err := openDirectory(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			directoryID, err := directory.ResolveDirectoryID(ctx)
			if err != nil {
				return err
			}

			profiles, err := report.NewResolver(directory, rt.logger).ResolveActivity(ctx, directoryID, rows)
			if err != nil {
				return err
			}

			path := outputPath(rt.cfg.OutputFile, "user_activity")
			if err := report.ExportCSV(report.ProfileRecords(profiles, report.ActivityColumns), report.ActivityColumns, path); err != nil {
				if errors.Is(err, report.ErrNoRecords) {
					fmt.Fprintf(out, "ℹ️  No user data to export\n")
					return nil
				}
				return err
			}

			fmt.Fprintf(out, "✅ Exported %d users to %s\n", len(profiles), path)
			return nil
		},
	}

	cmd.Flags().String("input", "", "Activity CSV (user id, last-activity date)")
	cmd.Flags().String("output", "", "CSV output path (default user_activity_<timestamp>.csv)")
	cmd.Flags().String("date-format", "", "Rewrite last-activity values with this Go layout, e.g. "+datetime.DateOnlyFormat)
	cmd.Flags().String("timezone", "", "Timezone for last-activity values without an offset (default UTC)")

	return cmd
}

func newQueryReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query-report",
		Short: "Run the Athena usage query and mail the result",
		Long:  "Runs the configured Athena query, downloads its CSV result and sends it as an email attachment",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "🚀 Running query against %s\n", rt.cfg.Query.Database)
			if err := RunQueryReport(cmd.Context(), rt.cfg, rt.logger); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "📧 Query results sent to %s\n", strings.Join(rt.cfg.Email.Recipients, ", "))
			return nil
		},
	}
}
