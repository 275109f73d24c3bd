package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arkilian/metatables/internal/app"
	"github.com/arkilian/metatables/internal/export"
	"github.com/arkilian/metatables/internal/metatable"
	"github.com/arkilian/metatables/internal/query/executor"
	"github.com/arkilian/metatables/internal/query/parser"
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/internal/table"
)

// scanFlags refine a metadata-table scan.
type scanFlags struct {
	filter          string
	columns         []string
	snapshotID      int64
	caseInsensitive bool
	ignoreResiduals bool
	columnStats     bool
}

func (f *scanFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.filter, "filter", "", `Row filter, e.g. "status = 1 and data_file.record_count > 10"`)
	fs.StringSliceVar(&f.columns, "select", nil, "Columns to project (dotted names for nested fields)")
	fs.Int64Var(&f.snapshotID, "snapshot-id", 0, "Scan as of this snapshot (entries only)")
	fs.BoolVar(&f.caseInsensitive, "case-insensitive", false, "Bind column names case-insensitively")
	fs.BoolVar(&f.ignoreResiduals, "ignore-residuals", false, "Do not evaluate the filter per row")
	fs.BoolVar(&f.columnStats, "column-stats", false, "Keep column statistics in data_file")
}

// build loads the metadata table named name and refines a new scan with the
// flags, on top of the configured scan defaults.
func (f *scanFlags) build(ctx context.Context, a *app.App, name string, snapshotSet bool) (metatable.Table, scan.TableScan, error) {
	mt, err := a.Catalog().LoadMetadataTable(ctx, name,
		metatable.WithLogger(a.Logger()), metatable.WithObserver(a.Metrics()))
	if err != nil {
		return nil, nil, err
	}
	s, err := mt.NewScan()
	if err != nil {
		return nil, nil, err
	}

	defaults := a.Config().Scan
	s = s.CaseSensitive(defaults.CaseSensitive && !f.caseInsensitive)
	if defaults.IgnoreResiduals || f.ignoreResiduals {
		s = s.IgnoreResiduals()
	}
	if defaults.ColumnStats || f.columnStats {
		s = s.IncludeColumnStats()
	}
	if snapshotSet {
		s = s.UseSnapshot(f.snapshotID)
	}
	if f.filter != "" {
		filter, err := parser.Parse(f.filter)
		if err != nil {
			return nil, nil, err
		}
		s = s.Filter(filter)
	}
	if len(f.columns) > 0 {
		s = s.Select(f.columns...)
	}
	return mt, s, nil
}

func newSchemaCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "schema <namespace.table.metadata_table>",
		Short:   "Print the schema of a metadata table",
		Args:    cobra.ExactArgs(1),
		GroupID: "metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			mt, err := a.Catalog().LoadMetadataTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			schema, err := mt.Schema()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				encoded, err := table.SchemaToJSON(schema)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, encoded)
				return err
			}
			printSection(out, mt.Name())
			for _, name := range schema.LeafNames() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}

func newPlanCommand(opts *globalOptions) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:     "plan <namespace.table.metadata_table>",
		Short:   "Plan a metadata-table scan and print its tasks",
		Args:    cobra.ExactArgs(1),
		GroupID: "metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			mt, s, err := flags.build(cmd.Context(), a, args[0], cmd.Flags().Changed("snapshot-id"))
			if err != nil {
				return err
			}
			tasks, err := a.Executor().Plan(cmd.Context(), s)
			if err != nil {
				return err
			}

			type taskOutput struct {
				ManifestPath    string `json:"manifest_path"`
				ManifestLength  int64  `json:"manifest_length"`
				SpecID          int    `json:"partition_spec_id"`
				Content         string `json:"content"`
				AddedSnapshotID int64  `json:"added_snapshot_id"`
				Residual        string `json:"residual"`
			}
			planned := make([]taskOutput, len(tasks))
			for i, task := range tasks {
				mf := task.Manifest()
				planned[i] = taskOutput{
					ManifestPath:    mf.Path,
					ManifestLength:  mf.Length,
					SpecID:          mf.SpecID,
					Content:         mf.Content.String(),
					AddedSnapshotID: mf.AddedSnapshotID,
					Residual:        task.Residual().ResidualFor(nil).String(),
				}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(out, map[string]any{"table": mt.Name(), "tasks": planned})
			}
			printSection(out, fmt.Sprintf("%s: %d tasks", mt.Name(), len(planned)))
			for _, t := range planned {
				printKeyValue(out, "Manifest", t.ManifestPath)
				printDim(out, fmt.Sprintf("    spec=%d content=%s added_snapshot=%d length=%d residual=%s",
					t.SpecID, t.Content, t.AddedSnapshotID, t.ManifestLength, t.Residual))
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newScanCommand(opts *globalOptions) *cobra.Command {
	var (
		flags   scanFlags
		limit   int64
		orderBy []string
	)

	cmd := &cobra.Command{
		Use:     "scan <namespace.table.metadata_table>",
		Short:   "Scan a metadata table and print its rows",
		Args:    cobra.ExactArgs(1),
		GroupID: "metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			execOpts := executor.Options{Limit: limit}
			for _, key := range orderBy {
				sk, err := executor.ParseSortKey(key)
				if err != nil {
					return err
				}
				execOpts.OrderBy = append(execOpts.OrderBy, sk)
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			mt, s, err := flags.build(cmd.Context(), a, args[0], cmd.Flags().Changed("snapshot-id"))
			if err != nil {
				return err
			}
			result, err := a.Executor().Execute(cmd.Context(), s, execOpts)
			if err != nil {
				return err
			}

			columns := result.Schema.LeafNames()
			rows := export.JSONRows(result.Schema, result.Rows)
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(out, map[string]any{
					"table":     mt.Name(),
					"columns":   columns,
					"rows":      rows,
					"truncated": result.Stats.Truncated,
				})
			}
			printRows(out, columns, rows)
			msg := fmt.Sprintf("(%d rows from %d tasks in %dms)", len(rows), result.Stats.TasksPlanned,
				result.Stats.ExecutionTimeMs)
			if result.Stats.Truncated {
				msg += " truncated"
			}
			printDim(out, msg)
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum rows to return (0 for all)")
	cmd.Flags().StringArrayVar(&orderBy, "order-by", nil, `Sort key as "column [asc|desc]" (repeatable)`)
	return cmd
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	var (
		flags  scanFlags
		output string
	)

	cmd := &cobra.Command{
		Use:     "export <namespace.table.metadata_table>",
		Short:   "Write a metadata table's rows to a Parquet file",
		Args:    cobra.ExactArgs(1),
		GroupID: "metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			mt, s, err := flags.build(cmd.Context(), a, args[0], cmd.Flags().Changed("snapshot-id"))
			if err != nil {
				return err
			}
			result, err := a.Executor().Execute(cmd.Context(), s, executor.Options{})
			if err != nil {
				return err
			}
			if result.Stats.Truncated {
				return fmt.Errorf("export of %s exceeded scan.max_result_bytes; narrow it with --filter or --select", mt.Name())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			n, err := export.WriteParquet(f, result.Schema, result.Rows)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(output)
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(out, map[string]any{"table": mt.Name(), "output": output, "rows": n})
			}
			printSuccess(out, fmt.Sprintf("Wrote %d rows of %s to %s", n, mt.Name(), output))
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", "", "Parquet file to write")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
