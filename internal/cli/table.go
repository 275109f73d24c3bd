package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkilian/metatables/internal/catalog"
	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/table"
)

func newTableCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "table",
		Short:   "Create, inspect and append to catalog tables",
		GroupID: "tables",
	}
	cmd.AddCommand(
		newTableCreateCommand(opts),
		newTableListCommand(opts),
		newTableShowCommand(opts),
		newTableAppendCommand(opts),
		newTableDropCommand(opts),
	)
	return cmd
}

func newTableCreateCommand(opts *globalOptions) *cobra.Command {
	var (
		schemaArg string
		specArg   string
		props     []string
	)

	cmd := &cobra.Command{
		Use:   "create <namespace.table>",
		Short: "Create a table from a JSON schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := catalog.ParseIdentifier(args[0])
			if err != nil {
				return err
			}
			schemaJSON, err := readInline(schemaArg)
			if err != nil {
				return err
			}
			schema, err := table.SchemaFromJSON(schemaJSON)
			if err != nil {
				return metaerrors.NewValidationError(metaerrors.CodeInvalidSchema, err.Error())
			}
			spec := table.Unpartitioned()
			if specArg != "" {
				specJSON, err := readInline(specArg)
				if err != nil {
					return err
				}
				if spec, err = table.SpecFromJSON(specJSON); err != nil {
					return metaerrors.NewValidationError(metaerrors.CodeInvalidTransform, err.Error())
				}
			}
			properties, err := parseProperties(props)
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			tbl, err := a.Catalog().CreateTable(cmd.Context(), ident, schema, spec, properties)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(out, map[string]any{"identifier": tbl.Name(), "location": tbl.Location()})
			}
			printSuccess(out, fmt.Sprintf("Created %s at %s", tbl.Name(), tbl.Location()))
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaArg, "schema", "", "Table schema as JSON, or @path to a JSON file")
	cmd.Flags().StringVar(&specArg, "partition-spec", "", "Partition spec as JSON, or @path to a JSON file")
	cmd.Flags().StringArrayVar(&props, "property", nil, "Table property as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func newTableListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <namespace>",
		Short: "List the tables of a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			idents, err := a.Catalog().ListTables(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			names := make([]string, len(idents))
			for i, ident := range idents {
				names[i] = ident.String()
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(out, map[string]any{"tables": names})
			}
			if len(names) == 0 {
				printDim(out, "No tables found")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func newTableShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <namespace.table>",
		Short: "Show a table's location, schema and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := catalog.ParseIdentifier(args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			tbl, err := a.Catalog().LoadTable(cmd.Context(), ident)
			if err != nil {
				return err
			}
			meta := tbl.Metadata()

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(out, meta)
			}
			printSection(out, tbl.Name())
			printKeyValue(out, "Location", meta.Location)
			printKeyValue(out, "Columns", strings.Join(tbl.Schema().LeafNames(), ", "))
			if meta.CurrentSnapshotID != nil {
				printKeyValue(out, "Current snapshot", *meta.CurrentSnapshotID)
			}
			printKeyValue(out, "Snapshots", len(meta.Snapshots))
			for _, snap := range meta.Snapshots {
				printDim(out, fmt.Sprintf("    %d  seq=%d  %s  %s", snap.SnapshotID, snap.SequenceNumber,
					time.UnixMilli(snap.TimestampMs).UTC().Format(time.RFC3339), snap.Summary["operation"]))
			}
			return nil
		},
	}
}

func newTableAppendCommand(opts *globalOptions) *cobra.Command {
	var rowsArg string

	cmd := &cobra.Command{
		Use:   "append <namespace.table>",
		Short: "Append JSON records to a table as a new snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := catalog.ParseIdentifier(args[0])
			if err != nil {
				return err
			}
			data, err := readInline(rowsArg)
			if err != nil {
				return err
			}
			var rows []map[string]any
			if err := json.Unmarshal([]byte(data), &rows); err != nil {
				return metaerrors.NewValidationError(metaerrors.CodeInvalidValue,
					fmt.Sprintf("rows must be a JSON array of objects: %v", err))
			}
			if len(rows) == 0 {
				return metaerrors.NewValidationError(metaerrors.CodeInvalidValue, "rows must not be empty")
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			tbl, err := a.Catalog().LoadTable(cmd.Context(), ident)
			if err != nil {
				return err
			}
			files, err := tbl.NewDataWriter().Write(cmd.Context(), rows)
			if err != nil {
				return metaerrors.NewValidationError(metaerrors.CodeInvalidValue, err.Error())
			}
			snapshot, err := tbl.NewAppend().AppendFiles(files...).Commit(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(out, map[string]any{
					"snapshot_id": snapshot.SnapshotID,
					"data_files":  len(files),
					"row_count":   len(rows),
				})
			}
			printSuccess(out, fmt.Sprintf("Committed snapshot %d: %d rows in %d files",
				snapshot.SnapshotID, len(rows), len(files)))
			return nil
		},
	}
	cmd.Flags().StringVar(&rowsArg, "rows", "", "JSON array of records, or @path to a JSON file")
	_ = cmd.MarkFlagRequired("rows")
	return cmd
}

func newTableDropCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <namespace.table>",
		Short: "Remove a table from the catalog",
		Long:  "Remove a table from the catalog. Metadata and data files are left in storage.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := catalog.ParseIdentifier(args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			if err := a.Catalog().DropTable(cmd.Context(), ident); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Dropped "+ident.String())
			return nil
		},
	}
}

// readInline returns arg, or the contents of the file it names when it
// starts with "@".
func readInline(arg string) (string, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), nil
	}
	return arg, nil
}

func parseProperties(props []string) (map[string]string, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(props))
	for _, p := range props {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, metaerrors.NewValidationError(metaerrors.CodeInvalidValue,
				fmt.Sprintf("property %q must be key=value", p))
		}
		out[key] = value
	}
	return out, nil
}
