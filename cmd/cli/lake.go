package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-pipeline/internal/app"
	"github.com/dvloznov/statement-pipeline/internal/datalake"
	"github.com/dvloznov/statement-pipeline/internal/tables"
)

var (
	physical  bool
	readLimit int
)

var dotpathCmd = &cobra.Command{
	Use:   "dotpath <id-or-path>",
	Short: "Resolve a lake id or physical path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLake(cmd, func(ctx context.Context, lake *datalake.Connector) error {
			dp, err := lake.Resolve(lakeRef(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:   %s\npath: %s\n", dp, dp.Path())
			return nil
		})
	},
}

var lakeCmd = &cobra.Command{
	Use:   "lake",
	Short: "Read, write and list data-lake tables",
}

var lakeReadCmd = &cobra.Command{
	Use:   "read <table>",
	Short: "Print the current file of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLake(cmd, func(ctx context.Context, lake *datalake.Connector) error {
			f, err := lake.ReadTable(ctx, lakeRef(args[0]))
			if err != nil {
				return err
			}
			printFrame(cmd.OutOrStdout(), f, readLimit)
			return nil
		})
	},
}

var lakeWriteCmd = &cobra.Command{
	Use:   "write <table> <file.parquet>",
	Short: "Write a local Parquet file as a new version of a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readParquetFile(args[1])
		if err != nil {
			return err
		}
		return withLake(cmd, func(ctx context.Context, lake *datalake.Connector) error {
			uri, err := lake.WriteTable(ctx, lakeRef(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", f.Len(), uri)
			return nil
		})
	},
}

var lakeLsCmd = &cobra.Command{
	Use:   "ls [scope]",
	Short: "List the tables under a scope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLake(cmd, func(ctx context.Context, lake *datalake.Connector) error {
			ids, err := lake.ListTables(ctx, lakeRef(scopeArg(args)))
			if err != nil {
				return err
			}
			for _, dp := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), dp)
			}
			return nil
		})
	},
}

var lakeFilesCmd = &cobra.Command{
	Use:   "files [scope]",
	Short: "List the files of every table under a scope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLake(cmd, func(ctx context.Context, lake *datalake.Connector) error {
			files, err := lake.ListFiles(ctx, lakeRef(scopeArg(args)))
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(files))
			for id := range files {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
				for _, uri := range files[id] {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", uri)
				}
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{dotpathCmd, lakeCmd} {
		c.PersistentFlags().BoolVar(&physical, "physical", false, "treat arguments as physical paths instead of dot ids")
	}
	lakeReadCmd.Flags().IntVar(&readLimit, "limit", 20, "rows to print, 0 for all")

	lakeCmd.AddCommand(lakeReadCmd, lakeWriteCmd, lakeLsCmd, lakeFilesCmd)
	rootCmd.AddCommand(dotpathCmd, lakeCmd)
}

func withLake(cmd *cobra.Command, fn func(ctx context.Context, lake *datalake.Connector) error) error {
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	stores, err := app.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	lake, err := app.OpenLake(ctx, cfg, stores)
	if err != nil {
		return err
	}
	return fn(ctx, lake)
}

func lakeRef(arg string) datalake.Ref {
	if physical {
		return datalake.ByPhysicalPath(arg)
	}
	return datalake.ByLogicalID(arg)
}

func scopeArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func readParquetFile(name string) (tables.Frame, error) {
	fh, err := os.Open(name)
	if err != nil {
		return tables.Frame{}, err
	}
	defer fh.Close()
	st, err := fh.Stat()
	if err != nil {
		return tables.Frame{}, err
	}
	return tables.ReadParquet(fh, st.Size())
}

func printFrame(w io.Writer, f tables.Frame, limit int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(f.Names())
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for i, row := range f.Rows {
		if limit > 0 && i >= limit {
			break
		}
		table.Append(formatRow(row))
	}
	table.Render()
	fmt.Fprintf(w, "(%d rows)\n", f.Len())
}

func formatRow(row tables.Row) []string {
	cells := make([]string, len(row))
	for j, v := range row {
		if v != nil {
			cells[j] = fmt.Sprint(v)
		}
	}
	return cells
}
