package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bishleshok-ai/bishleshok/internal/export"
	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/status"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect, export and clear saved records",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, appOptions{mode: "records"})
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.loadSnapshot(ctx); err != nil {
			return err
		}

		docs := env.Store.Documents()
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}
		return formatRecordsList(os.Stdout, docs)
	},
}

// -- records show --

var recordsShowCmd = &cobra.Command{
	Use:   "show <index>",
	Short: "Print one record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		index, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Errorf("records show: index must be an integer: %q", args[0])
		}

		env, err := initApp(ctx, appOptions{mode: "records"})
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.loadSnapshot(ctx); err != nil {
			return err
		}

		pretty, err := env.Store.Select(index)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, pretty)
		return nil
	},
}

// -- records clear --

var recordsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every saved record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return eris.New("records clear: refusing to delete all records without --yes")
		}

		env, err := initApp(ctx, appOptions{mode: "records", echo: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer env.Close()

		lease := env.Busy.Acquire("Clearing database")
		defer lease.Release()
		return env.Store.ClearAll(ctx)
	},
}

// -- records export --

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")

		write, ext, err := exportWriter(format)
		if err != nil {
			return err
		}
		if out == "" {
			out = "ProductData." + ext
		}

		env, err := initApp(ctx, appOptions{mode: "records", echo: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.loadSnapshot(ctx); err != nil {
			return err
		}
		env.Engine.SetFilter(model.DateRange{Start: start, End: end})
		recs := env.Engine.View().Records

		if len(recs) == 0 {
			status.Error(env.Sink, export.MsgNothingToExport)
			return export.ErrNothingToExport
		}

		f, err := os.Create(filepath.Clean(out))
		if err != nil {
			return eris.Wrap(err, "records export: create file")
		}
		if err := write(f, recs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "records export: close file")
		}
		status.Info(env.Sink, export.SuccessMessage(strings.ToUpper(ext), len(recs)))
		return nil
	},
}

// exportWriter maps a format flag to its writer and file extension.
func exportWriter(format string) (func(io.Writer, []model.Record) error, string, error) {
	switch strings.ToLower(format) {
	case "csv":
		return export.WriteCSV, "csv", nil
	case "xlsx":
		return export.WriteXLSX, "xlsx", nil
	default:
		return nil, "", eris.Errorf("records export: unknown format %q (want csv or xlsx)", format)
	}
}

func init() {
	recordsClearCmd.Flags().Bool("yes", false, "confirm deleting every record")

	recordsExportCmd.Flags().String("format", "csv", "export format (csv, xlsx)")
	recordsExportCmd.Flags().String("out", "", "output file (default ProductData.<ext>)")
	recordsExportCmd.Flags().String("start", "", "only records on or after this date (YYYY-MM-DD)")
	recordsExportCmd.Flags().String("end", "", "only records on or before this date (YYYY-MM-DD)")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	recordsCmd.AddCommand(recordsClearCmd)
	recordsCmd.AddCommand(recordsExportCmd)
	rootCmd.AddCommand(recordsCmd)
}

// formatRecordsList writes a tabular list of records to out.
func formatRecordsList(out io.Writer, docs []model.Document) error {
	recs := make([]model.Record, len(docs))
	for i, d := range docs {
		recs[i] = d.Record
	}
	rows, err := export.Rows(recs)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tID\tSOURCE\tNAME\tPRODUCT\tAMOUNT\tDATE")
	for i, r := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i, docs[i].ID, r.SourceType, truncate(r.Party, 24), truncate(r.Product, 32), r.PriceTotal, r.BuyDate)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
