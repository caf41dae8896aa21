package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bishleshok-ai/bishleshok/internal/analytics"
	"github.com/bishleshok-ai/bishleshok/internal/model"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show KPIs, anomalies, the 14-day forecast and recommendations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initApp(ctx, appOptions{mode: "records"})
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.loadSnapshot(ctx); err != nil {
			return err
		}
		env.Engine.SetFilter(model.DateRange{Start: start, End: end})
		view := env.Engine.View()

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		formatView(os.Stdout, view)
		return nil
	},
}

func init() {
	analyticsCmd.Flags().String("start", "", "filter start date (YYYY-MM-DD)")
	analyticsCmd.Flags().String("end", "", "filter end date (YYYY-MM-DD)")
	analyticsCmd.Flags().Bool("json", false, "print the full view as JSON")
	rootCmd.AddCommand(analyticsCmd)
}

// formatView writes a human-readable summary of v to out.
func formatView(out io.Writer, v *analytics.View) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if v.Filter.Active() {
		_, _ = fmt.Fprintf(w, "Filter:\t%s .. %s\n", v.Filter.Start, v.Filter.End)
	}
	k := v.KPIs
	_, _ = fmt.Fprintf(w, "Total revenue:\t৳%.2f\n", k.TotalRevenue)
	_, _ = fmt.Fprintf(w, "Items sold:\t%.0f\n", k.TotalItems)
	_, _ = fmt.Fprintf(w, "Transactions:\t%d\n", k.TotalTransactions)
	_, _ = fmt.Fprintf(w, "Avg transaction:\t৳%.2f\n", k.AvgTransactionValue)
	_, _ = fmt.Fprintf(w, "Unique products:\t%d\n", k.UniqueProducts)
	_ = w.Flush()

	if len(v.Dashboard.ItemQuantity) > 0 {
		_, _ = fmt.Fprintln(out, "\nTop items:")
		names := make([]string, 0, len(v.Dashboard.ItemQuantity))
		for name := range v.Dashboard.ItemQuantity {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			qi, qj := v.Dashboard.ItemQuantity[names[i]], v.Dashboard.ItemQuantity[names[j]]
			if qi != qj {
				return qi > qj
			}
			return names[i] < names[j]
		})
		if len(names) > 10 {
			names = names[:10]
		}
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ITEM\tQTY\tVALUE")
		for _, n := range names {
			_, _ = fmt.Fprintf(w, "%s\t%.0f\t%.2f\n", n, v.Dashboard.ItemQuantity[n], v.Dashboard.ItemValue[n])
		}
		_ = w.Flush()
	}

	if len(v.Anomalies) > 0 {
		_, _ = fmt.Fprintln(out, "\nAnomalies:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "DATE\tREVENUE\tTYPE\tSEVERITY")
		for _, a := range v.Anomalies {
			_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", a.Date, a.Value, a.Type, a.Severity)
		}
		_ = w.Flush()
	}

	if f := v.Forecast; f != nil && len(f.Dates) > 0 {
		_, _ = fmt.Fprintf(out, "\nForecast (next %d days, total ৳%.2f):\n", len(f.Dates), f.Total())
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "DATE\tLOW\tEXPECTED\tHIGH")
		for i, d := range f.Dates {
			_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\n", d, f.ConfidenceLower[i], f.Values[i], f.ConfidenceUpper[i])
		}
		_ = w.Flush()
	}

	if len(v.Recommendations) > 0 {
		_, _ = fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range v.Recommendations {
			_, _ = fmt.Fprintf(out, "  [%s/%s] %s\n      %s\n", r.Priority, r.Type, r.Message, r.Action)
		}
	}
}
