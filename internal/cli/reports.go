package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"farmledger/internal/report"
	"farmledger/internal/wire"
)

type csvReport struct {
	use, short, prefix string
	write              func(w io.Writer, app *wire.App, season int) error
}

var csvReports = []csvReport{
	{
		use: "spray", short: "Missouri private applicator spray log", prefix: "Missouri_Spray_Log",
		write: func(w io.Writer, app *wire.App, season int) error {
			return report.MissouriSprayLog(w, app.Store.RecordsForSeason(season).Spray, app.Store.AllFields())
		},
	},
	{
		use: "fsa578", short: "FSA-578 acreage report", prefix: "FSA_578_Acreage",
		write: func(w io.Writer, app *wire.App, season int) error {
			return report.FSA578(w, app.Store.RecordsForSeason(season).Plant, app.Store.AllFields())
		},
	},
	{
		use: "harvest", short: "Harvest summary", prefix: "Harvest_Report",
		write: func(w io.Writer, app *wire.App, season int) error {
			return report.HarvestReport(w, app.Store.RecordsForSeason(season).Harvest, app.Store.AllFields())
		},
	},
}

func reportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export compliance reports",
	}
	for _, r := range csvReports {
		cmd.AddCommand(csvReportCmd(e, r))
	}
	cmd.AddCommand(workbookCmd(e))
	return cmd
}

func seasonOrActive(app *wire.App, season int) int {
	if season == 0 {
		return app.Store.ActiveSeason()
	}
	return season
}

func csvReportCmd(e *env, r csvReport) *cobra.Command {
	var (
		season int
		out    string
	)
	cmd := &cobra.Command{
		Use:   r.use,
		Short: r.short,
		Long: r.short + ` as CSV. --out names a file, or a directory to receive a dated
file name; without it the report goes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				year := seasonOrActive(app, season)
				if out == "" || out == "-" {
					if err := r.write(cmd.OutOrStdout(), app, year); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout())
					return nil
				}
				path := out
				if st, err := os.Stat(out); err == nil && st.IsDir() {
					path = filepath.Join(out, report.FileName(r.prefix, time.Now()))
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := r.write(f, app, year); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Wrote %s", path)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&season, "season", 0, "season year (default active season)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory")
	return cmd
}

func workbookCmd(e *env) *cobra.Command {
	var (
		season int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Write every report to one spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				recs := app.Store.RecordsForSeason(seasonOrActive(app, season))
				fields := app.Store.AllFields()
				var b report.Builder
				wb, err := report.Workbook(
					b.SprayLog(recs.Spray, fields),
					b.FSA578(recs.Plant, fields),
					b.Harvest(recs.Harvest, fields),
				)
				if err != nil {
					return err
				}
				defer func() { _ = wb.Close() }()
				if err := wb.SaveAs(out); err != nil {
					return fmt.Errorf("save workbook: %w", err)
				}
				ok(cmd.OutOrStdout(), "Wrote %s", out)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&season, "season", 0, "season year (default active season)")
	cmd.Flags().StringVarP(&out, "out", "o", "farmledger-reports.xlsx", "output file")
	return cmd
}

func rainCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rain",
		Short: "Show rainfall over the last 24 hours for each field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(ctx context.Context, app *wire.App) error {
				fields := app.Store.Fields()
				totals := app.Weather.RainForFields(ctx, fields)
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "FIELD\tRAIN (in)")
				for _, f := range fields {
					fmt.Fprintf(w, "%s\t%.2f\n", f.Name, totals[f.ID])
				}
				return w.Flush()
			})
		},
	}
}

func demoCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "demo", Short: "Demo data"}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Add sample plantings, sprays, harvests and hay cuttings for every field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				sum, err := app.Store.SeedDemoData()
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Added %d plantings, %d sprays, %d harvests and %d hay cuttings", sum.Plant, sum.Spray, sum.Harvest, sum.Hay)
				return nil
			})
		},
	})
	return cmd
}
