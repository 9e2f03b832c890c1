package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"farmledger/internal/farm"
	"farmledger/internal/wire"
	"farmledger/pkg/domain"
)

func seasonCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "season", Short: "Show, browse and roll over seasons"}
	cmd.AddCommand(seasonStatusCmd(e))
	cmd.AddCommand(seasonViewCmd(e))
	cmd.AddCommand(seasonRolloverCmd(e))
	return cmd
}

func seasonStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active season and whether a rollover is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				out := cmd.OutOrStdout()
				active := app.Store.ActiveSeason()
				fmt.Fprintf(out, "Active season: %d\n", active)
				seasons := make([]string, 0)
				for _, y := range app.Store.Seasons() {
					seasons = append(seasons, strconv.Itoa(y))
				}
				fmt.Fprintf(out, "Seasons: %s\n", strings.Join(seasons, ", "))
				fmt.Fprintf(out, "Pending remote writes: %d\n", app.Store.PendingCount())
				if app.Store.RolloverStatus(time.Now()) == farm.RolloverPrompted {
					fmt.Fprintf(out, "%s it is %d; run %s to start a new season\n",
						color.New(color.FgYellow).Sprint("New season:"), time.Now().Year(),
						color.New(color.FgCyan).Sprint("farmctl season rollover"))
				}
				return nil
			})
		},
	}
}

func seasonViewCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "view <year>",
		Short: "Summarise the records of a season",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("season %q is not a year", args[0])
			}
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				app.Store.SetViewingSeason(year)
				recs := app.Store.RecordsForSeason(app.Store.ViewingSeason())
				out := cmd.OutOrStdout()
				label := ""
				if recs.Season == app.Store.ActiveSeason() {
					label = " (active)"
				}
				fmt.Fprintf(out, "Season %d%s\n", recs.Season, label)
				w := table(out)
				fmt.Fprintf(w, "  Plantings\t%d\n", len(recs.Plant))
				fmt.Fprintf(w, "  Sprays\t%d\n", len(recs.Spray))
				fmt.Fprintf(w, "  Harvests\t%d\n", len(recs.Harvest))
				fmt.Fprintf(w, "  Hay cuttings\t%d\n", len(recs.Hay))
				fmt.Fprintf(w, "  Grain movements\t%d\n", len(recs.Movement))
				bushels := 0.0
				for _, h := range recs.Harvest {
					bushels += h.Bushels
				}
				fmt.Fprintf(w, "  Bushels harvested\t%s\n", number(bushels))
				return w.Flush()
			})
		},
	}
}

func seasonRolloverCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rollover [year]",
		Short: "Back up all records and start a new season",
		Long: `Export a full backup and make year (default: next year) the active
season. Nothing changes if the backup cannot be written. Records of earlier
seasons are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, app *wire.App) error {
				out := cmd.OutOrStdout()
				year := app.Store.ActiveSeason() + 1
				if len(args) == 1 {
					y, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("season %q is not a year", args[0])
					}
					year = y
				}
				if !yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Start season %d? A backup of every record is exported first.", year)) {
					app.Store.DeferRollover()
					fmt.Fprintln(out, "Rollover deferred")
					return errAborted
				}
				receipt, err := app.Store.RolloverToNewSeason(ctx, year)
				if err != nil {
					if errors.Is(err, domain.ErrInvalidSeason) {
						return fmt.Errorf("season %d does not follow %d: %w", year, app.Store.ActiveSeason(), err)
					}
					return err
				}
				ok(out, "Season %d started", year)
				fmt.Fprintf(out, "  Backup: %s (%d bytes)\n", receipt.Key, receipt.Size)
				if receipt.URL != "" {
					fmt.Fprintf(out, "  Download: %s\n", receipt.URL)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, msg string) bool {
	fmt.Fprintf(out, "%s %s [y/N]: ", color.New(color.FgYellow).Sprint("?"), msg)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func backupCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "backup", Short: "Export and list backups"}
	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Write a backup of every record to the backup sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(ctx context.Context, app *wire.App) error {
				receipt, err := app.Store.ExportBackup(ctx)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Backup %s (%d bytes)", receipt.Key, receipt.Size)
				if receipt.URL != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  Download: %s\n", receipt.URL)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List this farm's backups, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(ctx context.Context, app *wire.App) error {
				infos, err := app.Store.ListBackups(ctx)
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No backups")
					return nil
				}
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "KEY\tSIZE\tSEASON\tROLLOVER")
				for _, info := range infos {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Key, info.Size, info.Metadata["active-season"], info.Metadata["rollover"])
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func restoreCmd(e *env) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "restore [file]",
		Short: "Replace every record with a backup",
		Long: `Restore a backup document from a file ("-" for stdin) or, with --key,
from the backup sink. The backup is validated in full before anything is
replaced.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (key == "") == (len(args) == 0) {
				return errors.New("give either a backup file or --key")
			}
			return e.run(cmd, func(ctx context.Context, app *wire.App) error {
				if key != "" {
					if err := app.Store.RestoreFromBlob(ctx, key); err != nil {
						return err
					}
					ok(cmd.OutOrStdout(), "Restored %s", key)
					return nil
				}
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer func() { _ = f.Close() }()
					r = f
				}
				if err := app.Store.Restore(ctx, r); err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Restored %s; active season %d", args[0], app.Store.ActiveSeason())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "backup key in the backup sink")
	return cmd
}

func syncCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay remote writes queued while offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(ctx context.Context, app *wire.App) error {
				before := app.Store.PendingCount()
				if err := app.Store.Sync(ctx); err != nil {
					if errors.Is(err, domain.ErrNoSession) {
						warn(cmd.OutOrStdout(), "Not signed in; %d write(s) stay queued", before)
						return nil
					}
					return err
				}
				ok(cmd.OutOrStdout(), "Synced %d write(s); %d pending", before-app.Store.PendingCount(), app.Store.PendingCount())
				return nil
			})
		},
	}
}
