package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"farmledger/internal/wire"
	"farmledger/pkg/domain"
)

type fieldFlags struct {
	name       string
	acreage    float64
	lat, lng   float64
	boundary   string
	fsaFarm    string
	fsaTract   string
	fsaField   string
	share      float64
	irrigation string
	use        string
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.name, "name", "", "field name")
	flags.Float64Var(&f.acreage, "acreage", 0, "acres (derived from the boundary when omitted)")
	flags.Float64Var(&f.lat, "lat", 0, "latitude of the field centre")
	flags.Float64Var(&f.lng, "lng", 0, "longitude of the field centre")
	flags.StringVar(&f.boundary, "boundary", "", "GeoJSON polygon file")
	flags.StringVar(&f.fsaFarm, "fsa-farm", "", "FSA farm number")
	flags.StringVar(&f.fsaTract, "fsa-tract", "", "FSA tract number")
	flags.StringVar(&f.fsaField, "fsa-field", "", "FSA field number")
	flags.Float64Var(&f.share, "share", 0, "producer share percent (0-100)")
	flags.StringVar(&f.irrigation, "irrigation", "", "Irrigated or Non-Irrigated")
	flags.StringVar(&f.use, "use", "", "intended use, e.g. Grain")
}

// apply copies every flag given on the command line onto field.
func (f *fieldFlags) apply(cmd *cobra.Command, field *domain.Field) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		field.Name = f.name
	}
	if changed("acreage") {
		field.Acreage = f.acreage
	}
	if changed("lat") {
		field.Lat = f.lat
	}
	if changed("lng") {
		field.Lng = f.lng
	}
	if changed("boundary") {
		raw, err := os.ReadFile(f.boundary)
		if err != nil {
			return fmt.Errorf("read boundary: %w", err)
		}
		if !json.Valid(raw) {
			return fmt.Errorf("boundary %s is not JSON", f.boundary)
		}
		field.Boundary = raw
	}
	if changed("fsa-farm") {
		field.FSAFarmNumber = f.fsaFarm
	}
	if changed("fsa-tract") {
		field.FSATractNumber = f.fsaTract
	}
	if changed("fsa-field") {
		field.FSAFieldNumber = f.fsaField
	}
	if share := optionalFloat(cmd, "share", f.share); share != nil {
		field.ProducerShare = share
	}
	if changed("irrigation") {
		field.IrrigationPractice = domain.IrrigationPractice(f.irrigation)
	}
	if changed("use") {
		field.IntendedUse = f.use
	}
	return nil
}

func fieldCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Manage fields",
	}
	cmd.AddCommand(fieldAddCmd(e))
	cmd.AddCommand(fieldListCmd(e))
	cmd.AddCommand(fieldUpdateCmd(e))
	cmd.AddCommand(fieldDeleteCmd(e))
	return cmd
}

func fieldAddCmd(e *env) *cobra.Command {
	var flags fieldFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a field",
		Long: `Add a field. With --boundary the acreage and centre point are derived
from the polygon unless given explicitly.

Examples:
  farmctl field add --name "Home Quarter" --acreage 155 --fsa-farm 1234
  farmctl field add --name "Creek" --boundary creek.geojson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var field domain.Field
			if err := flags.apply(cmd, &field); err != nil {
				return err
			}
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				added, err := app.Store.AddField(field)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Added field %s: %s (%s ac)", added.ID, added.Name, number(added.Acreage))
				return nil
			})
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func fieldListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active fields by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				fields := app.Store.Fields()
				if len(fields) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No fields")
					return nil
				}
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tNAME\tACRES\tFSA FARM\tTRACT\tFIELD")
				for _, f := range fields {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, number(f.Acreage), f.FSAFarmNumber, f.FSATractNumber, f.FSAFieldNumber)
				}
				return w.Flush()
			})
		},
	}
}

func fieldUpdateCmd(e *env) *cobra.Command {
	var flags fieldFlags
	cmd := &cobra.Command{
		Use:   "update <field>",
		Short: "Change a field; records keep the name they were saved with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				field, err := resolveField(app, args[0])
				if err != nil {
					return err
				}
				if err := flags.apply(cmd, &field); err != nil {
					return err
				}
				updated, err := app.Store.UpdateField(field)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Updated field %s: %s", updated.ID, updated.Name)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func fieldDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <field>...",
		Short: "Delete fields by id or name (history referencing them is kept)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				ids, err := resolveFieldIDs(app, args)
				if err != nil {
					return err
				}
				app.Store.DeleteFields(ids...)
				ok(cmd.OutOrStdout(), "Deleted %d field(s)", len(ids))
				return nil
			})
		},
	}
}

func binCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bin",
		Short: "Manage grain bins",
	}
	cmd.AddCommand(binAddCmd(e))
	cmd.AddCommand(binListCmd(e))
	cmd.AddCommand(binDeleteCmd(e))
	return cmd
}

func binAddCmd(e *env) *cobra.Command {
	var (
		name     string
		capacity int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a bin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				bin, err := app.Store.AddBin(domain.Bin{Name: name, Capacity: capacity})
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Added bin %s: %s (%d bu)", bin.ID, bin.Name, bin.Capacity)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "bin name")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "capacity in bushels")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func binListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show each bin's inventory and fill level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				levels := app.Store.BinInventory()
				if len(levels) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No bins")
					return nil
				}
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tNAME\tBUSHELS\tCAPACITY\tFILL\t")
				for _, l := range levels {
					note := ""
					switch {
					case l.Negative:
						note = color.New(color.FgRed).Sprint("NEGATIVE")
					case l.OverCapacity:
						note = color.New(color.FgYellow).Sprint("OVER CAPACITY")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s%%\t%s\n", l.Bin.ID, l.Bin.Name, number(l.Total), l.Bin.Capacity, number(l.FillPercent), note)
				}
				return w.Flush()
			})
		},
	}
}

func binDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <bin>...",
		Short: "Delete bins by id or name (movements referencing them are kept)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				ids, err := resolveBinIDs(app, args)
				if err != nil {
					return err
				}
				app.Store.DeleteBins(ids...)
				ok(cmd.OutOrStdout(), "Deleted %d bin(s)", len(ids))
				return nil
			})
		},
	}
}
