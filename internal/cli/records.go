package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"farmledger/internal/infra/weather"
	"farmledger/internal/wire"
	"farmledger/pkg/domain"
)

func plantCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "plant", Short: "Record plantings"}
	cmd.AddCommand(plantAddCmd(e))
	return cmd
}

func plantAddCmd(e *env) *cobra.Command {
	var (
		rec   domain.PlantRecord
		share float64
		irr   string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a planting in the active season",
		Long: `Record a planting. Acreage, FSA numbers, intended use, producer share
and irrigation default to the field's values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec.ProducerShare = optionalFloat(cmd, "share", share)
			rec.IrrigationPractice = domain.IrrigationPractice(irr)
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				field, err := resolveField(app, rec.FieldID)
				if err != nil {
					return err
				}
				rec.FieldID = field.ID
				added, err := app.Store.AddPlantRecord(rec)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Planted %s on %s (%s ac, season %d)", added.SeedVariety, added.FieldName, number(added.Acreage), added.SeasonYear)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&rec.FieldID, "field", "", "field id or name")
	flags.StringVar(&rec.SeedVariety, "seed", "", "seed variety")
	flags.StringVar(&rec.Crop, "crop", "", "crop, e.g. Corn")
	flags.Float64Var(&rec.Acreage, "acreage", 0, "planted acres")
	flags.StringVar(&rec.PlantDate, "date", "", "plant date (YYYY-MM-DD)")
	flags.StringVar(&rec.IntendedUse, "use", "", "intended use")
	flags.Float64Var(&share, "share", 0, "producer share percent")
	flags.StringVar(&irr, "irrigation", "", "Irrigated or Non-Irrigated")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func sprayCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "spray", Short: "Record pesticide applications"}
	cmd.AddCommand(sprayAddCmd(e))
	return cmd
}

func sprayAddCmd(e *env) *cobra.Command {
	var (
		rec        domain.SprayRecord
		products   []string
		recipeID   string
		humidity   float64
		useWeather bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a spray application in the active season",
		Long: `Record a spray application. Products are given as name:rate:unit:epa,
repeated for each line item of the mix. --recipe copies a saved mix and its
applicator details; --weather fills wind, temperature, humidity and
direction from current conditions at the field.

Examples:
  farmctl spray add --field "Back Forty" --product "Atrazine 4L:1.5:qt/ac:100-497" --wind 6 --temp 72
  farmctl spray add --field "Back Forty" --recipe r1 --weather`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := parseProducts(products)
			if err != nil {
				return err
			}
			rec.Products = items
			rec.RelativeHumidity = optionalFloat(cmd, "humidity", humidity)
			return e.run(cmd, func(ctx context.Context, app *wire.App) error {
				field, err := resolveField(app, rec.FieldID)
				if err != nil {
					return err
				}
				rec.FieldID = field.ID
				if recipeID != "" {
					if err := applyRecipe(app, recipeID, &rec); err != nil {
						return err
					}
				}
				if useWeather {
					snap, err := app.Weather.Current(ctx, field.Lat, field.Lng)
					if err != nil {
						warn(cmd.OutOrStdout(), "weather unavailable, recording %s for wind direction", weather.UnknownDirection)
					}
					rec.WindSpeed, rec.Temperature, rec.WindDirection = snap.WindSpeed, snap.Temperature, snap.WindDirection
					if err == nil {
						h := snap.Humidity
						rec.RelativeHumidity = &h
					}
				}
				added, err := app.Store.AddSprayRecord(rec)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Sprayed %s on %s (wind %s mph %s, %s°F)", added.Product, added.FieldName,
					number(added.WindSpeed), added.WindDirection, number(added.Temperature))
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&rec.FieldID, "field", "", "field id or name")
	flags.StringArrayVar(&products, "product", nil, "product line item name:rate:unit:epa (repeatable)")
	flags.StringVar(&recipeID, "recipe", "", "saved spray recipe id")
	flags.Float64Var(&rec.WindSpeed, "wind", 0, "wind speed (mph)")
	flags.StringVar(&rec.WindDirection, "direction", "", "wind direction, e.g. SW")
	flags.Float64Var(&rec.Temperature, "temp", 0, "temperature (°F)")
	flags.Float64Var(&humidity, "humidity", 0, "relative humidity percent")
	flags.BoolVar(&useWeather, "weather", false, "fill conditions from the weather service")
	flags.StringVar(&rec.ApplicatorName, "applicator", "", "applicator name")
	flags.StringVar(&rec.LicenseNumber, "license", "", "applicator license number")
	flags.StringVar(&rec.TargetPest, "pest", "", "target pest")
	flags.StringVar(&rec.SprayDate, "date", "", "application date (YYYY-MM-DD)")
	flags.StringVar(&rec.StartTime, "start", "", "start time, e.g. 08:30")
	flags.StringVar(&rec.TreatedAreaSize, "treated-area", "", "treated area when not the whole field")
	flags.StringVar(&rec.TotalMixtureVolume, "mix-volume", "", "total mixture volume")
	flags.StringVar(&rec.EquipmentID, "equipment", "", "equipment id")
	flags.StringVar(&rec.InvolvedTechnicians, "technicians", "", "other technicians involved")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

// applyRecipe fills products and applicator details the command line left blank.
func applyRecipe(app *wire.App, id string, rec *domain.SprayRecord) error {
	for _, r := range app.Store.SprayRecipes() {
		if r.ID != id {
			continue
		}
		if len(rec.Products) == 0 {
			rec.Products = append([]domain.SprayProduct(nil), r.Products...)
		}
		if rec.ApplicatorName == "" {
			rec.ApplicatorName = r.ApplicatorName
		}
		if rec.LicenseNumber == "" {
			rec.LicenseNumber = r.LicenseNumber
		}
		if rec.TargetPest == "" {
			rec.TargetPest = r.TargetPest
		}
		if rec.EPARegNumber == "" {
			rec.EPARegNumber = r.EPARegNumber
		}
		return nil
	}
	return domain.NotFoundError{Entity: domain.EntitySprayRecipe, ID: id}
}

func harvestCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "harvest", Short: "Record grain harvests"}
	cmd.AddCommand(harvestAddCmd(e))
	return cmd
}

func harvestAddCmd(e *env) *cobra.Command {
	var (
		rec  domain.HarvestRecord
		dest string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a harvest into a bin or hauled to town",
		Long: `Record a harvest. A harvest into a bin also records the matching
inbound grain movement.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec.Destination = domain.HarvestDestination(strings.ToLower(dest))
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				field, err := resolveField(app, rec.FieldID)
				if err != nil {
					return err
				}
				rec.FieldID = field.ID
				if rec.BinID != "" {
					bin, err := resolveBin(app, rec.BinID)
					if err != nil {
						return err
					}
					rec.BinID = bin.ID
				}
				added, err := app.Store.AddHarvestRecord(rec)
				if err != nil {
					return err
				}
				where := "town"
				if added.Destination == domain.DestinationBin {
					where = app.Store.BinName(added.BinID)
				}
				ok(cmd.OutOrStdout(), "Harvested %s bu from %s to %s", number(added.Bushels), added.FieldName, where)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&rec.FieldID, "field", "", "field id or name")
	flags.Float64Var(&rec.Bushels, "bushels", 0, "bushels harvested")
	flags.Float64Var(&rec.MoisturePercent, "moisture", 0, "moisture percent")
	flags.Float64Var(&rec.LandlordSplitPercent, "landlord", 0, "landlord split percent")
	flags.StringVar(&dest, "dest", string(domain.DestinationBin), "bin or town")
	flags.StringVar(&rec.BinID, "bin", "", "bin id or name for a bin destination")
	flags.StringVar(&rec.Crop, "crop", "", "crop")
	flags.StringVar(&rec.HarvestDate, "date", "", "harvest date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func hayCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "hay", Short: "Record hay cuttings"}
	cmd.AddCommand(hayAddCmd(e))
	return cmd
}

func hayAddCmd(e *env) *cobra.Command {
	var (
		rec      domain.HayHarvestRecord
		baleType string
		temp     float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a hay cutting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec.BaleType = domain.BaleType(baleType)
			rec.Temperature = optionalFloat(cmd, "temp", temp)
			if rec.Date == "" {
				rec.Date = time.Now().Format("2006-01-02")
			}
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				field, err := resolveField(app, rec.FieldID)
				if err != nil {
					return err
				}
				rec.FieldID = field.ID
				added, err := app.Store.AddHayHarvestRecord(rec)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Cut %d %s bales on %s (cutting %d)", added.BaleCount, strings.ToLower(string(added.BaleType)), added.FieldName, added.CuttingNumber)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&rec.FieldID, "field", "", "field id or name")
	flags.IntVar(&rec.BaleCount, "bales", 0, "bale count")
	flags.IntVar(&rec.CuttingNumber, "cutting", 1, "cutting number")
	flags.StringVar(&baleType, "bale-type", string(domain.BaleRound), "Round or Square")
	flags.StringVar(&rec.Date, "date", "", "cutting date (YYYY-MM-DD, default today)")
	flags.Float64Var(&temp, "temp", 0, "temperature (°F)")
	flags.StringVar(&rec.Conditions, "conditions", "", "weather conditions")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func grainCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "grain", Short: "Move grain into and out of bins"}
	cmd.AddCommand(grainMoveCmd(e, domain.MovementIn))
	cmd.AddCommand(grainMoveCmd(e, domain.MovementOut))
	cmd.AddCommand(grainDeleteCmd(e))
	return cmd
}

func grainMoveCmd(e *env, dir domain.MovementType) *cobra.Command {
	var (
		m     domain.GrainMovement
		price float64
	)
	short := "Record grain put into a bin"
	if dir == domain.MovementOut {
		short = "Record grain taken out of a bin"
	}
	cmd := &cobra.Command{
		Use:   string(dir),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m.Type = dir
			m.Price = optionalFloat(cmd, "price", price)
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				bin, err := resolveBin(app, m.BinID)
				if err != nil {
					return err
				}
				m.BinID = bin.ID
				added, err := app.Store.AddGrainMovement(m)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Moved %s bu %s %s; bin now holds %s bu", number(added.Bushels), dir, added.BinName, number(app.Store.BinTotal(added.BinID)))
				if app.Store.BinTotal(added.BinID) < 0 {
					warn(cmd.OutOrStdout(), "%s shows negative inventory", added.BinName)
				}
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&m.BinID, "bin", "", "bin id or name")
	flags.Float64Var(&m.Bushels, "bushels", 0, "bushels moved")
	flags.Float64Var(&m.MoisturePercent, "moisture", 0, "moisture percent")
	flags.Float64Var(&price, "price", 0, "price per bushel")
	flags.StringVar(&m.Destination, "dest", "", "buyer or destination for grain out")
	flags.StringVar(&m.SourceFieldName, "source", "", "source field name for grain in")
	_ = cmd.MarkFlagRequired("bin")
	return cmd
}

func grainDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <movement-id>...",
		Short: "Delete grain movements",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				app.Store.DeleteGrainMovements(args...)
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d movement(s)\n", len(args))
				return nil
			})
		},
	}
}
