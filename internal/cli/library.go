package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"farmledger/internal/wire"
	"farmledger/pkg/domain"
)

func seedCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "seed", Short: "Manage saved seed varieties"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Save a seed variety name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				seed, err := app.Store.AddSavedSeed(args[0])
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Saved seed %s: %s", seed.ID, seed.Name)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved seed varieties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tNAME")
				for _, s := range app.Store.SavedSeeds() {
					fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Name)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func recipeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "recipe", Short: "Manage saved spray mixes"}
	cmd.AddCommand(recipeAddCmd(e))
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved spray mixes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tNAME\tPRODUCTS\tAPPLICATOR")
				for _, r := range app.Store.SprayRecipes() {
					names := make([]string, 0, len(r.Products))
					for _, p := range r.Products {
						names = append(names, strings.TrimSpace(p.Product+" "+p.Rate+" "+p.RateUnit))
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, strings.Join(names, "; "), r.ApplicatorName)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func recipeAddCmd(e *env) *cobra.Command {
	var (
		recipe   domain.SprayRecipe
		products []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a spray mix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := parseProducts(products)
			if err != nil {
				return err
			}
			recipe.Products = items
			return e.run(cmd, func(_ context.Context, app *wire.App) error {
				added, err := app.Store.AddSprayRecipe(recipe)
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "Saved recipe %s: %s (%d products)", added.ID, added.Name, len(added.Products))
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&recipe.Name, "name", "", "recipe name")
	flags.StringArrayVar(&products, "product", nil, "product line item name:rate:unit:epa (repeatable)")
	flags.StringVar(&recipe.ApplicatorName, "applicator", "", "default applicator")
	flags.StringVar(&recipe.LicenseNumber, "license", "", "default license number")
	flags.StringVar(&recipe.TargetPest, "pest", "", "default target pest")
	flags.StringVar(&recipe.EPARegNumber, "epa", "", "EPA registration number")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
