// Package cli implements the farmctl commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"farmledger/internal/config"
	"farmledger/internal/wire"
	"farmledger/pkg/domain"
)

// Builder opens the App a command runs against.
type Builder func(ctx context.Context) (*wire.App, error)

type env struct {
	build Builder
}

// NewRootCmd returns the farmctl command tree. A nil build loads the
// configuration from the --env-file flags and the environment.
func NewRootCmd(build Builder) *cobra.Command {
	var envFiles []string
	e := &env{build: build}
	if e.build == nil {
		e.build = func(ctx context.Context) (*wire.App, error) {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return nil, err
			}
			return wire.Build(ctx, cfg)
		}
	}

	root := &cobra.Command{
		Use:   "farmctl",
		Short: "Offline-first farm records: fields, bins, field operations and compliance reports",
		Long: `farmctl keeps farm records in a local cache and mirrors them to the
remote store when a session is available. Writes made offline are queued
and replayed on the next sync.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(fieldCmd(e))
	root.AddCommand(binCmd(e))
	root.AddCommand(plantCmd(e))
	root.AddCommand(sprayCmd(e))
	root.AddCommand(harvestCmd(e))
	root.AddCommand(hayCmd(e))
	root.AddCommand(grainCmd(e))
	root.AddCommand(seedCmd(e))
	root.AddCommand(recipeCmd(e))
	root.AddCommand(seasonCmd(e))
	root.AddCommand(backupCmd(e))
	root.AddCommand(restoreCmd(e))
	root.AddCommand(reportCmd(e))
	root.AddCommand(syncCmd(e))
	root.AddCommand(rainCmd(e))
	root.AddCommand(demoCmd(e))
	return root
}

// run builds the App, lets the initial sign-in settle, runs fn and waits for
// the remote writes it queued before closing.
func (e *env) run(cmd *cobra.Command, fn func(ctx context.Context, app *wire.App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := e.build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); err == nil {
			err = cerr
		}
	}()
	app.Store.Start(ctx)
	app.Store.Wait()
	if err := fn(ctx, app); err != nil {
		return err
	}
	app.Store.Wait()
	return nil
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func ok(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("✓"), fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow).Sprint("!"), fmt.Sprintf(format, args...))
}

func number(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// optionalFloat returns nil unless the flag was set on the command line.
func optionalFloat(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

// parseProduct reads "name[:rate[:unit[:epa]]]".
func parseProduct(v string) (domain.SprayProduct, error) {
	parts := strings.SplitN(v, ":", 4)
	p := domain.SprayProduct{Product: strings.TrimSpace(parts[0])}
	if p.Product == "" {
		return p, fmt.Errorf("product %q has no name", v)
	}
	if len(parts) > 1 {
		p.Rate = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		p.RateUnit = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		p.EPARegNumber = strings.TrimSpace(parts[3])
	}
	return p, nil
}

func parseProducts(values []string) ([]domain.SprayProduct, error) {
	var out []domain.SprayProduct
	for _, v := range values {
		p, err := parseProduct(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// resolveField finds a field by id or, failing that, by name among the
// active fields. Names compare case-insensitively.
func resolveField(app *wire.App, ref string) (domain.Field, error) {
	if f, found := app.Store.FieldByID(ref); found {
		return f, nil
	}
	for _, f := range app.Store.Fields() {
		if strings.EqualFold(f.Name, strings.TrimSpace(ref)) {
			return f, nil
		}
	}
	return domain.Field{}, domain.NotFoundError{Entity: domain.EntityField, ID: ref}
}

// resolveBin is resolveField for bins.
func resolveBin(app *wire.App, ref string) (domain.Bin, error) {
	if b, found := app.Store.BinByID(ref); found {
		return b, nil
	}
	for _, b := range app.Store.Bins() {
		if strings.EqualFold(b.Name, strings.TrimSpace(ref)) {
			return b, nil
		}
	}
	return domain.Bin{}, domain.NotFoundError{Entity: domain.EntityBin, ID: ref}
}

func resolveFieldIDs(app *wire.App, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		f, err := resolveField(app, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func resolveBinIDs(app *wire.App, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		b, err := resolveBin(app, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

var errAborted = errors.New("aborted")
