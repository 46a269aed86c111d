// Package cli implements widgetctl, a terminal host for the price widget.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shubham-shewale/price-widget/pkg/config"
	"github.com/shubham-shewale/price-widget/pkg/coordinator"
	"github.com/shubham-shewale/price-widget/pkg/models"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

// Env is everything a command needs. The loader owns Store and the command closes it.
type Env struct {
	Config *config.Config
	Store  store.Store
	Logger *zap.Logger
}

type Loader func(ctx context.Context) (*Env, error)

// DefaultLoader reads configuration from the environment and opens the configured backend.
func DefaultLoader(ctx context.Context) (*Env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	return &Env{Config: cfg, Store: st, Logger: logger}, nil
}

var errNothingToWrite = errors.New("nothing to write: pass --price and/or --as-of")

type recordOutput struct {
	PriceKey string  `yaml:"price_key"`
	Price    *string `yaml:"price"`
	AsOfKey  string  `yaml:"as_of_key"`
	AsOf     *string `yaml:"as_of"`
}

func textPtr(t models.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.Value
	return &v
}

// NewRootCmd builds the command tree. Tests inject a Loader backed by a memory store.
func NewRootCmd(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "widgetctl",
		Short:         "Inspect, write and render the shared price widget record",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	// withEnv loads the environment for one command and releases it afterwards.
	withEnv := func(cmd *cobra.Command, fn func(env *Env) error) error {
		env, err := load(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Store.Close()
		return fn(env)
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current display record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(env *Env) error {
				schema := env.Config.Widget.Schema
				rec := store.ReadRecord(cmd.Context(), env.Store, schema)
				return writeYAML(cmd.OutOrStdout(), recordOutput{
					PriceKey: schema.PriceKey,
					Price:    textPtr(rec.PriceText),
					AsOfKey:  schema.AsOfKey,
					AsOf:     textPtr(rec.AsOfText),
				})
			})
		},
	}

	var price, asOf string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Write the display record the way the producer does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := models.DisplayRecord{PriceText: models.NewText(price), AsOfText: models.NewText(asOf)}
			if !rec.PriceText.Valid && !rec.AsOfText.Valid {
				return errNothingToWrite
			}
			return withEnv(cmd, func(env *Env) error {
				if err := store.WriteRecord(cmd.Context(), env.Store, env.Config.Widget.Schema, rec); err != nil {
					return fmt.Errorf("write record: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
	setCmd.Flags().StringVar(&price, "price", "", "formatted price text, e.g. 1,234,000")
	setCmd.Flags().StringVar(&asOf, "as-of", "", "formatted as-of text, e.g. 09:30")

	var output string
	renderCmd := &cobra.Command{
		Use:   "render [instance-ids...]",
		Short: "Run one refresh pass against terminal surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(env *Env) error {
				r, err := newRenderer(env, cmd.OutOrStdout(), cmd.ErrOrStderr(), output, instanceIDs(args))
				if err != nil {
					return err
				}
				return r.pass(cmd.Context())
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch [instance-ids...]",
		Short: "Re-render terminal surfaces on every store change until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(env *Env) error {
				r, err := newRenderer(env, cmd.OutOrStdout(), cmd.ErrOrStderr(), output, instanceIDs(args))
				if err != nil {
					return err
				}
				return r.watch(cmd.Context(), env.Store)
			})
		},
	}

	for _, c := range []*cobra.Command{renderCmd, watchCmd} {
		c.Flags().StringVarP(&output, "output", "o", "box", "output format: box or yaml")
	}

	root.AddCommand(getCmd, setCmd, renderCmd, watchCmd)
	return root
}

func instanceIDs(args []string) []models.InstanceID {
	if len(args) == 0 {
		return []models.InstanceID{"terminal"}
	}
	ids := make([]models.InstanceID, 0, len(args))
	for _, a := range args {
		ids = append(ids, models.InstanceID(strings.TrimSpace(a)))
	}
	return ids
}

type renderer struct {
	coord     *coordinator.Coordinator
	presenter *TerminalPresenter
	ids       []models.InstanceID
	output    string
	out       io.Writer
	errOut    io.Writer
}

func newRenderer(env *Env, out, errOut io.Writer, output string, ids []models.InstanceID) (*renderer, error) {
	if output != "box" && output != "yaml" {
		return nil, fmt.Errorf("unknown output format %q", output)
	}
	presenter := NewTerminalPresenter()
	coord, err := coordinator.New(env.Store, presenter, coordinator.OptionsFromConfig(env.Config.Widget), env.Logger)
	if err != nil {
		return nil, err
	}
	return &renderer{coord: coord, presenter: presenter, ids: ids, output: output, out: out, errOut: errOut}, nil
}

func (r *renderer) pass(ctx context.Context) error {
	res := r.coord.Refresh(ctx, r.ids)
	for _, id := range res.Skipped {
		fmt.Fprintf(r.errOut, "skipped %q\n", id)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(r.errOut, "failed %q: %v\n", f.Instance, f.Err)
	}

	views := r.presenter.Views()
	if r.output == "yaml" {
		return writeYAML(r.out, views)
	}
	if len(views) > 0 {
		fmt.Fprintln(r.out, renderBoxes(views))
	}
	return nil
}

func (r *renderer) watch(ctx context.Context, n store.Notifier) error {
	changes, err := n.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch store: %w", err)
	}
	if err := r.pass(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := r.pass(ctx); err != nil {
				return err
			}
		}
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
