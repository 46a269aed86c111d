// Package coordinator renders the latest DisplayRecord into every active display
// surface when the host asks it to. It holds no state between calls and never
// writes to the store.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/pkg/config"
	"github.com/shubham-shewale/price-widget/pkg/models"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

const (
	DefaultPricePlaceholder = "---"
	DefaultAsOfPlaceholder  = "updated: …"
)

type Options struct {
	Schema           models.Schema
	PricePlaceholder string
	AsOfPlaceholder  string
	ShowTimestamp    bool
	Launch           LaunchAction // empty: no tap handler
	Concurrency      int
}

// Failure records why one instance could not be committed.
type Failure struct {
	Instance models.InstanceID
	Err      error
}

// Result reports the outcome of one Refresh, each list sorted by instance id.
type Result struct {
	Rendered []models.InstanceID
	Skipped  []models.InstanceID
	Failed   []Failure
}

// OptionsFromConfig maps the widget section of the configuration.
func OptionsFromConfig(cfg config.WidgetConfig) Options {
	return Options{
		Schema:           cfg.Schema,
		PricePlaceholder: cfg.PricePlaceholder,
		AsOfPlaceholder:  cfg.AsOfPlaceholder,
		ShowTimestamp:    cfg.ShowTimestamp,
		Launch:           LaunchAction(cfg.LaunchAction),
		Concurrency:      cfg.Concurrency,
	}
}

type Coordinator struct {
	reader    store.Reader
	presenter Presenter
	opts      Options
	logger    *zap.Logger
}

func New(reader store.Reader, presenter Presenter, opts Options, logger *zap.Logger) (*Coordinator, error) {
	if err := opts.Schema.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.PricePlaceholder) == "" {
		opts.PricePlaceholder = DefaultPricePlaceholder
	}
	if strings.TrimSpace(opts.AsOfPlaceholder) == "" {
		opts.AsOfPlaceholder = DefaultAsOfPlaceholder
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Coordinator{
		reader:    reader,
		presenter: presenter,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Refresh renders the current record into every valid instance and commits it.
// One instance failing never stops the others.
func (c *Coordinator) Refresh(ctx context.Context, ids []models.InstanceID) Result {
	var res Result
	targets := make([]models.InstanceID, 0, len(ids))
	seen := make(map[models.InstanceID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !id.Valid() {
			c.logger.Warn("Skipping invalid instance id", zap.String("instance", string(id)))
			res.Skipped = append(res.Skipped, id)
			continue
		}
		targets = append(targets, id)
	}

	if len(targets) > 0 {
		// Both fields are read once so every instance in this pass shows the same record
		rec := store.ReadRecord(ctx, c.reader, c.opts.Schema)
		errs := c.commitAll(ctx, rec, targets)

		for i, id := range targets {
			switch err := errs[i]; {
			case err == nil:
				res.Rendered = append(res.Rendered, id)
			case errors.Is(err, ErrUnknownInstance):
				c.logger.Info("Skipping unknown instance", zap.String("instance", string(id)))
				res.Skipped = append(res.Skipped, id)
			default:
				c.logger.Warn("Commit failed", zap.String("instance", string(id)), zap.Error(err))
				res.Failed = append(res.Failed, Failure{Instance: id, Err: err})
			}
		}
	}

	sortIDs(res.Rendered)
	sortIDs(res.Skipped)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Instance < res.Failed[j].Instance })

	c.logger.Debug("Refresh complete",
		zap.Int("rendered", len(res.Rendered)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
	)
	return res
}

// commitAll runs at most opts.Concurrency commits at a time. Instances not
// started before ctx is done are failed with the context error.
func (c *Coordinator) commitAll(ctx context.Context, rec models.DisplayRecord, targets []models.InstanceID) []error {
	errs := make([]error, len(targets))
	sem := make(chan struct{}, c.opts.Concurrency)
	var wg sync.WaitGroup

	for i, id := range targets {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		}
		if err := ctx.Err(); err != nil {
			<-sem
			errs[i] = err
			continue
		}

		wg.Add(1)
		go func(i int, id models.InstanceID) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = c.commit(ctx, id, c.Render(rec, id))
		}(i, id)
	}

	wg.Wait()
	return errs
}

func (c *Coordinator) commit(ctx context.Context, id models.InstanceID, view View) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("presenter panic: %v", r)
		}
	}()
	return c.presenter.Commit(ctx, id, view)
}

// Render maps a record onto the slots of one instance. It is pure: the same
// record and id always produce the same view.
func (c *Coordinator) Render(rec models.DisplayRecord, id models.InstanceID) View {
	view := View{
		Instance: id,
		Slots: []Slot{
			{Name: SlotPrice, Text: rec.PriceText.Or(c.opts.PricePlaceholder)},
		},
	}
	if c.opts.ShowTimestamp {
		view.Slots = append(view.Slots, Slot{Name: SlotTimestamp, Text: rec.AsOfText.Or(c.opts.AsOfPlaceholder)})
	}
	if c.opts.Launch != "" {
		view.Click = &Binding{Slot: SlotRoot, Action: c.opts.Launch}
	}
	return view
}

// Options returns the effective options after defaults were applied.
func (c *Coordinator) Options() Options { return c.opts }

func sortIDs(ids []models.InstanceID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
