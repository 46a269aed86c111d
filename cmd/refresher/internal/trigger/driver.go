// Package trigger is the host side of the refresh contract: it decides when the
// coordinator runs and guarantees that only one refresh runs at a time.
package trigger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/pkg/coordinator"
	"github.com/shubham-shewale/price-widget/pkg/models"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

type Kind string

const (
	KindBoot     Kind = "boot"
	KindInterval Kind = "interval"
	KindChange   Kind = "change"
	KindRequest  Kind = "request"
)

type Refresher interface {
	Refresh(ctx context.Context, ids []models.InstanceID) coordinator.Result
}

// InstanceSource lists the currently active instances.
type InstanceSource interface {
	Instances() []models.InstanceID
}

type Observer interface {
	Observe(kind Kind, res coordinator.Result, elapsed time.Duration)
}

type Options struct {
	Interval      time.Duration // 0 disables the timer
	RequestBuffer int
}

type Driver struct {
	refresher Refresher
	source    InstanceSource
	notifier  store.Notifier
	observer  Observer
	logger    *zap.Logger
	interval  time.Duration
	requests  chan []models.InstanceID
}

// NewDriver wires a driver. notifier and observer may be nil.
func NewDriver(r Refresher, src InstanceSource, n store.Notifier, obs Observer, opts Options, logger *zap.Logger) *Driver {
	if opts.RequestBuffer < 1 {
		opts.RequestBuffer = 1
	}
	return &Driver{
		refresher: r,
		source:    src,
		notifier:  n,
		observer:  obs,
		logger:    logger,
		interval:  opts.Interval,
		requests:  make(chan []models.InstanceID, opts.RequestBuffer),
	}
}

// Request queues an explicit refresh without blocking. No ids means every active
// instance. It reports false when the queue is full and the request was dropped.
func (d *Driver) Request(ids ...models.InstanceID) bool {
	select {
	case d.requests <- ids:
		return true
	default:
		d.logger.Warn("Dropping refresh request, queue full", zap.Int("instances", len(ids)))
		return false
	}
}

// Run performs the boot refresh, then serves timer, change and request
// triggers one at a time until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	var changes <-chan struct{}
	if d.notifier != nil {
		ch, err := d.notifier.Watch(ctx)
		if err != nil {
			// Timer and explicit requests still repair state
			d.logger.Warn("Store change notifications unavailable", zap.Error(err))
		} else {
			changes = ch
		}
	}

	var tick <-chan time.Time
	if d.interval > 0 {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	d.logger.Info("Refresh driver started", zap.Duration("interval", d.interval), zap.Bool("watching", changes != nil))
	d.fire(ctx, KindBoot, nil)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Refresh driver stopped")
			return ctx.Err()
		case <-tick:
			d.fire(ctx, KindInterval, nil)
		case _, ok := <-changes:
			if !ok {
				d.logger.Warn("Store change notifications ended")
				changes = nil
				continue
			}
			d.fire(ctx, KindChange, nil)
		case ids := <-d.requests:
			d.fire(ctx, KindRequest, ids)
		}
	}
}

func (d *Driver) fire(ctx context.Context, kind Kind, ids []models.InstanceID) {
	if len(ids) == 0 {
		ids = d.source.Instances()
	}

	pass := uuid.NewString()
	start := time.Now()
	res := d.refresher.Refresh(ctx, ids)
	elapsed := time.Since(start)

	if d.observer != nil {
		d.observer.Observe(kind, res, elapsed)
	}

	fields := []zap.Field{
		zap.String("pass", pass),
		zap.String("trigger", string(kind)),
		zap.Int("rendered", len(res.Rendered)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("elapsed", elapsed),
	}
	if len(res.Failed) > 0 {
		d.logger.Warn("Refresh finished with failures", fields...)
		return
	}
	d.logger.Debug("Refresh finished", fields...)
}
