// Package store is the shared state between the producer and every display surface:
// a small durable mapping from string keys to optional string values.
package store

import (
	"context"

	"github.com/shubham-shewale/price-widget/pkg/models"
)

// Reader is the read-only capability handed to display surfaces.
// Get never fails: a missing key and an unreachable backend both report absent.
type Reader interface {
	Get(ctx context.Context, key string) (string, bool)
}

// Writer is used by the producer only. Last write wins.
type Writer interface {
	Set(ctx context.Context, key, value string) error
	// SetMany writes all fields atomically so readers never see a mix of two writes.
	SetMany(ctx context.Context, fields map[string]string) error
}

// Notifier reports that the store changed. Signals are coalesced:
// a slow receiver sees at most one pending signal.
type Notifier interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

type Store interface {
	Reader
	Writer
	Notifier
	Close() error
}

// ReadRecord reads every field of the record once, validating values at the boundary.
func ReadRecord(ctx context.Context, r Reader, schema models.Schema) models.DisplayRecord {
	var rec models.DisplayRecord
	if v, ok := r.Get(ctx, schema.PriceKey); ok {
		rec.PriceText = models.NewText(v)
	}
	if v, ok := r.Get(ctx, schema.AsOfKey); ok {
		rec.AsOfText = models.NewText(v)
	}
	return rec
}

// WriteRecord stores the valid fields of rec in a single atomic write.
func WriteRecord(ctx context.Context, w Writer, schema models.Schema, rec models.DisplayRecord) error {
	fields := schema.Fields(rec)
	if len(fields) == 0 {
		return nil
	}
	return w.SetMany(ctx, fields)
}

// signal performs a non-blocking send so bursts of writes collapse into one notification.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
