package coordinator

import (
	"context"
	"errors"

	"github.com/shubham-shewale/price-widget/pkg/models"
)

// SlotName is a named region of a host-rendered surface.
type SlotName string

const (
	SlotRoot      SlotName = "root"
	SlotPrice     SlotName = "price"
	SlotTimestamp SlotName = "timestamp"
)

// LaunchAction is an opaque host token for "open the primary application".
// The coordinator binds it, it never interprets it.
type LaunchAction string

type Slot struct {
	Name SlotName `json:"name" yaml:"name"`
	Text string   `json:"text" yaml:"text"`
}

// Binding attaches a launch action to a slot.
type Binding struct {
	Slot   SlotName     `json:"slot" yaml:"slot"`
	Action LaunchAction `json:"action" yaml:"action"`
}

// View is the fully rendered state of one instance.
type View struct {
	Instance models.InstanceID `json:"instance" yaml:"instance"`
	Slots    []Slot            `json:"slots" yaml:"slots"`
	Click    *Binding          `json:"click,omitempty" yaml:"click,omitempty"`
}

// Text returns the text rendered into the named slot.
func (v View) Text(name SlotName) (string, bool) {
	for _, s := range v.Slots {
		if s.Name == name {
			return s.Text, true
		}
	}
	return "", false
}

// ErrUnknownInstance is returned (possibly wrapped) by a Presenter that has no
// surface for the id. The coordinator skips such ids instead of failing them.
var ErrUnknownInstance = errors.New("unknown instance")

// Presenter is the host's presentation layer.
type Presenter interface {
	Commit(ctx context.Context, id models.InstanceID, view View) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, id models.InstanceID, view View) error

func (f PresenterFunc) Commit(ctx context.Context, id models.InstanceID, view View) error {
	return f(ctx, id, view)
}
