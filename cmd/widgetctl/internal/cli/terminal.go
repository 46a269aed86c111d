package cli

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/shubham-shewale/price-widget/pkg/coordinator"
	"github.com/shubham-shewale/price-widget/pkg/models"
)

var (
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Faint(true)
	priceStyle   = lipgloss.NewStyle().Bold(true)
	subtextStyle = lipgloss.NewStyle().Faint(true)
)

// TerminalPresenter collects the views committed during a pass so the
// command can print them in instance order afterwards.
type TerminalPresenter struct {
	mu    sync.Mutex
	views map[models.InstanceID]coordinator.View
}

func NewTerminalPresenter() *TerminalPresenter {
	return &TerminalPresenter{views: make(map[models.InstanceID]coordinator.View)}
}

func (p *TerminalPresenter) Commit(_ context.Context, id models.InstanceID, view coordinator.View) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views[id] = view
	return nil
}

// Views returns the latest view of every instance, sorted by id.
func (p *TerminalPresenter) Views() []coordinator.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]coordinator.View, 0, len(p.views))
	for _, v := range p.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func renderBox(v coordinator.View) string {
	lines := []string{titleStyle.Render(string(v.Instance))}
	if t, ok := v.Text(coordinator.SlotPrice); ok {
		lines = append(lines, priceStyle.Render(t))
	}
	if t, ok := v.Text(coordinator.SlotTimestamp); ok {
		lines = append(lines, subtextStyle.Render(t))
	}
	if v.Click != nil {
		lines = append(lines, subtextStyle.Render("tap → "+string(v.Click.Action)))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderBoxes(views []coordinator.View) string {
	boxes := make([]string, 0, len(views))
	for _, v := range views {
		boxes = append(boxes, renderBox(v))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}
