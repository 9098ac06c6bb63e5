package cart

import "sync"

// DefaultExcludedTitle is the sentinel line that stays in the cart and
// its total but never shows in the visible item count.
const DefaultExcludedTitle = "Gift Wrap"

// CountDisplay is one registered counter target (header badge,
// scrolled-header badge, mobile badge, a metrics gauge, ...).
type CountDisplay interface {
	SetCount(n int)
	SetVisible(visible bool)
}

// Presenter derives the visible item count from a snapshot and pushes
// it to every registered display. Targets that were never registered,
// or registered as nil, are skipped silently.
type Presenter struct {
	mu       sync.Mutex
	excluded string
	displays map[string]CountDisplay
}

func NewPresenter(excludedTitle string) *Presenter {
	if excludedTitle == "" {
		excludedTitle = DefaultExcludedTitle
	}
	return &Presenter{
		excluded: excludedTitle,
		displays: map[string]CountDisplay{},
	}
}

func (p *Presenter) Register(name string, d CountDisplay) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.displays[name] = d
}

func (p *Presenter) Unregister(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.displays, name)
}

// VisibleCount sums quantities over all lines except the excluded
// add-on service line.
func (p *Presenter) VisibleCount(snap Snapshot) int {
	count := 0
	for _, item := range snap.Items {
		if item.ProductTitle == p.excluded {
			continue
		}
		count += item.Quantity
	}
	return count
}

// Push sends the derived count to every registered display and
// toggles visibility: hidden at zero, visible above it.
func (p *Presenter) Push(snap Snapshot) {
	count := p.VisibleCount(snap)

	p.mu.Lock()
	targets := make([]CountDisplay, 0, len(p.displays))
	for _, d := range p.displays {
		if d != nil {
			targets = append(targets, d)
		}
	}
	p.mu.Unlock()

	for _, d := range targets {
		d.SetCount(count)
		d.SetVisible(count > 0)
	}
}
