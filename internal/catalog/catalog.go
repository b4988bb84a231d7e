// Package catalog merges the built-in static strategies with those listed by the remote service.
package catalog

import (
	"sort"

	"github.com/saltfish/allocdesk/internal/domain"
)

// Display is a localized name and description for a strategy.
type Display struct {
	Name        string
	Description string
}

// DisplayOverrides supplies localized text for remote strategies.
type DisplayOverrides interface {
	Display(strategyID string) (Display, bool)
}

// DisplayMap is a map-backed DisplayOverrides.
type DisplayMap map[string]Display

// Display implements DisplayOverrides.
func (m DisplayMap) Display(strategyID string) (Display, bool) {
	d, ok := m[strategyID]
	return d, ok
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	overrides DisplayOverrides
}

// WithDisplayOverrides applies localized text on top of remote definitions.
func WithDisplayOverrides(o DisplayOverrides) Option {
	return func(b *buildOptions) {
		b.overrides = o
	}
}

// Catalog is an immutable, id-addressable strategy collection.
type Catalog struct {
	byID   map[string]domain.StrategyDefinition
	sorted []string
}

// Build starts from the static set and overlays every remote definition as dynamic.
// A nil or empty remote set yields a static-only catalog.
func Build(static []domain.StrategyDefinition, remote map[string]domain.StrategyDefinition, opts ...Option) *Catalog {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	byID := make(map[string]domain.StrategyDefinition, len(static)+len(remote))
	for _, def := range static {
		byID[def.ID] = def.Clone()
	}

	for id, def := range remote {
		d := def.Clone()
		d.ID = id
		d.Kind = domain.StrategyKindDynamic
		d.Allocation = nil
		if o.overrides != nil {
			if disp, ok := o.overrides.Display(id); ok {
				if disp.Name != "" {
					d.Name = disp.Name
				}
				if disp.Description != "" {
					d.Description = disp.Description
				}
			}
		}
		if d.Name == "" {
			d.Name = id
		}
		byID[id] = d
	}

	sorted := make([]string, 0, len(byID))
	for id := range byID {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := byID[sorted[i]], byID[sorted[j]]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	return &Catalog{byID: byID, sorted: sorted}
}

// Static returns a catalog containing only the built-in strategies.
func Static() *Catalog {
	return Build(StaticDefinitions(), nil)
}

// Get returns a copy of the definition for id.
func (c *Catalog) Get(id string) (domain.StrategyDefinition, error) {
	def, ok := c.byID[id]
	if !ok {
		return domain.StrategyDefinition{}, domain.NewNotFoundError("strategy", id)
	}
	return def.Clone(), nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Len returns the number of strategies.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// Sorted returns copies of all definitions ordered by display name.
func (c *Catalog) Sorted() []domain.StrategyDefinition {
	out := make([]domain.StrategyDefinition, 0, len(c.sorted))
	for _, id := range c.sorted {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// DefaultID picks the initial selection: the flagship id when present,
// else the alphabetically first entry. It returns "" for an empty catalog.
func (c *Catalog) DefaultID(flagship string) string {
	if flagship != "" && c.Has(flagship) {
		return flagship
	}
	if len(c.sorted) == 0 {
		return ""
	}
	return c.sorted[0]
}

// DynamicCount returns how many strategies are computed remotely.
func (c *Catalog) DynamicCount() int {
	n := 0
	for _, def := range c.byID {
		if def.IsDynamic() {
			n++
		}
	}
	return n
}
