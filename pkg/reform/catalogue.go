// Package reform holds the catalogue of policy reforms that can be
// compared against current law.
package reform

import (
	"fmt"

	"github.com/acacalc/acacalc/pkg/models"
)

// Overlay maps a parameter path to period-range values, e.g.
// {"gov.aca.ptc_phase_out_rate[3].amount": {"2026-01-01.2100-12-31": 0.02}}.
type Overlay map[string]map[string]any

// Reform is a named parameter overlay.
type Reform struct {
	ID      string
	Name    string
	Overlay Overlay
}

const forever = "2026-01-01.2100-12-31"

func enhancedPhaseOut() Overlay {
	o := Overlay{}
	for i, rate := range []float64{0, 0, 0, 0.02, 0.04, 0.06, 0.085} {
		period := forever
		if i == 1 {
			period = "2025-01-01.2100-12-31"
		}
		o[fmt.Sprintf("gov.aca.ptc_phase_out_rate[%d].amount", i)] = map[string]any{period: rate}
	}
	return o
}

func builtins() []Reform {
	ira := enhancedPhaseOut()
	ira["gov.aca.ptc_income_eligibility[2].amount"] = map[string]any{forever: true}

	fpl700 := enhancedPhaseOut()
	fpl700["gov.contrib.aca.ptc_700_fpl_cliff.in_effect"] = map[string]any{forever: true}

	return []Reform{
		{ID: models.ReformIRA, Name: "IRA enhanced credits extended", Overlay: ira},
		{ID: models.Reform700FPL, Name: "Enhanced credits capped at 700% FPL", Overlay: fpl700},
		{ID: models.ReformAdditionalBracket, Name: "Additional contribution bracket", Overlay: Overlay{
			"gov.contrib.aca.ptc_additional_bracket.in_effect": {forever: true},
		}},
		{ID: models.ReformSimplifiedBracket, Name: "Simplified contribution brackets", Overlay: Overlay{
			"gov.contrib.aca.ptc_simplified_bracket.in_effect": {forever: true},
		}},
	}
}

// Catalogue is the ordered set of known reforms.
type Catalogue struct {
	reforms []Reform
}

// Default returns the built-in catalogue.
func Default() *Catalogue {
	return &Catalogue{reforms: builtins()}
}

// IDs returns reform identifiers in catalogue order.
func (c *Catalogue) IDs() []string {
	ids := make([]string, len(c.reforms))
	for i, r := range c.reforms {
		ids[i] = r.ID
	}
	return ids
}

// All returns the reforms in catalogue order.
func (c *Catalogue) All() []Reform {
	return append([]Reform(nil), c.reforms...)
}

// Get looks up a reform by id.
func (c *Catalogue) Get(id string) (Reform, bool) {
	for _, r := range c.reforms {
		if r.ID == id {
			return r, true
		}
	}
	return Reform{}, false
}

// Override replaces the name and/or overlay of a known reform. Empty
// values leave the current setting in place. Only the built-in ids are
// accepted because each one is tied to a request flag.
func (c *Catalogue) Override(id, name string, overlay Overlay) error {
	for i := range c.reforms {
		if c.reforms[i].ID != id {
			continue
		}
		if name != "" {
			c.reforms[i].Name = name
		}
		if len(overlay) > 0 {
			c.reforms[i].Overlay = overlay
		}
		return nil
	}
	return fmt.Errorf("unknown reform %q", id)
}
