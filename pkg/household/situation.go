// Package household turns a calculation request into the structured
// household description the computation engine evaluates.
package household

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/acacalc/acacalc/pkg/models"
)

// Member and unit identifiers. Dependents past the second are numbered
// from 3, so dependent order determines each child's identifier.
const (
	Head        = "you"
	Spouse      = "your partner"
	Family      = "your family"
	SPMUnit     = "your household"
	TaxUnit     = "your tax unit"
	HouseholdID = "your household"
	MaritalUnit = "your marital unit"
)

// DependentID returns the member identifier of the i-th (zero-based) dependent.
func DependentID(i int) string {
	switch i {
	case 0:
		return "your first dependent"
	case 1:
		return "your second dependent"
	}
	return fmt.Sprintf("dependent_%d", i+1)
}

// CountyID converts a county name to the engine's county identifier,
// e.g. "Harris County", "TX" -> "HARRIS_COUNTY_TX".
func CountyID(county, state string) string {
	return strings.ReplaceAll(strings.ToUpper(county), " ", "_") + "_" + state
}

// Situation is the engine's household input.
type Situation struct {
	People       map[string]Person    `json:"people"`
	Families     map[string]Group     `json:"families"`
	SPMUnits     map[string]Group     `json:"spm_units"`
	TaxUnits     map[string]Group     `json:"tax_units"`
	Households   map[string]Household `json:"households"`
	MaritalUnits map[string]Group     `json:"marital_units,omitempty"`
	Axes         [][]Axis             `json:"axes,omitempty"`
}

// Person carries per-period attributes of one member.
type Person struct {
	Age map[string]int `json:"age"`
}

// Group is any membership unit (family, tax unit, ...).
type Group struct {
	Members []string `json:"members"`
}

// Household is the geographic unit.
type Household struct {
	Members   []string          `json:"members"`
	StateName map[string]string `json:"state_name"`
	County    map[string]string `json:"county,omitempty"`
	ZipCode   map[string]string `json:"zip_code,omitempty"`
}

// Axis sweeps one variable over an evenly spaced range.
type Axis struct {
	Name   string  `json:"name"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Period int     `json:"period"`
}

// Options controls the period and income sweep.
type Options struct {
	Year      int
	WithAxes  bool
	AxisCount int
	AxisMax   float64
}

// DefaultOptions sweeps employment income over 0..1,000,000 in 10,001 points
// for 2026.
func DefaultOptions() Options {
	return Options{Year: 2026, WithAxes: true, AxisCount: 10_001, AxisMax: 1_000_000}
}

// Build assembles the situation for req.
func Build(req models.CalculationRequest, opts Options) *Situation {
	year := strconv.Itoa(opts.Year)
	members := []string{Head}

	s := &Situation{
		People: map[string]Person{
			Head: {Age: map[string]int{year: req.AgeHead}},
		},
	}

	if req.AgeSpouse != nil {
		s.People[Spouse] = Person{Age: map[string]int{year: *req.AgeSpouse}}
		members = append(members, Spouse)
		s.MaritalUnits = map[string]Group{
			MaritalUnit: {Members: []string{Head, Spouse}},
		}
	}

	for i, age := range req.DependentAges {
		id := DependentID(i)
		s.People[id] = Person{Age: map[string]int{year: age}}
		members = append(members, id)
		if s.MaritalUnits == nil {
			s.MaritalUnits = make(map[string]Group)
		}
		s.MaritalUnits[id+"'s marital unit"] = Group{Members: []string{id}}
	}

	// Each unit gets its own slice so callers can't alias them.
	group := func() Group { return Group{Members: append([]string(nil), members...)} }
	s.Families = map[string]Group{Family: group()}
	s.SPMUnits = map[string]Group{SPMUnit: group()}
	s.TaxUnits = map[string]Group{TaxUnit: group()}

	hh := Household{
		Members:   append([]string(nil), members...),
		StateName: map[string]string{year: req.State},
	}
	if req.County != "" {
		hh.County = map[string]string{year: CountyID(req.County, req.State)}
	}
	if req.ZipCode != nil && *req.ZipCode != "" {
		hh.ZipCode = map[string]string{year: *req.ZipCode}
	}
	s.Households = map[string]Household{HouseholdID: hh}

	if opts.WithAxes {
		s.Axes = [][]Axis{{{
			Name:   "employment_income",
			Count:  opts.AxisCount,
			Min:    0,
			Max:    opts.AxisMax,
			Period: opts.Year,
		}}}
	}
	return s
}

// Size returns the number of people in the situation.
func (s *Situation) Size() int {
	return len(s.People)
}
