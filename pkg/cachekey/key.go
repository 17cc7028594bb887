// Package cachekey derives stable cache identifiers from requests.
//
// A key is the xxhash64 digest of a JSON projection of the request onto the
// fields that change the computation, printed as 16 hex characters. Struct
// field order fixes the serialization order; slices keep their order.
package cachekey

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/acacalc/acacalc/pkg/models"
)

// Size is the length of every derived key.
const Size = 16

type calculationProjection struct {
	AgeHead       int     `json:"age_head"`
	AgeSpouse     *int    `json:"age_spouse"`
	DependentAges []int   `json:"dependent_ages"`
	State         string  `json:"state"`
	County        string  `json:"county"`
	ZipCode       *string `json:"zip_code"`
	Reforms       []bool  `json:"reforms"`
}

// Calculation derives the key for a calculation request. reformIDs fixes
// which selection flags take part and in which order; it is normally the
// reform catalogue's id list.
func Calculation(req models.CalculationRequest, reformIDs []string) string {
	p := calculationProjection{
		AgeHead:       req.AgeHead,
		AgeSpouse:     req.AgeSpouse,
		DependentAges: nonNilInts(req.DependentAges),
		State:         req.State,
		County:        req.County,
		ZipCode:       req.ZipCode,
		Reforms:       make([]bool, len(reformIDs)),
	}
	for i, id := range reformIDs {
		p.Reforms[i] = req.Selected(id)
	}
	return digest(p)
}

type narrativeProjection struct {
	AgeHead          int     `json:"age_head"`
	AgeSpouse        *int    `json:"age_spouse"`
	DependentAges    []int   `json:"dependent_ages"`
	State            string  `json:"state"`
	County           string  `json:"county"`
	IsExpansionState bool    `json:"is_expansion_state"`
	ShowIRA          bool    `json:"show_ira"`
	Show700FPL       bool    `json:"show_700fpl"`
	MedicaidAdultPct float64 `json:"medicaid_adult_pct"`
	MedicaidChildPct float64 `json:"medicaid_child_pct"`
	CHIPPct          float64 `json:"chip_pct"`
	FPL              float64 `json:"fpl"`
	FPL400           float64 `json:"fpl_400"`
	FPL700           float64 `json:"fpl_700"`
	SLCSP            float64 `json:"slcsp"`
	SampleIncome     float64 `json:"sample_income"`
	PTCBaseline      float64 `json:"ptc_baseline"`
	PTCIRA           float64 `json:"ptc_ira"`
	PTC700FPL        float64 `json:"ptc_700fpl"`
}

// Narrative derives the key for a narrative request. Financial scalars are
// rounded to the nearest multiple of granularity first, so near-identical
// requests share an entry. A granularity <= 0 means whole units.
func Narrative(req models.NarrativeRequest, granularity float64) string {
	r := func(v float64) float64 { return Round(v, granularity) }
	p := narrativeProjection{
		AgeHead:          req.AgeHead,
		AgeSpouse:        req.AgeSpouse,
		DependentAges:    nonNilInts(req.DependentAges),
		State:            req.State,
		County:           req.County,
		IsExpansionState: req.IsExpansionState,
		ShowIRA:          req.ShowIRA,
		Show700FPL:       req.Show700FPL,
		MedicaidAdultPct: req.MedicaidAdultThresholdPct,
		MedicaidChildPct: req.MedicaidChildThresholdPct,
		CHIPPct:          req.CHIPThresholdPct,
		FPL:              r(req.FPL),
		FPL400:           r(req.FPL400Income),
		FPL700:           r(req.FPL700Income),
		SLCSP:            r(req.SLCSP),
		SampleIncome:     r(req.SampleIncome),
		PTCBaseline:      r(req.PTCBaselineAtSample),
		PTCIRA:           r(req.PTCIRAAtSample),
		PTC700FPL:        r(req.PTC700FPLAtSample),
	}
	return digest(p)
}

// Round rounds v to the nearest multiple of granularity.
func Round(v, granularity float64) float64 {
	if granularity <= 0 {
		granularity = 1
	}
	out := math.Round(v/granularity) * granularity
	if out == 0 {
		return 0 // drop negative zero
	}
	return out
}

func digest(v any) string {
	// The projections hold only ints, floats, bools and strings.
	data, _ := json.Marshal(v)
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
