package models

// Chart states a narrative section may ask the presentation layer to show.
const (
	ChartAllPrograms   = "all_programs"
	ChartMedicaidFocus = "medicaid_focus"
	ChartCHIPFocus     = "chip_focus"
	ChartCliffFocus    = "cliff_focus"
	ChartIRAImpact     = "ira_impact"
	ChartBothReforms   = "both_reforms"
)

// ValidChartStates is the closed set of chartState values.
var ValidChartStates = map[string]bool{
	ChartAllPrograms:   true,
	ChartMedicaidFocus: true,
	ChartCHIPFocus:     true,
	ChartCliffFocus:    true,
	ChartIRAImpact:     true,
	ChartBothReforms:   true,
}

// NarrativeRequest carries a household plus the already-computed figures
// the narrative should quote.
type NarrativeRequest struct {
	AgeHead       int    `json:"age_head" validate:"gte=18,lte=100"`
	AgeSpouse     *int   `json:"age_spouse" validate:"omitempty,gte=18,lte=100"`
	DependentAges []int  `json:"dependent_ages" validate:"max=10,dive,gte=0,lte=25"`
	State         string `json:"state" validate:"statecode"`
	County        string `json:"county" validate:"required"`

	IsExpansionState          bool    `json:"is_expansion_state"`
	MedicaidAdultThresholdPct float64 `json:"medicaid_adult_threshold_pct" validate:"gte=0"`
	MedicaidChildThresholdPct float64 `json:"medicaid_child_threshold_pct" validate:"gte=0"`
	CHIPThresholdPct          float64 `json:"chip_threshold_pct" validate:"gte=0"`

	FPL          float64 `json:"fpl" validate:"gt=0"`
	FPL400Income float64 `json:"fpl_400_income" validate:"gte=0"`
	FPL700Income float64 `json:"fpl_700_income" validate:"gte=0"`
	SLCSP        float64 `json:"slcsp" validate:"gte=0"`

	SampleIncome        float64 `json:"sample_income" validate:"gte=0"`
	PTCBaselineAtSample float64 `json:"ptc_baseline_at_sample"`
	PTCIRAAtSample      float64 `json:"ptc_ira_at_sample"`
	PTC700FPLAtSample   float64 `json:"ptc_700fpl_at_sample"`

	ShowIRA    bool `json:"show_ira"`
	Show700FPL bool `json:"show_700fpl"`
}

// NewNarrativeRequest returns a request with the default reform selection.
func NewNarrativeRequest() NarrativeRequest {
	return NarrativeRequest{ShowIRA: true}
}

// Validate checks field ranges and returns a *ValidationError on failure.
func (r *NarrativeRequest) Validate() error {
	return validateStruct(r)
}

// HouseholdSize counts the head, an optional spouse and every dependent.
func (r *NarrativeRequest) HouseholdSize() int {
	n := 1 + len(r.DependentAges)
	if r.AgeSpouse != nil {
		n++
	}
	return n
}

// HasChildren reports whether the household lists any dependents.
func (r *NarrativeRequest) HasChildren() bool {
	return len(r.DependentAges) > 0
}

// NarrativeSection is one scrollytelling block.
type NarrativeSection struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	ChartState string `json:"chartState"`
}

// NarrativeResult is the ordered list of sections returned by /explain.
type NarrativeResult struct {
	Sections             []NarrativeSection `json:"sections"`
	HouseholdDescription string             `json:"household_description"`
}
