package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

const reformKeyPrefix = "ptc_"

// CalculationResult holds the per-income value curves for one household.
//
// Every reform in Reforms has the same length as Income. An unselected or
// failed reform is an all-zero array, never absent.
type CalculationResult struct {
	Income   []float64
	Baseline []float64
	Reforms  map[string][]float64
	Medicaid []float64
	CHIP     []float64
	FPL      float64
	SLCSP    float64

	// FailedReforms lists selected reforms whose engine run failed and were
	// zeroed. A result with failures is returned but not cached.
	FailedReforms []string
}

// Degraded reports whether any selected reform was replaced by zeros.
func (r *CalculationResult) Degraded() bool {
	return len(r.FailedReforms) > 0
}

// MarshalJSON flattens reforms into ptc_<id> keys next to ptc_baseline.
func (r CalculationResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"income":       nonNil(r.Income),
		"ptc_baseline": nonNil(r.Baseline),
		"medicaid":     nonNil(r.Medicaid),
		"chip":         nonNil(r.CHIP),
		"fpl":          r.FPL,
		"slcsp":        r.SLCSP,
	}
	for id, values := range r.Reforms {
		out[reformKeyPrefix+id] = nonNil(values)
	}
	if len(r.FailedReforms) > 0 {
		out["failed_reforms"] = r.FailedReforms
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *CalculationResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := map[string]any{
		"income":         &r.Income,
		"ptc_baseline":   &r.Baseline,
		"medicaid":       &r.Medicaid,
		"chip":           &r.CHIP,
		"fpl":            &r.FPL,
		"slcsp":          &r.SLCSP,
		"failed_reforms": &r.FailedReforms,
	}
	r.Reforms = make(map[string][]float64)
	for key, value := range raw {
		if dst, ok := fields[key]; ok {
			if err := json.Unmarshal(value, dst); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			continue
		}
		if id, ok := strings.CutPrefix(key, reformKeyPrefix); ok {
			var values []float64
			if err := json.Unmarshal(value, &values); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			r.Reforms[id] = values
		}
	}
	return nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

// Progress steps emitted by the streaming endpoint, in order.
const (
	StepCached     = "cached"
	StepSetup      = "setup"
	StepBaseline   = "baseline"
	StepReforms    = "reforms"
	StepFinalizing = "finalizing"
	StepComplete   = "complete"
	StepError      = "error"
)

// ProgressEvent is one server-sent event on /calculate-stream. Result is
// set only on the complete step and Error only on the error step.
type ProgressEvent struct {
	Step     string          `json:"step"`
	Progress int             `json:"progress"`
	Message  string          `json:"message,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e ProgressEvent) Terminal() bool {
	return e.Step == StepComplete || e.Step == StepError
}
