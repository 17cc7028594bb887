package narrative

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/acacalc/acacalc/pkg/models"
)

// dollars renders v rounded to whole dollars with thousands separators.
func dollars(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// HouseholdDescription renders e.g. "a 40-year-old and their 38-year-old
// spouse with children ages 10, 7 and 3".
func HouseholdDescription(req models.NarrativeRequest) string {
	parts := []string{fmt.Sprintf("a %d-year-old", req.AgeHead)}
	if req.AgeSpouse != nil {
		parts = append(parts, fmt.Sprintf("and their %d-year-old spouse", *req.AgeSpouse))
	}
	switch n := len(req.DependentAges); {
	case n == 1:
		parts = append(parts, fmt.Sprintf("with a %d-year-old child", req.DependentAges[0]))
	case n > 1:
		ages := make([]string, n-1)
		for i, a := range req.DependentAges[:n-1] {
			ages[i] = strconv.Itoa(a)
		}
		parts = append(parts, fmt.Sprintf("with children ages %s and %d", strings.Join(ages, ", "), req.DependentAges[n-1]))
	}
	return strings.Join(parts, " ")
}

// Location renders "<county>, <state name>".
func Location(req models.NarrativeRequest) string {
	return req.County + ", " + stateName(req.State)
}

func stateName(code string) string {
	if name, ok := models.StateNames[code]; ok {
		return name
	}
	return code
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Prompt builds the instruction sent to the generator. Section three is
// about CHIP for households with children and about the 400% FPL cliff
// otherwise.
func Prompt(req models.NarrativeRequest) string {
	desc := HouseholdDescription(req)
	location := Location(req)
	state := stateName(req.State)
	hasChildren := req.HasChildren()

	adultIncome := req.FPL * req.MedicaidAdultThresholdPct / 100
	chipIncome := 0.0
	if req.CHIPThresholdPct > 0 {
		chipIncome = req.FPL * req.CHIPThresholdPct / 100
	}

	section3ID, section3Chart := "cliff", models.ChartCliffFocus
	section3 := fmt.Sprintf("Explain the 400%% FPL cliff at %s where baseline subsidies end. Above this income, there are no premium tax credits under current law.", dollars(req.FPL400Income))
	if hasChildren {
		section3ID, section3Chart = "chip", models.ChartCHIPFocus
		section3 = fmt.Sprintf("Explain CHIP coverage for children up to %s%% FPL (%s).", pct(req.CHIPThresholdPct), dollars(chipIncome))
	}

	expansionNote := "This is a non-expansion state."
	if req.IsExpansionState {
		expansionNote = "This is an expansion state."
	}

	var b strings.Builder
	w := func(format string, args ...any) { fmt.Fprintf(&b, format+"\n", args...) }

	w("You are creating a factual, neutral scrollytelling narrative explaining ACA premium tax credits for a specific household.")
	w("")
	w("IMPORTANT GUIDELINES:")
	w("- Be strictly factual and neutral. Do NOT express opinions about whether policies are good, bad, beneficial, or harmful.")
	w(`- Do NOT use value-laden words like "unfortunately", "thankfully", "crucial", "vital", "struggle", etc.`)
	w("- Simply describe what the policies are and how they affect this household's numbers.")
	w("- Use exact dollar amounts and percentages provided - do not round or approximate.")
	if !hasChildren {
		w("- CRITICAL: This household has NO children. Do NOT mention CHIP at all.")
	}
	w("")
	w("HOUSEHOLD DETAILS:")
	w("- Description: %s", desc)
	w("- Location: %s", location)
	w("- Household size: %d", req.HouseholdSize())
	if hasChildren {
		w("- Has children: Yes")
	} else {
		w("- Has children: NO - DO NOT MENTION CHIP")
	}
	w("")
	w("PROGRAM ELIGIBILITY THRESHOLDS FOR %s:", strings.ToUpper(state))
	w("- Medicaid for adults: %s%% FPL (%s for this household)", pct(req.MedicaidAdultThresholdPct), dollars(adultIncome))
	if hasChildren && req.CHIPThresholdPct > 0 {
		w("- CHIP for children: %s%% FPL (%s)", pct(req.CHIPThresholdPct), dollars(chipIncome))
	}
	w("- Medicaid expansion state: %s", yesNo(req.IsExpansionState))
	w("")
	w("KEY FINANCIAL DATA:")
	w("- Federal Poverty Level (FPL) for this household: %s", dollars(req.FPL))
	w("- 400%% FPL (baseline subsidy cliff): %s", dollars(req.FPL400Income))
	if req.Show700FPL {
		w("- 700%% FPL (proposed cliff under 700%% FPL bill): %s", dollars(req.FPL700Income))
	}
	w("- Annual benchmark plan (SLCSP): %s (%s/month)", dollars(req.SLCSP), dollars(req.SLCSP/12))
	w("")
	w("AT SAMPLE INCOME OF %s (%.0f%% FPL):", dollars(req.SampleIncome), req.SampleIncome/req.FPL*100)
	w("- Baseline PTC (2026 if IRA expires): %s/year (%s/month)", dollars(req.PTCBaselineAtSample), dollars(req.PTCBaselineAtSample/12))
	if req.ShowIRA {
		w("- IRA Extension PTC: %s/year (%s/month)", dollars(req.PTCIRAAtSample), dollars(req.PTCIRAAtSample/12))
	}
	if req.Show700FPL {
		w("- 700%% FPL Bill PTC: %s/year (%s/month)", dollars(req.PTC700FPLAtSample), dollars(req.PTC700FPLAtSample/12))
	}
	w("")
	w("Generate exactly 5 scrollytelling sections in JSON format. Each section should have:")
	w("- id: unique identifier")
	w("- title: descriptive section title (5-10 words)")
	w("- content: 2-3 short paragraphs using **bold** for key numbers. Use exact values provided above.")
	w(`- chartState: MUST be one of these exact strings: "all_programs", "medicaid_focus", "chip_focus", "cliff_focus", "ira_impact", "both_reforms"`)
	w("")
	w("REQUIRED SECTIONS (use these EXACT chartState values - do not change them):")
	w(`1. id: "intro", chartState: "all_programs" - Introduce this household and their location. State the SLCSP cost.`)
	w("")
	medicaidLine := fmt.Sprintf("Adults qualify up to %s%% FPL (%s).", pct(req.MedicaidAdultThresholdPct), dollars(adultIncome))
	if hasChildren {
		medicaidLine += fmt.Sprintf(" Children qualify up to %s%% FPL.", pct(req.MedicaidChildThresholdPct))
	}
	w(`2. id: "medicaid", chartState: "medicaid_focus" - Explain Medicaid eligibility in %s. %s %s`, state, medicaidLine, expansionNote)
	w("")
	w(`3. id: "%s", chartState: "%s" - %s`, section3ID, section3Chart, section3)
	w("")
	w(`4. id: "ira_impact", chartState: "ira_impact" - Describe the IRA extension. At %s income, IRA provides %s/year vs baseline %s/year.`,
		dollars(req.SampleIncome), dollars(req.PTCIRAAtSample), dollars(req.PTCBaselineAtSample))
	w("")
	w(`5. id: "comparison", chartState: "both_reforms" - Compare baseline, IRA extension, and 700%% FPL bill. Use the exact numbers provided.`)
	w("")
	w("Return ONLY valid JSON:")
	w("{")
	w(`  "sections": [`)
	w(`    {"id": "intro", "title": "...", "content": "...", "chartState": "all_programs"},`)
	w(`    {"id": "medicaid", "title": "...", "content": "...", "chartState": "medicaid_focus"},`)
	w(`    {"id": "%s", "title": "...", "content": "...", "chartState": "%s"},`, section3ID, section3Chart)
	w(`    {"id": "ira_impact", "title": "...", "content": "...", "chartState": "ira_impact"},`)
	w(`    {"id": "comparison", "title": "...", "content": "...", "chartState": "both_reforms"}`)
	w(`  ],`)
	w(`  "household_description": "%s in %s"`, desc, location)
	b.WriteString("}")
	return b.String()
}
