package mcp

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/acacalc/acacalc/pkg/models"
)

func dollars(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

// nearestIndex returns the index of the income point closest to target.
func nearestIndex(incomes []float64, target float64) int {
	best := 0
	for i, v := range incomes {
		if math.Abs(v-target) < math.Abs(incomes[best]-target) {
			best = i
		}
	}
	return best
}

// formatCalculation reports the scalars and, at each sample income, the
// credit under current law and every non-zero reform.
func formatCalculation(r *models.CalculationResult, samples []float64, cached bool) string {
	if len(r.Income) == 0 {
		return "No income points returned."
	}

	ids := make([]string, 0, len(r.Reforms))
	for id, values := range r.Reforms {
		if slices.ContainsFunc(values, func(v float64) bool { return v != 0 }) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var b strings.Builder
	source := "computed"
	if cached {
		source = "cached"
	}
	fmt.Fprintf(&b, "Premium tax credits (%s)\n", source)
	fmt.Fprintf(&b, "  Poverty guideline: %s\n", dollars(r.FPL))
	fmt.Fprintf(&b, "  Benchmark premium: %s\n\n", dollars(r.SLCSP))

	fmt.Fprintf(&b, "%12s %12s", "Income", "Baseline")
	for _, id := range ids {
		fmt.Fprintf(&b, " %20s", id)
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", 25+21*len(ids)) + "\n")

	for _, income := range samples {
		i := nearestIndex(r.Income, income)
		fmt.Fprintf(&b, "%12s %12s", dollars(r.Income[i]), dollars(r.Baseline[i]))
		for _, id := range ids {
			fmt.Fprintf(&b, " %20s", dollars(r.Reforms[id][i]))
		}
		b.WriteString("\n")
	}
	if len(r.FailedReforms) > 0 {
		fmt.Fprintf(&b, "\nUnavailable (engine error): %s\n", strings.Join(r.FailedReforms, ", "))
	}
	return b.String()
}

// formatNarrative renders narrative sections as plain text.
func formatNarrative(n *models.NarrativeResult) string {
	var b strings.Builder
	if n.HouseholdDescription != "" {
		fmt.Fprintf(&b, "Household: %s\n\n", n.HouseholdDescription)
	}
	for _, s := range n.Sections {
		fmt.Fprintf(&b, "## %s\n%s\n\n", s.Title, s.Content)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatAuditEntries formats audit entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-18s %-5s %6s %8s %-20s\n",
		"Request ID", "Endpoint", "Cache", "Status", "Latency", "Time")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-38s %-18s %-5s %6d %6dms %-20s\n",
			e.RequestID, e.Endpoint, e.CacheStatus, e.StatusCode, e.LatencyMs,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatAuditStats formats audit stats as a text table.
func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %-12s %8s %8s\n", "Endpoint", "Day", "Requests", "Hits")
	b.WriteString(strings.Repeat("-", 49) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-18s %-12s %8d %8d\n", s.Endpoint, s.Day, s.Count, s.Hits)
	}
	return b.String()
}
