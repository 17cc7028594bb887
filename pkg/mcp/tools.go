package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/acacalc/acacalc/pkg/calculator"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/narrative"
)

// defaultSampleIncomes are the incomes reported by acacalc_calculate when
// the caller names none.
var defaultSampleIncomes = []float64{25_000, 50_000, 75_000, 100_000}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"acacalc_calculate":    handleCalculate,
	"acacalc_explain":      handleExplain,
	"acacalc_cache_stats":  handleCacheStats,
	"acacalc_audit_search": handleAuditSearch,
	"acacalc_audit_stats":  handleAuditStats,
}

var householdProperties = map[string]any{
	"age_head": map[string]any{
		"type":        "integer",
		"description": "Age of the head of household (18-100)",
	},
	"age_spouse": map[string]any{
		"type":        "integer",
		"description": "Age of the spouse (optional)",
	},
	"dependent_ages": map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "integer"},
		"description": "Ages of up to 10 dependents, in order",
	},
	"state": map[string]any{
		"type":        "string",
		"description": "Two-letter state code, e.g. TX",
	},
	"county": map[string]any{
		"type":        "string",
		"description": "County name, e.g. Harris County",
	},
}

func withProperties(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "acacalc_calculate",
		Description: "Compute premium tax credits across incomes for a household under current law and the selected reforms.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"age_head", "state", "county"},
			"properties": withProperties(householdProperties, map[string]any{
				"zip_code":                map[string]any{"type": "string", "description": "Five-digit zip code (optional)"},
				"show_ira":                map[string]any{"type": "boolean", "description": "Include the enhanced PTC extension (default true)"},
				"show_700fpl":             map[string]any{"type": "boolean", "description": "Include the 700% FPL cliff bill"},
				"show_additional_bracket": map[string]any{"type": "boolean", "description": "Include the additional bracket reform"},
				"show_simplified_bracket": map[string]any{"type": "boolean", "description": "Include the simplified bracket reform"},
				"sample_incomes": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "number"},
					"description": "Incomes to report credits at (optional)",
				},
			}),
		},
	},
	{
		Name:        "acacalc_explain",
		Description: "Generate a plain-language explanation of a household's calculated results.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"age_head", "state", "county", "fpl"},
			"properties": withProperties(householdProperties, map[string]any{
				"is_expansion_state":     map[string]any{"type": "boolean"},
				"fpl":                    map[string]any{"type": "number", "description": "Federal poverty guideline for the household"},
				"slcsp":                  map[string]any{"type": "number", "description": "Annual benchmark silver premium"},
				"sample_income":          map[string]any{"type": "number"},
				"ptc_baseline_at_sample": map[string]any{"type": "number"},
				"ptc_ira_at_sample":      map[string]any{"type": "number"},
			}),
		},
	},
	{
		Name:        "acacalc_cache_stats",
		Description: "Show persistent result cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "acacalc_audit_search",
		Description: "Search the request audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"endpoint": map[string]any{
					"type":        "string",
					"description": "Filter by endpoint, e.g. /calculate (optional)",
				},
				"cache_status": map[string]any{
					"type":        "string",
					"description": "Filter by cache status: hit or miss (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
	{
		Name:        "acacalc_audit_stats",
		Description: "Show request and cache-hit counts by endpoint and day.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

type calculateArgs struct {
	models.CalculationRequest
	SampleIncomes []float64 `json:"sample_incomes"`
}

func handleCalculate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Calculator == nil {
		return textResult("Calculation is not configured.")
	}
	args := calculateArgs{CalculationRequest: models.NewCalculationRequest()}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}

	resp, err := s.deps.Calculator.Calculate(ctx, args.CalculationRequest)
	if err != nil {
		return errorResult(calculator.ErrorMessage(err))
	}
	var result models.CalculationResult
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		return errorResult("Error decoding result: " + err.Error())
	}

	incomes := args.SampleIncomes
	if len(incomes) == 0 {
		incomes = defaultSampleIncomes
	}
	return textResult(formatCalculation(&result, incomes, resp.Cached))
}

func handleExplain(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Explainer == nil {
		return textResult("Narrative generation is not configured.")
	}
	req := models.NewNarrativeRequest()
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &req); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}

	resp, err := s.deps.Explainer.Explain(ctx, req)
	if err != nil {
		if errors.Is(err, narrative.ErrNotConfigured) {
			return textResult("Narrative generation is not configured.")
		}
		return errorResult(narrative.ErrorMessage(err))
	}
	var result models.NarrativeResult
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		return errorResult("Error decoding narrative: " + err.Error())
	}
	return textResult(formatNarrative(&result))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache statistics are not available for this backend.")
	}
	stats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

type auditSearchArgs struct {
	Endpoint    string `json:"endpoint"`
	CacheStatus string `json:"cache_status"`
	Since       string `json:"since"`
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		Endpoint:    args.Endpoint,
		CacheStatus: args.CacheStatus,
		Limit:       50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.deps.Auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleAuditStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	stats, err := s.deps.Auditor.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching audit stats: " + err.Error())
	}
	return textResult(formatAuditStats(stats))
}
