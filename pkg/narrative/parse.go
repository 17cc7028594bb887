package narrative

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/acacalc/acacalc/pkg/models"
)

// ErrMalformed marks generator output that is not a usable narrative.
var ErrMalformed = errors.New("malformed narrative")

// extractJSON strips a surrounding markdown code fence, if any.
func extractJSON(text string) string {
	if _, rest, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(rest, "```")
		return strings.TrimSpace(body)
	}
	if _, rest, ok := strings.Cut(text, "```"); ok {
		body, _, _ := strings.Cut(rest, "```")
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

// Parse decodes generator output into a narrative. Every section needs an
// id and a chartState from the known set.
func Parse(text string) (*models.NarrativeResult, error) {
	var res models.NarrativeResult
	if err := json.Unmarshal([]byte(extractJSON(text)), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(res.Sections) == 0 {
		return nil, fmt.Errorf("%w: no sections", ErrMalformed)
	}
	for i, s := range res.Sections {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: section %d has no id", ErrMalformed, i)
		}
		if !models.ValidChartStates[s.ChartState] {
			return nil, fmt.Errorf("%w: section %q has unknown chartState %q", ErrMalformed, s.ID, s.ChartState)
		}
	}
	return &res, nil
}
