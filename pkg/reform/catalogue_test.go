package reform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acacalc/acacalc/pkg/models"
)

func TestDefault_Order(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{
		models.ReformIRA,
		models.Reform700FPL,
		models.ReformAdditionalBracket,
		models.ReformSimplifiedBracket,
	}, c.IDs())
}

func TestDefault_IRAOverlay(t *testing.T) {
	r, ok := Default().Get(models.ReformIRA)
	require.True(t, ok)

	assert.Equal(t, 0.085, r.Overlay["gov.aca.ptc_phase_out_rate[6].amount"]["2026-01-01.2100-12-31"])
	assert.Equal(t, 0.0, r.Overlay["gov.aca.ptc_phase_out_rate[1].amount"]["2025-01-01.2100-12-31"])
	assert.Equal(t, true, r.Overlay["gov.aca.ptc_income_eligibility[2].amount"]["2026-01-01.2100-12-31"])
	assert.Len(t, r.Overlay, 8)
}

func TestGet_Unknown(t *testing.T) {
	_, ok := Default().Get("nope")
	assert.False(t, ok)
}

func TestOverride(t *testing.T) {
	c := Default()
	overlay := Overlay{"gov.x": {"2026-01-01.2100-12-31": 1}}

	require.NoError(t, c.Override(models.Reform700FPL, "", overlay))
	r, _ := c.Get(models.Reform700FPL)
	assert.Equal(t, overlay, r.Overlay)
	assert.Equal(t, "Enhanced credits capped at 700% FPL", r.Name)

	require.NoError(t, c.Override(models.Reform700FPL, "Renamed", nil))
	r, _ = c.Get(models.Reform700FPL)
	assert.Equal(t, "Renamed", r.Name)
	assert.Equal(t, overlay, r.Overlay)

	assert.Error(t, c.Override("unknown", "x", nil))
}

func TestAll_IsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].ID = "mutated"
	assert.Equal(t, models.ReformIRA, c.IDs()[0])
}
