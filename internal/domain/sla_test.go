package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSLAHoursLookupOrder(t *testing.T) {
	withOverride := &Department{SLAHours: 36, CategorySLA: map[string]int{"streetlight": 6}}
	flatOnly := &Department{SLAHours: 36}

	assert.Equal(t, 6, ResolveSLAHours("Streetlight", withOverride, 0))
	assert.Equal(t, 24, ResolveSLAHours("Streetlight", flatOnly, 0))
	assert.Equal(t, 24, ResolveSLAHours("  STREETLIGHT ", nil, 0))
	assert.Equal(t, 36, ResolveSLAHours("Graffiti", flatOnly, 0))
	assert.Equal(t, 72, ResolveSLAHours("Graffiti", nil, 0))
	assert.Equal(t, 72, ResolveSLAHours("Graffiti", &Department{}, 0))
	assert.Equal(t, 50, ResolveSLAHours("Graffiti", nil, 50))
}

func TestResolveSLAHoursIgnoresNonPositiveOverride(t *testing.T) {
	dept := &Department{CategorySLA: map[string]int{"Road Repair": 0}}
	assert.Equal(t, 96, ResolveSLAHours("road repair", dept, 0))
}

func TestCategoryOverrideCaseVariantsAreDeterministic(t *testing.T) {
	dept := &Department{CategorySLA: map[string]int{"Streetlight": 10, "streetlight": 4, " STREETLIGHT": 8}}
	for i := 0; i < 20; i++ {
		hours, ok := dept.CategoryOverride("streetlight")
		require.True(t, ok)
		assert.Equal(t, 4, hours)
	}
}

func TestEvaluateSLA(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req := &Request{ID: "r1", Status: StatusWorking, TimeLogs: TimeLogs{Created: created}}

	eval := EvaluateSLA(req, 24, created.Add(10*time.Hour))
	assert.True(t, eval.Applicable)
	assert.False(t, eval.Breached)
	assert.Equal(t, 10.0, eval.HoursElapsed)
	assert.Zero(t, eval.HoursOverdue)
	require.NotNil(t, eval.Deadline)
	assert.Equal(t, created.Add(24*time.Hour), *eval.Deadline)

	eval = EvaluateSLA(req, 24, created.Add(24*time.Hour))
	assert.False(t, eval.Breached, "exactly at the limit is not a breach")

	eval = EvaluateSLA(req, 24, created.Add(30*time.Hour+30*time.Minute))
	assert.True(t, eval.Breached)
	assert.Equal(t, 6.5, eval.HoursOverdue)
	assert.False(t, req.Escalated, "evaluation never mutates")
}

func TestEvaluateSLAResolvedStatusesNotApplicable(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, status := range ResolvedStatuses {
		req := &Request{Status: status, TimeLogs: TimeLogs{Created: created}}
		eval := EvaluateSLA(req, 1, created.Add(100*time.Hour))
		assert.False(t, eval.Applicable, status)
		assert.False(t, eval.Breached, status)
	}
}
