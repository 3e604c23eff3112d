package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/events"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

func TestGetSLAHoursLookupOrder(t *testing.T) {
	f := newFixture(t)

	hours, err := f.sla.GetSLAHours(f.ctx, "Streetlight", &f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 24, hours)

	hours, err = f.sla.GetSLAHours(f.ctx, "Graffiti", &f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 48, hours)

	hours, err = f.sla.GetSLAHours(f.ctx, "Graffiti", nil)
	require.NoError(t, err)
	assert.Equal(t, 72, hours)

	_, err = f.directory.UpdateDepartmentSLA(f.ctx, f.head, f.dept.ID, nil, map[string]int{"STREETLIGHT": 6})
	require.NoError(t, err)
	hours, err = f.sla.GetSLAHours(f.ctx, "streetlight", &f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, hours)

	missing := "missing"
	_, err = f.sla.GetSLAHours(f.ctx, "Streetlight", &missing)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestCheckSLAEscalatesOnce(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("Pothole Repair")

	eval, err := f.sla.EvaluateSLA(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, eval.Applicable)
	assert.False(t, eval.Breached)
	assert.Equal(t, 72, eval.SLAHours)

	f.clock.Advance(73 * time.Hour)
	eval, err = f.sla.EvaluateSLA(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, eval.Breached)
	assert.False(t, eval.Escalated)
	untouched, err := f.requests.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Version, untouched.Version, "evaluation never writes")

	eval, err = f.sla.CheckSLA(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, eval.Breached)
	assert.True(t, eval.Escalated)
	assert.InDelta(t, 1.0, eval.HoursOverdue, 0.1)

	stored, err := f.requests.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored.Escalated)
	require.NotNil(t, stored.EscalatedTo)
	assert.Equal(t, f.head.UserID, *stored.EscalatedTo)
	last := stored.History[len(stored.History)-1]
	assert.Nil(t, last.ActorID, "escalation is a system entry")

	_, err = f.sla.CheckSLA(f.ctx, req.ID)
	require.NoError(t, err)
	again, err := f.requests.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, again.Version)
	assert.Len(t, again.History, len(stored.History))
	assert.Equal(t, 1, f.dispatcher.count(events.EventRequestEscalated))
}

func TestCheckSLAIgnoresResolvedRequests(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("Water Supply")
	_, err := f.requests.ValidateRequest(f.ctx, f.head, req.ID, domain.DecisionInvalid, "prank")
	require.NoError(t, err)

	f.clock.Advance(100 * time.Hour)
	eval, err := f.sla.CheckSLA(f.ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, eval.Applicable)
	assert.False(t, eval.Breached)
}

func TestCheckAllSLAsSweep(t *testing.T) {
	f := newFixture(t)
	f.createRequest("Pothole Repair")
	water := f.createRequest("Water Supply")
	invalid := f.createRequest("Drainage")
	_, err := f.requests.ValidateRequest(f.ctx, f.head, invalid.ID, domain.DecisionInvalid, "")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	result, err := f.sla.CheckAllSLAs(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, water.ID, result.Breaches[0].RequestID)
	assert.Equal(t, 1, result.Escalated)

	result, err = f.sla.CheckAllSLAs(f.ctx, &f.dept.ID)
	require.NoError(t, err)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, 0, result.Escalated)

	escalated := true
	list, err := f.requests.ListRequests(f.ctx, f.admin, RequestListFilter{Escalated: &escalated})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, water.ID, list[0].ID)
}
