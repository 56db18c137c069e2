package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
)

func TestHealthyRegistry(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "term_a")
	register(t, svc, "term_b")
	require.NoError(t, svc.SetActiveTerminal("term_b"))

	report := svc.HealthCheck()
	assert.True(t, report.Healthy)
	assert.Equal(t, 2, report.TerminalCount)
	assert.Equal(t, "term_b", report.ActiveID)
	assert.Empty(t, report.Issues)
}

func TestHealthCheckReportsWithoutCorrecting(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "term_a")
	register(t, svc, "term_b")
	require.NoError(t, svc.SetActiveTerminal("term_a"))

	svc.mu.Lock()
	svc.terminals["term_b"].Number = 1
	svc.terminals["term_b"].Name = ""
	svc.terminals["term_b"].IsActive = true
	svc.mu.Unlock()

	report := svc.HealthCheck()
	assert.False(t, report.Healthy)

	fields := map[string]bool{}
	for _, issue := range report.Issues {
		fields[issue.Field] = true
		assert.Equal(t, apperrors.KindIntegrity, apperrors.KindOf(issue))
	}
	assert.True(t, fields["number"])
	assert.True(t, fields["name"])
	assert.True(t, fields["isActive"])

	got, _ := svc.GetTerminal("term_b")
	assert.Equal(t, 1, got.Number)
}

func TestHealthCheckDanglingActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.mu.Lock()
	svc.activeID = "ghost"
	svc.mu.Unlock()

	report := svc.HealthCheck()
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "activeId", report.Issues[0].Field)
	assert.Contains(t, report.Issues[0].Error(), "ghost")
}
