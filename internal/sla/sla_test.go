package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beryll-workflow-backend/config"
	"beryll-workflow-backend/internal/model"
)

func TestPolicyCalculatorFallbackChain(t *testing.T) {
	calc := NewPolicyCalculator(config.SlaConfig{
		Rules: []config.SlaRule{
			{PartType: "RAM", Priority: "CRITICAL", MaxTotalHours: 8},
			{PartType: "RAM", MaxTotalHours: 48},
			{Priority: "CRITICAL", MaxTotalHours: 24},
			{MaxTotalHours: 120},
		},
	})
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		partType model.ComponentType
		priority model.DefectPriority
		hours    int
	}{
		{"exact match wins", model.ComponentRAM, model.PriorityCritical, 8},
		{"type-only fallback", model.ComponentRAM, model.PriorityLow, 48},
		{"priority-only fallback", model.ComponentSSD, model.PriorityCritical, 24},
		{"default rule", model.ComponentSSD, model.PriorityLow, 120},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deadline := calc.CalculateDeadline(tc.partType, tc.priority, start)
			require.NotNil(t, deadline)
			assert.Equal(t, start.Add(time.Duration(tc.hours)*time.Hour), *deadline)
		})
	}
}

func TestPolicyCalculatorNoMatch(t *testing.T) {
	calc := NewPolicyCalculator(config.SlaConfig{
		Rules: []config.SlaRule{
			{PartType: "RAM", Priority: "CRITICAL", MaxTotalHours: 8},
		},
	})
	deadline := calc.CalculateDeadline(model.ComponentSSD, model.PriorityLow, time.Now())
	assert.Nil(t, deadline)
}

func TestFixed(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := Fixed(72 * time.Hour).CalculateDeadline(model.ComponentCPU, model.PriorityHigh, start)
	require.NotNil(t, deadline)
	assert.Equal(t, start.Add(72*time.Hour), *deadline)
}
