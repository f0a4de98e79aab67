// Package sla computes advisory resolution deadlines for defect records.
// The deadline is data for reporting, not an enforced expiration.
package sla

import (
	"time"

	"beryll-workflow-backend/config"
	"beryll-workflow-backend/internal/model"
)

// DeadlineCalculator resolves an SLA deadline from part type and priority.
// A nil result means no policy applies.
type DeadlineCalculator interface {
	CalculateDeadline(partType model.ComponentType, priority model.DefectPriority, start time.Time) *time.Time
}

// PolicyCalculator matches configured rules with a fallback chain:
// exact (type, priority), then type-only, then priority-only, then the
// default rule with both fields empty.
type PolicyCalculator struct {
	rules []config.SlaRule
}

// NewPolicyCalculator builds a calculator from the configured rule set.
func NewPolicyCalculator(cfg config.SlaConfig) *PolicyCalculator {
	return &PolicyCalculator{rules: cfg.Rules}
}

// CalculateDeadline implements DeadlineCalculator.
func (p *PolicyCalculator) CalculateDeadline(partType model.ComponentType, priority model.DefectPriority, start time.Time) *time.Time {
	rule := p.match(string(partType), string(priority))
	if rule == nil {
		return nil
	}
	deadline := start.Add(time.Duration(rule.MaxTotalHours) * time.Hour)
	return &deadline
}

func (p *PolicyCalculator) match(partType, priority string) *config.SlaRule {
	probes := [][2]string{
		{partType, priority},
		{partType, ""},
		{"", priority},
		{"", ""},
	}
	for _, probe := range probes {
		for i := range p.rules {
			r := &p.rules[i]
			if r.PartType == probe[0] && r.Priority == probe[1] {
				return r
			}
		}
	}
	return nil
}

// Fixed returns a calculator that always answers start + d. Intended for
// tests and minimal deployments without a rule table.
func Fixed(d time.Duration) DeadlineCalculator {
	return fixedCalculator(d)
}

type fixedCalculator time.Duration

func (f fixedCalculator) CalculateDeadline(_ model.ComponentType, _ model.DefectPriority, start time.Time) *time.Time {
	deadline := start.Add(time.Duration(f))
	return &deadline
}
