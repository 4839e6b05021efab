// Package workflow defines the fixed analysis plans: which workers speak,
// in which phases, and under which termination rules.
package workflow

import (
	"fmt"
	"time"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
)

// Variant selects one of the supported phase plans.
type Variant string

const (
	// VariantCouncil is the single-phase seven-specialist round robin.
	VariantCouncil Variant = "council"
	// VariantHybrid is the five-stage thirteen-worker pipeline.
	VariantHybrid Variant = "hybrid"
)

// Branch is one independent sub-workflow of a parallel phase.
type Branch struct {
	Name     string
	Workers  []string
	Keyword  string
	MaxTurns int
}

// Phase is one stage of a plan. Sequential phases run Workers round-robin;
// parallel phases run every Branch concurrently and join.
type Phase struct {
	Name     string
	Mode     analysis.PhaseMode
	Workers  []string // sequential mode
	Branches []Branch // parallel mode
	Keyword  string   // sequential termination keyword, may be empty
	MaxTurns int
	Timeout  time.Duration // 0 means the configured default ceiling
	Prompt   string        // phase instruction appended to the context
}

// Participants returns every worker id taking part in the phase, in order.
func (p Phase) Participants() []string {
	if p.Mode == analysis.ModeSequential {
		return append([]string(nil), p.Workers...)
	}
	var ids []string
	for _, b := range p.Branches {
		ids = append(ids, b.Workers...)
	}
	return ids
}

// Plan is an ordered, fixed list of phases for one variant.
type Plan struct {
	Variant Variant
	Phases  []Phase
}

// WorkerIDs returns the deduplicated set of worker ids the plan needs,
// in first-appearance order.
func (p *Plan) WorkerIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, ph := range p.Phases {
		for _, id := range ph.Participants() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// PlanFor returns the phase plan for a variant.
func PlanFor(v Variant) (*Plan, error) {
	switch v {
	case VariantCouncil:
		return councilPlan(), nil
	case VariantHybrid:
		return hybridPlan(), nil
	}
	return nil, fmt.Errorf("unknown workflow variant %q", v)
}

// Valid reports whether v names a supported plan.
func (v Variant) Valid() bool {
	_, err := PlanFor(v)
	return err == nil
}
