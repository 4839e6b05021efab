package workflow

import (
	"fmt"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
)

// Worker ids shared across plans.
const (
	WorkerOrganiser      = "organiser"
	WorkerDataAnalyst    = "data_analyst"
	WorkerQuantAnalyst   = "quantitative_analyst"
	WorkerStrategyDev    = "strategy_developer"
	WorkerRiskManager    = "risk_manager"
	WorkerCompliance     = "compliance_officer"
	WorkerReport         = "report_agent"
	WorkerSentiment      = "sentiment_analyst"
	WorkerOptions        = "options_analyst"
	WorkerESG            = "esg_analyst"
	WorkerStressTest     = "stress_test_agent"
	WorkerArbitrage      = "arbitrage_agent"
	WorkerOrderExecution = "order_execution_agent"
)

// councilPlan is the classic seven-specialist round robin: every worker
// speaks in turn until the report agent closes with STOP or the cap hits.
func councilPlan() *Plan {
	return &Plan{
		Variant: VariantCouncil,
		Phases: []Phase{
			{
				Name: "council_discussion",
				Mode: analysis.ModeSequential,
				Workers: []string{
					WorkerOrganiser,
					WorkerRiskManager,
					WorkerDataAnalyst,
					WorkerQuantAnalyst,
					WorkerStrategyDev,
					WorkerCompliance,
					WorkerReport,
				},
				Keyword:  "STOP",
				MaxTurns: 8,
				Prompt: "Discuss the subject as an investment council. The report agent " +
					"synthesizes a clear BUY/SELL/HOLD recommendation with confidence. " +
					"End with: STOP",
			},
		},
	}
}

// hybridPlan is the five-stage pipeline: foundation data, a parallel
// intelligence fan-out, strategy and risk, execution optimisation, and a
// final synthesis committee. Later phases see the accumulated transcript
// of earlier ones as additional context.
func hybridPlan() *Plan {
	return &Plan{
		Variant: VariantHybrid,
		Phases: []Phase{
			{
				Name:     "foundation_data",
				Mode:     analysis.ModeSequential,
				Workers:  []string{WorkerOrganiser, WorkerDataAnalyst, WorkerQuantAnalyst},
				Keyword:  "FOUNDATION_COMPLETE",
				MaxTurns: 8,
				Prompt: "Collect the data foundation: market data with technical indicators, " +
					"fundamental metrics, and quantitative signals. End with: FOUNDATION_COMPLETE",
			},
			{
				Name: "advanced_intelligence",
				Mode: analysis.ModeParallel,
				Branches: []Branch{
					{
						Name:     "market_intelligence",
						Workers:  []string{WorkerSentiment, WorkerOptions, WorkerESG},
						Keyword:  "INTELLIGENCE_COMPLETE",
						MaxTurns: 12,
					},
					{
						Name:     "stress_test",
						Workers:  []string{WorkerStressTest},
						MaxTurns: 1,
					},
					{
						Name:     "arbitrage",
						Workers:  []string{WorkerArbitrage},
						MaxTurns: 1,
					},
				},
				Prompt: "Conduct advanced intelligence analysis: sentiment, options pricing " +
					"and volatility, ESG factors, stress scenarios, and arbitrage opportunities. " +
					"End with: INTELLIGENCE_COMPLETE",
			},
			{
				Name:     "strategic_analysis",
				Mode:     analysis.ModeSequential,
				Workers:  []string{WorkerStrategyDev, WorkerRiskManager, WorkerCompliance},
				Keyword:  "STRATEGIC_COMPLETE",
				MaxTurns: 10,
				Prompt: "Execute strategic analysis: entry/exit strategy and timeline, position " +
					"sizing and stop-loss levels, regulatory and compliance risks. " +
					"End with: STRATEGIC_COMPLETE",
			},
			{
				Name:     "execution_optimization",
				Mode:     analysis.ModeSequential,
				Workers:  []string{WorkerOrderExecution},
				Keyword:  "EXECUTION_COMPLETE",
				MaxTurns: 3,
				Prompt: "Optimise execution: market impact, algorithmic strategy selection, " +
					"and smart order routing. End with: EXECUTION_COMPLETE",
			},
			{
				Name:     "final_synthesis",
				Mode:     analysis.ModeSequential,
				Workers:  []string{WorkerRiskManager, WorkerCompliance, WorkerReport},
				Keyword:  "FINAL_DECISION_COMPLETE",
				MaxTurns: 6,
				Prompt: "Synthesize all prior analysis into an authoritative investment " +
					"recommendation with a clear BUY/SELL/HOLD verdict, confidence, and " +
					"rationale. End with: FINAL_DECISION_COMPLETE",
			},
		},
	}
}

// questionTemplates maps an analysis type to the question put to the workers.
var questionTemplates = map[string]string{
	"buying":   "Should I buy stocks of %s?",
	"selling":  "Should I sell my %s stocks now?",
	"health":   "What is the overall health of %s?",
	"5day":     "What is the 5-day outlook for %s?",
	"growth":   "What is the long-term growth potential of %s?",
	"risk":     "What are the risks of investing in %s?",
	"sector":   "How does %s compare to its sector?",
	"options":  "What options strategies work for %s?",
	"esg":      "What is the ESG profile of %s?",
	"earnings": "How will upcoming earnings affect %s?",
}

// QuestionFor builds the analysis question for a subject. Unknown types fall
// back to a general investment question.
func QuestionFor(analysisType, subject string) string {
	if tmpl, ok := questionTemplates[analysisType]; ok {
		return fmt.Sprintf(tmpl, subject)
	}
	return fmt.Sprintf("Should I invest in %s?", subject)
}
