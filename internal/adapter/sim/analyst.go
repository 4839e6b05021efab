package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
)

// Analyst is a deterministic stand-in for one specialist role. Everything it
// says is derived from the subject symbol, so a rerun reproduces the same
// transcript byte for byte.
type Analyst struct {
	id      string
	closers []string
}

func (a *Analyst) ID() string { return a.id }

// Simulated marks the analyst as a stand-in so phases it serves are flagged.
func (a *Analyst) Simulated() bool { return true }

// Invoke produces one canned turn. The termination keyword is appended only
// when this analyst closes the current phase, which the round-robin order
// guarantees happens after every predecessor has spoken.
func (a *Analyst) Invoke(ctx context.Context, contextText string, _ []analysis.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	subject := subjectFrom(contextText)
	content := a.compose(subject)

	for _, k := range a.closers {
		if strings.Contains(contextText, "End with: "+k) {
			content += "\n\n" + k
			break
		}
	}
	return content, nil
}

func (a *Analyst) compose(subject string) string {
	seed := seedFor(subject, a.id)
	price := float64(40+seed%400) + float64(seed%100)/100
	pct := 1 + seed%9

	switch a.id {
	case workflow.WorkerOrganiser:
		return fmt.Sprintf("Opening the analysis of %s. Each specialist should cover "+
			"their area and flag anything that changes the investment case.", subject)
	case workflow.WorkerDataAnalyst:
		return fmt.Sprintf("%s trades near $%.2f. RSI at %d, MACD %s, 50-day moving "+
			"average trending %s. Volume is %d%% above the 30-day average.",
			subject, price, 35+seed%30, direction(seed, "positive", "negative"),
			direction(seed>>1, "up", "down"), 5+seed%20)
	case workflow.WorkerQuantAnalyst:
		return fmt.Sprintf("Quantitative signals for %s: annualised volatility %d%%, "+
			"Sharpe ratio %.2f, beta %.2f against the index. Momentum factor ranks in "+
			"the %dth percentile.", subject, 15+seed%35, 0.5+float64(seed%150)/100,
			0.6+float64(seed%90)/100, 20+seed%75)
	case workflow.WorkerStrategyDev:
		return fmt.Sprintf("Strategy for %s: staged entry over %d weeks, stop-loss %d%% "+
			"below entry, first target at $%.2f. Position size capped at %d%% of portfolio.",
			subject, 1+seed%4, 5+seed%10, price*1.12, 2+seed%5)
	case workflow.WorkerRiskManager:
		return fmt.Sprintf("Risk review for %s: maximum drawdown risk %d%%, sector "+
			"concentration is %s, liquidity adequate for the proposed size. Downside "+
			"hedging via protective puts is worth the premium at current volatility.",
			subject, 10+seed%25, direction(seed, "acceptable", "elevated"))
	case workflow.WorkerCompliance:
		return fmt.Sprintf("Compliance check for %s: no open regulatory actions found, "+
			"disclosure filings current, position would remain within mandate limits.", subject)
	case workflow.WorkerSentiment:
		return fmt.Sprintf("Sentiment on %s is %s: news flow skews %s over the last two "+
			"weeks and social volume is up %d%%.", subject,
			direction(seed, "constructive", "cautious"),
			direction(seed, "positive", "negative"), 3+seed%40)
	case workflow.WorkerOptions:
		return fmt.Sprintf("Options market for %s: implied volatility %d%%, put/call "+
			"ratio %.2f, skew %s. A %d-delta covered call adds yield without capping "+
			"the base case.", subject, 20+seed%40, 0.6+float64(seed%80)/100,
			direction(seed, "flat", "steep"), 20+seed%15)
	case workflow.WorkerESG:
		return fmt.Sprintf("ESG profile of %s: governance score %d/100, emissions "+
			"trajectory %s, no material controversies in the screening window.",
			subject, 50+seed%45, direction(seed, "improving", "flat"))
	case workflow.WorkerStressTest:
		return fmt.Sprintf("Stress scenarios for %s: 2008-style shock implies a %d%% "+
			"drawdown, rate spike scenario %d%%, Monte Carlo 95%% VaR at %d%% over one "+
			"month.", subject, 25+seed%20, 8+seed%12, 4+seed%8)
	case workflow.WorkerArbitrage:
		return fmt.Sprintf("Arbitrage scan for %s: cross-venue spread %d basis points, "+
			"no actionable pairs dislocation against sector peers.", subject, seed%30)
	case workflow.WorkerOrderExecution:
		return fmt.Sprintf("Execution plan for %s: VWAP slicing over %d hours keeps "+
			"expected market impact under %d basis points; route passively to lit venues "+
			"first.", subject, 2+seed%6, 5+seed%15)
	case workflow.WorkerReport:
		return a.report(subject, seed, price, pct)
	}
	return fmt.Sprintf("No additional findings on %s from %s.", subject, a.id)
}

// report emits the structured verdict block the result extraction reads.
func (a *Analyst) report(subject string, seed uint64, price float64, pct uint64) string {
	recs := []string{"BUY", "HOLD", "SELL", "STRONG BUY", "HOLD"}
	rec := recs[seed%uint64(len(recs))]
	conf := 60 + seed%31

	return fmt.Sprintf(`FINAL RECOMMENDATION: %s
CONFIDENCE: %d%%
TARGET PRICE: $%.2f
TIMEFRAME: %d months

WHY THIS DECISION MAKES SENSE:
- The technical and quantitative picture for %s points the same direction as the fundamental case.
- Risk review found no blocker and position sizing keeps the downside contained at %d%%.
- Compliance and liquidity checks passed with room inside mandate limits.`,
		rec, conf, price*1.1, 3+seed%10, subject, pct)
}

// seedFor hashes subject and role into a stable seed.
func seedFor(subject, role string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(subject))
	_, _ = h.Write([]byte("/"))
	_, _ = h.Write([]byte(role))
	return h.Sum64()
}

func direction(seed uint64, even, odd string) string {
	if seed%2 == 0 {
		return even
	}
	return odd
}

// subjectStopwords are upper-case tokens that appear in questions and phase
// instructions but are never the subject symbol.
var subjectStopwords = map[string]bool{
	"I": true, "A": true, "BUY": true, "SELL": true, "HOLD": true,
	"STOP": true, "ESG": true, "VWAP": true, "RSI": true, "MACD": true,
}

// subjectFrom recovers the subject symbol from the context text: the first
// short all-caps word that is not part of the instruction vocabulary.
func subjectFrom(contextText string) string {
	words := strings.FieldsFunc(contextText, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z') && !(r >= 'a' && r <= 'z') &&
			!(r >= '0' && r <= '9') && r != '.' && r != '-'
	})

	for _, w := range words {
		if len(w) > 6 || subjectStopwords[w] {
			continue
		}
		hasLetter, allUpper := false, true
		for _, r := range w {
			if r >= 'a' && r <= 'z' {
				allUpper = false
				break
			}
			if r >= 'A' && r <= 'Z' {
				hasLetter = true
			}
		}
		if hasLetter && allUpper {
			return w
		}
	}
	return "the subject"
}
