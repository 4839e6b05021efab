// Package synthesis turns an accumulated transcript into a structured
// verdict. Synthesize is pure and total: identical input always yields an
// identical verdict, and extraction never fails — ambiguous transcripts get
// documented defaults instead of errors.
package synthesis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
)

// Extraction defaults. Confidence is clamped to [5,95] when parsed from the
// text; the keyword fallbacks are in range by construction.
const (
	defaultConfidence  = 75
	strongConfidence   = 85
	moderateConfidence = 70
	weakConfidence     = 55
	emptyConfidence    = 50
	minConfidence      = 5
	maxConfidence      = 95
	maxReasoning       = 3
)

// markerSet is the recommendation vocabulary, ordered by priority.
var markerSet = `STRONG\s+BUY|STRONG\s+SELL|BUY|SELL|HOLD`

// recPatterns are tried in order; the first match wins. Explicit markers
// outrank bare keywords.
var recPatterns = []*regexp.Regexp{
	regexp.MustCompile(`FINAL\s+RECOMMENDATION[:\s]+(` + markerSet + `)`),
	regexp.MustCompile(`RECOMMENDATION[:\s]+(` + markerSet + `)`),
	regexp.MustCompile(`FINAL\s+DECISION[:\s]+(` + markerSet + `)`),
	regexp.MustCompile(`CONCLUDE[:\s]+(` + markerSet + `)`),
	regexp.MustCompile(`(STRONG\s+BUY)`),
	regexp.MustCompile(`(STRONG\s+SELL)`),
}

// bareBuy and bareSell capture the word following the keyword so that
// "BUY SIDE" and "BUY BACK" are not read as recommendations. RE2 has no
// lookahead, so the exclusion is checked on the captured word.
var (
	bareBuy  = regexp.MustCompile(`\b(BUY)\b(?:\s+([A-Z]+))?`)
	bareSell = regexp.MustCompile(`\b(SELL)\b(?:\s+([A-Z]+))?`)
	bareHold = regexp.MustCompile(`\b(HOLD)\b`)
)

type confPattern struct {
	re    *regexp.Regexp
	tenth bool // value is on a /10 scale
}

var confPatterns = []confPattern{
	{regexp.MustCompile(`CONFIDENCE[:\s]+(\d+)%`), false},
	{regexp.MustCompile(`CONFIDENCE[:\s]+(\d+)/10`), true},
	{regexp.MustCompile(`(\d+)%\s*CONFIDENCE`), false},
	{regexp.MustCompile(`(\d+)/10\s*CONFIDENCE`), true},
	{regexp.MustCompile(`CONFIDENCE\s*LEVEL[:\s]+(\d+)%`), false},
	{regexp.MustCompile(`CERTAINTY[:\s]+(\d+)%`), false},
}

var targetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`TARGET\s+PRICE[:\s]*\$?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`PRICE\s+TARGET[:\s]*\$?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`TARGET[:\s]*\$?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`FAIR\s+VALUE[:\s]*\$?(\d+(?:\.\d+)?)`),
}

var (
	timeframeCount = regexp.MustCompile(`(\d+)[-\s]?(MONTHS?|YEARS?|DAYS?|WEEKS?)`)
	timeframeTerm  = regexp.MustCompile(`(SHORT|MEDIUM|LONG)[-\s]?TERM`)
)

var reasoningSections = []*regexp.Regexp{
	regexp.MustCompile(`(?is)WHY\s+THIS\s+DECISION\s+MAKES\s+SENSE[:\s]*(.+)`),
	regexp.MustCompile(`(?is)DECISION\s+REASONING[:\s]*(.+)`),
	regexp.MustCompile(`(?is)KEY\s+FACTORS[:\s]*(.+)`),
	regexp.MustCompile(`(?is)INVESTMENT\s+THESIS[:\s]*(.+)`),
}

// Synthesize maps a transcript to a verdict for the given subject.
func Synthesize(transcript []analysis.Turn, subject string) analysis.Verdict {
	if len(transcript) == 0 {
		return analysis.Verdict{
			Recommendation: analysis.Hold,
			Confidence:     emptyConfidence,
			OneLineSummary: fmt.Sprintf("HOLD %s - No analysis available", subject),
			Summary:        fmt.Sprintf("No analysis generated for %s", subject),
		}
	}

	final := authoritativeContent(transcript)
	rec := extractRecommendation(final)
	conf := extractConfidence(final)

	return analysis.Verdict{
		Recommendation: rec,
		Confidence:     conf,
		OneLineSummary: oneLineSummary(final, subject, rec, conf),
		Summary:        detailedSummary(transcript, final, subject, rec, conf),
	}
}

// authoritativeContent picks the most authoritative transcript segment: the
// last turn of the final synthesis phase when present, else the overall last
// turn.
func authoritativeContent(transcript []analysis.Turn) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(transcript[i].Phase), "synthesis") {
			return transcript[i].Content
		}
	}
	return transcript[len(transcript)-1].Content
}

func extractRecommendation(content string) analysis.Recommendation {
	upper := strings.ToUpper(content)

	for _, re := range recPatterns {
		if m := re.FindStringSubmatch(upper); m != nil {
			return normalizeMarker(m[1])
		}
	}
	if matchBare(upper, bareBuy, "SIDE", "BACK") {
		return analysis.Buy
	}
	if matchBare(upper, bareSell, "SIDE") {
		return analysis.Sell
	}
	if bareHold.MatchString(upper) {
		return analysis.Hold
	}

	// Sentiment fallback.
	switch {
	case strings.Contains(upper, "POSITIVE"), strings.Contains(upper, "BULLISH"),
		strings.Contains(upper, "UPSIDE"):
		return analysis.Buy
	case strings.Contains(upper, "NEGATIVE"), strings.Contains(upper, "BEARISH"),
		strings.Contains(upper, "DOWNSIDE"):
		return analysis.Sell
	}
	return analysis.Hold
}

// matchBare reports whether re matches anywhere with a following word not in
// the excluded set.
func matchBare(upper string, re *regexp.Regexp, excluded ...string) bool {
	for _, m := range re.FindAllStringSubmatch(upper, -1) {
		next := ""
		if len(m) > 2 {
			next = m[2]
		}
		ok := true
		for _, ex := range excluded {
			if next == ex {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func normalizeMarker(marker string) analysis.Recommendation {
	collapsed := strings.Join(strings.Fields(marker), "_")
	return analysis.Recommendation(collapsed)
}

func extractConfidence(content string) int {
	upper := strings.ToUpper(content)

	for _, p := range confPatterns {
		m := p.re.FindStringSubmatch(upper)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if p.tenth {
			v *= 10
		}
		return clampConfidence(v)
	}

	switch {
	case strings.Contains(upper, "STRONG"), strings.Contains(upper, "HIGH CONFIDENCE"):
		return strongConfidence
	case strings.Contains(upper, "MODERATE"), strings.Contains(upper, "MEDIUM"):
		return moderateConfidence
	case strings.Contains(upper, "WEAK"), strings.Contains(upper, "LOW"):
		return weakConfidence
	}
	return defaultConfidence
}

func clampConfidence(v int) int {
	if v < minConfidence {
		return minConfidence
	}
	if v > maxConfidence {
		return maxConfidence
	}
	return v
}

// oneLineSummary formats the verdict headline, e.g.
// "BUY AAPL (85% confidence - Target: $150.00)".
func oneLineSummary(content, subject string, rec analysis.Recommendation, conf int) string {
	upper := strings.ToUpper(content)

	target := ""
	for _, re := range targetPatterns {
		if m := re.FindStringSubmatch(upper); m != nil {
			target = " - Target: $" + m[1]
			break
		}
	}

	timeframe := ""
	if m := timeframeCount.FindStringSubmatch(upper); m != nil {
		timeframe = ", " + m[1] + " " + strings.ToLower(m[2])
	} else if m := timeframeTerm.FindStringSubmatch(upper); m != nil {
		timeframe = ", " + strings.ToLower(m[1]) + "-term"
	}

	return fmt.Sprintf("%s %s (%d%% confidence%s%s)",
		rec.Display(), subject, conf, target, timeframe)
}

// detailedSummary lists participation, turn count, and up to three reasoning
// sentences pulled from the final segment's explanation markers.
func detailedSummary(transcript []analysis.Turn, final, subject string,
	rec analysis.Recommendation, conf int) string {

	workers := participants(transcript)

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis complete for %s\n", subject)
	fmt.Fprintf(&b, "Final recommendation: %s (confidence %d%%)\n", rec.Display(), conf)
	fmt.Fprintf(&b, "Participants (%d): %s\n", len(workers), strings.Join(workers, ", "))
	fmt.Fprintf(&b, "Total turns: %d\n", len(transcript))

	if reasons := extractReasoning(final); len(reasons) > 0 {
		b.WriteString("Reasoning:\n")
		for _, r := range reasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// participants returns worker ids deduplicated in first-appearance order.
func participants(transcript []analysis.Turn) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range transcript {
		if !seen[t.WorkerID] {
			seen[t.WorkerID] = true
			out = append(out, t.WorkerID)
		}
	}
	return out
}

func extractReasoning(content string) []string {
	var reasons []string
	for _, re := range reasoningSections {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
			if len(line) > 20 {
				reasons = append(reasons, line)
			}
			if len(reasons) >= maxReasoning {
				return reasons
			}
		}
		if len(reasons) > 0 {
			break
		}
	}
	return reasons
}
