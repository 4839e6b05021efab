package analysis

// Recommendation is the synthesized investment verdict.
type Recommendation string

const (
	StrongBuy  Recommendation = "STRONG_BUY"
	Buy        Recommendation = "BUY"
	Hold       Recommendation = "HOLD"
	Sell       Recommendation = "SELL"
	StrongSell Recommendation = "STRONG_SELL"
)

// Display returns the human-readable form ("STRONG_BUY" -> "STRONG BUY").
func (r Recommendation) Display() string {
	out := make([]byte, len(r))
	for i := 0; i < len(r); i++ {
		if r[i] == '_' {
			out[i] = ' '
		} else {
			out[i] = r[i]
		}
	}
	return string(out)
}

// Verdict is the structured result extracted from a completed transcript.
type Verdict struct {
	Recommendation Recommendation `json:"recommendation"`
	Confidence     int            `json:"confidence"`
	OneLineSummary string         `json:"one_line_summary"`
	Summary        string         `json:"summary"`
}
