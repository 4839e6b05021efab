package http

import (
	"net/http"
	"time"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
	"github.com/Draymont/StockCouncil/internal/service"
)

// bodyLimit caps request bodies; analysis requests are tiny.
const bodyLimit = 1 << 20

// Handlers serves the analysis REST API.
type Handlers struct {
	svc *service.AnalysisService
}

// NewHandlers creates the handler set around the analysis service.
func NewHandlers(svc *service.AnalysisService) *Handlers {
	return &Handlers{svc: svc}
}

type startAnalysisRequest struct {
	Symbol       string `json:"symbol"`
	AnalysisType string `json:"analysis_type"`
	Variant      string `json:"variant"`
}

type startAnalysisResponse struct {
	AnalysisID string `json:"analysis_id"`
	Subject    string `json:"subject"`
	Variant    string `json:"variant"`
	Question   string `json:"question"`
	Status     string `json:"status"`
}

// StartAnalysis launches a new analysis session and returns 202 with its id.
func (h *Handlers) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startAnalysisRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	variant := workflow.Variant(req.Variant)
	if req.Variant != "" && !variant.Valid() {
		writeError(w, http.StatusBadRequest, "unknown variant: "+req.Variant)
		return
	}

	sess, err := h.svc.Start(r.Context(), service.StartRequest{
		Subject:      req.Symbol,
		Variant:      variant,
		AnalysisType: req.AnalysisType,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, startAnalysisResponse{
		AnalysisID: sess.ID,
		Subject:    sess.Subject,
		Variant:    sess.Variant,
		Question:   sess.Question,
		Status:     string(sess.Status),
	})
}

// GetAnalysis returns the full session snapshot, transcript included.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	sess, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type sessionSummary struct {
	AnalysisID     string     `json:"analysis_id"`
	Subject        string     `json:"subject"`
	Variant        string     `json:"variant"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	Recommendation string     `json:"recommendation,omitempty"`
	OneLineSummary string     `json:"one_line_summary,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ListAnalyses returns summaries of known sessions in creation order.
func (h *Handlers) ListAnalyses(w http.ResponseWriter, _ *http.Request) {
	sessions := h.svc.List()

	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, summarize(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// CancelAnalysis raises the cooperative cancellation flag. The session keeps
// running until its next checkpoint, so the response is 202, not 200.
func (h *Handlers) CancelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	if err := h.svc.Cancel(id); err != nil {
		writeDomainError(w, err, "analysis not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"analysis_id": id,
		"status":      "cancellation_requested",
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func summarize(s analysis.Session) sessionSummary {
	return sessionSummary{
		AnalysisID:     s.ID,
		Subject:        s.Subject,
		Variant:        s.Variant,
		Status:         string(s.Status),
		Progress:       s.Progress,
		Recommendation: string(s.Recommendation),
		OneLineSummary: s.OneLineSummary,
		CreatedAt:      s.CreatedAt,
		CompletedAt:    s.CompletedAt,
	}
}
