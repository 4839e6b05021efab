package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/port/messagequeue"
)

// Mirror adapts a Queue to the broadcast publisher port. Mirroring is
// best-effort: a broker failure is logged and never blocks the session.
type Mirror struct {
	q messagequeue.Queue
}

// NewMirror wraps a queue for progress event mirroring.
func NewMirror(q messagequeue.Queue) *Mirror {
	return &Mirror{q: q}
}

// Publish sends the event to analysis.<session_id>.events as JSON.
func (m *Mirror) Publish(ctx context.Context, ev analysis.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("mirror marshal", "session_id", ev.SessionID, "error", err)
		return
	}
	subject := fmt.Sprintf(messagequeue.SubjectEvents, ev.SessionID)
	if err := m.q.Publish(ctx, subject, data); err != nil {
		slog.Warn("mirror publish", "subject", subject, "error", err)
	}
}
