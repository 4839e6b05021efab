// Package broadcast defines the port for publishing progress events to
// session observers.
package broadcast

import (
	"context"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
)

// Publisher delivers a progress event to every observer of its session.
// Implementations must preserve per-session publish order per subscriber.
type Publisher interface {
	Publish(ctx context.Context, ev analysis.ProgressEvent)
}
