// Package messagequeue defines the port for mirroring progress events to an
// external broker so out-of-process observers can follow a session.
package messagequeue

import "context"

// Queue publishes raw payloads to broker subjects.
type Queue interface {
	// Publish sends a payload to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close shuts down the broker connection.
	Close() error
}

// SubjectEvents is the subject pattern for mirrored progress events.
// The session id is appended: analysis.<id>.events.
const SubjectEvents = "analysis.%s.events"
