// Package eventstream implements the append-only audit + change event log
// of spec.md §4.2: emission partitioned by stream key, at-least-once
// redelivery to named follower groups, and a per-group cursor.
package eventstream

import (
	"context"

	"github.com/replicante-io/replicore/internal/model"
)

// Delivery pairs a delivered event with an ack callback; a follower must
// call Ack once it has durably processed the event, advancing its group's
// cursor past it.
type Delivery struct {
	Event model.Event
	Ack   func(ctx context.Context) error
}

// Stream is the process-wide handle passed around the codebase (spec.md §5
// process-wide singleton, internally thread-safe).
type Stream interface {
	// Emit appends event to its stream, acknowledging at the given level
	// before returning. A zero AckLevel behaves as AckAll.
	Emit(ctx context.Context, event model.Event, level model.AckLevel) error

	// Follow returns a channel of deliveries for group, starting after
	// fromPosition (0 meaning "replay everything still retained", or the
	// group's persisted cursor if fromPosition is negative). The channel
	// closes when ctx is cancelled or Close is called.
	Follow(ctx context.Context, stream model.EventStreamName, group string, fromPosition int64) (<-chan Delivery, error)

	// Close releases underlying resources (listener connections, etc).
	Close() error
}
