package eventstream

import (
	"context"
	"sync"

	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// MemStream is an in-process Stream for tests and single-process deployments
// without a database: events are held in memory per stream and fanned out
// to followers registered while Follow is running.
type MemStream struct {
	mu      sync.Mutex
	events  map[model.EventStreamName][]model.Event
	cursors map[string]int64 // "<stream>/<group>" -> last acked sequence
	nextSeq map[model.EventStreamName]int64
	waiters map[model.EventStreamName][]chan struct{}
	closed  bool
}

var _ Stream = (*MemStream)(nil)

// NewMemStream returns a ready-to-use in-memory Stream.
func NewMemStream() *MemStream {
	return &MemStream{
		events:  make(map[model.EventStreamName][]model.Event),
		cursors: make(map[string]int64),
		nextSeq: make(map[model.EventStreamName]int64),
		waiters: make(map[model.EventStreamName][]chan struct{}),
	}
}

func cursorKey(stream model.EventStreamName, group string) string {
	return string(stream) + "/" + group
}

func (m *MemStream) Emit(ctx context.Context, event model.Event, level model.AckLevel) error {
	m.mu.Lock()
	m.nextSeq[event.Stream]++
	event.Sequence = m.nextSeq[event.Stream]
	m.events[event.Stream] = append(m.events[event.Stream], event)
	waiters := m.waiters[event.Stream]
	m.waiters[event.Stream] = nil
	m.mu.Unlock()
	metrics.RecordEventEmitted(string(event.Stream), event.Code)

	for _, w := range waiters {
		close(w)
	}
	return nil
}

func (m *MemStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, ws := range m.waiters {
		for _, w := range ws {
			close(w)
		}
	}
	m.waiters = nil
	return nil
}

func (m *MemStream) Follow(ctx context.Context, stream model.EventStreamName, group string, fromPosition int64) (<-chan Delivery, error) {
	m.mu.Lock()
	cursor := fromPosition
	if fromPosition < 0 {
		cursor = m.cursors[cursorKey(stream, group)]
	}
	m.mu.Unlock()

	out := make(chan Delivery)
	go m.followLoop(ctx, stream, group, cursor, out)
	return out, nil
}

func (m *MemStream) followLoop(ctx context.Context, stream model.EventStreamName, group string, cursor int64, out chan<- Delivery) {
	defer close(out)

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		var pending []model.Event
		for _, ev := range m.events[stream] {
			if ev.Sequence > cursor {
				pending = append(pending, ev)
			}
		}
		var wait chan struct{}
		if len(pending) == 0 {
			wait = make(chan struct{})
			m.waiters[stream] = append(m.waiters[stream], wait)
		}
		m.mu.Unlock()

		for _, ev := range pending {
			seq := ev.Sequence
			delivery := Delivery{
				Event: ev,
				Ack: func(ackCtx context.Context) error {
					return m.ack(stream, group, seq)
				},
			}
			select {
			case out <- delivery:
				cursor = seq
			case <-ctx.Done():
				return
			}
		}
		if len(pending) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-wait:
		}
	}
}

func (m *MemStream) ack(stream model.EventStreamName, group string, position int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cursorKey(stream, group)
	if position > m.cursors[key] {
		m.cursors[key] = position
	}
	return nil
}
