package eventstream

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// notifyChannel is the single LISTEN/NOTIFY channel used to wake up idle
// followers; followers re-poll their own stream+cursor on every wakeup
// rather than relying on the notification payload, so the channel carries
// no data (a from-scratch LISTEN/NOTIFY nudge, simplified since we only
// need a "something changed" wakeup, not per-row payloads).
const notifyChannel = "replicore_eventstream"

// PGStream is a PostgreSQL-backed Stream: events are appended to a table
// and followers poll it, woken early by LISTEN/NOTIFY instead of a fixed
// poll interval.
type PGStream struct {
	db       *sql.DB
	listener *pq.Listener
	poll     time.Duration
}

var _ Stream = (*PGStream)(nil)

// NewPGStream wraps db (and a lib/pq listener opened against dsn) as a Stream.
func NewPGStream(db *sql.DB, dsn string) *PGStream {
	reportProblem := func(pq.ListenerEventType, error) {}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)
	_ = listener.Listen(notifyChannel)
	return &PGStream{db: db, listener: listener, poll: 5 * time.Second}
}

func (p *PGStream) Close() error {
	return p.listener.Close()
}

func synchronousCommitFor(level model.AckLevel) string {
	switch level {
	case model.AckLeaderOnly:
		return "local"
	case model.AckNone:
		return "off"
	default:
		return "on"
	}
}

func (p *PGStream) Emit(ctx context.Context, event model.Event, level model.AckLevel) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return apperr.Infrastructure(err, "encoding event payload")
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infrastructure(err, "beginning event emit transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL synchronous_commit TO %s", synchronousCommitFor(level))); err != nil {
		return apperr.Infrastructure(err, "setting synchronous_commit for emit")
	}

	var sequence int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO event_log (stream, stream_key, code, time, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING sequence
	`, event.Stream, event.StreamKey, event.Code, event.Time, payloadJSON).Scan(&sequence)
	if err != nil {
		return apperr.Infrastructure(err, "appending event %s/%s", event.Stream, event.Code)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Infrastructure(err, "committing event emit")
	}
	metrics.RecordEventEmitted(string(event.Stream), event.Code)

	// Best-effort wakeup; a missed notification only delays followers until
	// their next poll tick, it never loses the event (already committed).
	_, _ = p.db.ExecContext(ctx, "SELECT pg_notify($1, '')", notifyChannel)
	return nil
}

func (p *PGStream) Follow(ctx context.Context, stream model.EventStreamName, group string, fromPosition int64) (<-chan Delivery, error) {
	cursor, err := p.resolveCursor(ctx, stream, group, fromPosition)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go p.followLoop(ctx, stream, group, cursor, out)
	return out, nil
}

func (p *PGStream) resolveCursor(ctx context.Context, stream model.EventStreamName, group string, fromPosition int64) (int64, error) {
	if fromPosition >= 0 {
		return fromPosition, nil
	}
	var cursor int64
	err := p.db.QueryRowContext(ctx, `
		SELECT position FROM event_follower_cursor WHERE stream = $1 AND group_name = $2
	`, stream, group).Scan(&cursor)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, apperr.Infrastructure(err, "loading follower cursor for %s/%s", stream, group)
	}
	return cursor, nil
}

func (p *PGStream) followLoop(ctx context.Context, stream model.EventStreamName, group string, cursor int64, out chan<- Delivery) {
	defer close(out)

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		events, err := p.fetchAfter(ctx, stream, cursor)
		if err == nil {
			for _, ev := range events {
				seq := ev.Sequence
				delivery := Delivery{
					Event: ev,
					Ack: func(ackCtx context.Context) error {
						return p.ack(ackCtx, stream, group, seq)
					},
				}
				select {
				case out <- delivery:
					cursor = seq
				case <-ctx.Done():
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-p.listener.Notify:
			if !ok {
				return
			}
		case <-ticker.C:
		}
	}
}

func (p *PGStream) fetchAfter(ctx context.Context, stream model.EventStreamName, cursor int64) ([]model.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT sequence, stream, stream_key, code, time, payload
		FROM event_log
		WHERE stream = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT 500
	`, stream, cursor)
	if err != nil {
		return nil, apperr.Infrastructure(err, "polling event log for %s", stream)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		var payloadRaw []byte
		if err := rows.Scan(&ev.Sequence, &ev.Stream, &ev.StreamKey, &ev.Code, &ev.Time, &payloadRaw); err != nil {
			return nil, apperr.Infrastructure(err, "scanning event log row")
		}
		if len(payloadRaw) > 0 && string(payloadRaw) != "null" {
			if err := json.Unmarshal(payloadRaw, &ev.Payload); err != nil {
				return nil, apperr.Infrastructure(err, "decoding event payload")
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *PGStream) ack(ctx context.Context, stream model.EventStreamName, group string, position int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO event_follower_cursor (stream, group_name, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream, group_name) DO UPDATE SET position = $3
		WHERE event_follower_cursor.position < $3
	`, stream, group, position)
	if err != nil {
		return apperr.Infrastructure(err, "acking %s/%s to %d", stream, group, position)
	}
	return nil
}
