package repo

import (
	"context"

	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/market"
)

// InsertDomainEvent persists an event into the domain_events table.
func (p *Postgres) InsertDomainEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	const op = "insert event"
	if err := p.ready(op); err != nil {
		return events.Event{}, err
	}
	row, err := p.queryRow(ctx, p.sb.Insert("domain_events").
		Columns("id", "topic", "aggregate_id", "payload", "occurred_at").
		Values(ev.ID, ev.Topic, ev.AggregateID, ev.Payload, ev.OccurredAt).
		Suffix("RETURNING occurred_at"))
	if err != nil {
		return events.Event{}, market.Persistence(op, err)
	}
	if err := row.Scan(&ev.OccurredAt); err != nil {
		return events.Event{}, market.Persistence(op, err)
	}
	return ev, nil
}
