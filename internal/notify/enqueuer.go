package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/datanexus/internal/events"
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SaleNotifier is an events.Notifier that turns settlement.completed events
// into sale notification tasks.
type SaleNotifier struct {
	Queue     TaskEnqueuer
	QueueName string
	MaxRetry  int
	Retention time.Duration
	Logger    *zerolog.Logger
}

// Notify implements events.Notifier.
func (n SaleNotifier) Notify(ctx context.Context, ev events.Event) error {
	if n.Queue == nil || ev.Topic != events.TopicSettlementCompleted {
		return nil
	}
	var sc events.SettlementCompleted
	if err := json.Unmarshal(ev.Payload, &sc); err != nil {
		return fmt.Errorf("sale notifier: decode payload: %w", err)
	}
	var errs []error
	for _, p := range Payloads(sc) {
		task, err := NewSaleTask(p, n.options()...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := n.Queue.EnqueueContext(ctx, task)
		switch {
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("enqueue %s: %w", p.TaskID(), err))
			continue
		}
		if n.Logger != nil {
			n.Logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("sale_notification_enqueued")
		}
	}
	return errors.Join(errs...)
}

func (n SaleNotifier) options() []asynq.Option {
	var opts []asynq.Option
	if n.QueueName != "" {
		opts = append(opts, asynq.Queue(n.QueueName))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Retention > 0 {
		opts = append(opts, asynq.Retention(n.Retention))
	}
	return opts
}

// Payloads groups the sold items of a settlement by contributor, in the order
// contributors first appear.
func Payloads(sc events.SettlementCompleted) []SalePayload {
	byOwner := make(map[string]int, len(sc.Items))
	var out []SalePayload
	for _, it := range sc.Items {
		idx, ok := byOwner[it.OwnerID]
		if !ok {
			idx = len(out)
			byOwner[it.OwnerID] = idx
			out = append(out, SalePayload{
				SettlementID: sc.SettlementID,
				OwnerID:      it.OwnerID,
				Category:     sc.Category,
				SoldAt:       sc.SoldAt,
			})
		}
		out[idx].Items++
		out[idx].Payout += it.Payout
	}
	return out
}
