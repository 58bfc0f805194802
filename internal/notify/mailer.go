package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/lock"
	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/obs"
)

// Directory resolves contributor mail addresses.
type Directory interface {
	ContributorEmail(ctx context.Context, id market.ContributorID) (string, error)
}

// SaleMailer handles TaskSaleNotify tasks.
type SaleMailer struct {
	Directory Directory
	Mail      common.EmailSender
	Enabled   bool
	Locker    lock.Guard
	LockTTL   time.Duration
	Replay    ReplayGuard
	ReplayTTL time.Duration
	Logger    *zerolog.Logger
}

// Register mounts the mailer on mux.
func (m *SaleMailer) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskSaleNotify, m)
}

// ProcessTask implements asynq.Handler.
func (m *SaleMailer) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := ParseSaleTask(t)
	if err != nil {
		obs.ObserveSaleNotification("invalid")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if !m.Enabled || m.Mail == nil {
		obs.ObserveSaleNotification("disabled")
		return nil
	}
	if m.Locker == nil {
		return m.deliver(ctx, p)
	}
	ttl := m.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return m.Locker.WithLock(ctx, "lock:sale-notify:"+p.TaskID(), ttl, func(ctx context.Context) error {
		return m.deliver(ctx, p)
	})
}

func (m *SaleMailer) deliver(ctx context.Context, p SalePayload) error {
	owner, err := market.NewContributorID(p.OwnerID)
	if err != nil {
		obs.ObserveSaleNotification("invalid")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if m.Directory == nil {
		return errors.New("sale mailer: directory not configured")
	}
	to, err := m.Directory.ContributorEmail(ctx, owner)
	if errors.Is(err, market.ErrNotFound) {
		obs.ObserveSaleNotification("no_address")
		m.log().Info().Str("owner_id", p.OwnerID).Str("settlement_id", p.SettlementID).Msg("sale_notification_skipped")
		return nil
	}
	if err != nil {
		obs.ObserveSaleNotification("error")
		return fmt.Errorf("sale mailer: resolve address: %w", err)
	}

	key := DeliveryKey(p)
	if m.Replay != nil {
		fresh, err := m.Replay.Acquire(ctx, key, m.ReplayTTL)
		if err != nil {
			obs.ObserveSaleNotification("error")
			return fmt.Errorf("sale mailer: replay guard: %w", err)
		}
		if !fresh {
			obs.ObserveSaleNotification("duplicate")
			return nil
		}
	}

	if err := m.Mail.Send(to, Subject(p), Body(p)); err != nil {
		if m.Replay != nil {
			_ = m.Replay.Release(context.WithoutCancel(ctx), key)
		}
		obs.ObserveSaleNotification("error")
		return fmt.Errorf("sale mailer: send: %w", err)
	}
	obs.ObserveSaleNotification("sent")
	m.log().Info().Str("owner_id", p.OwnerID).Str("settlement_id", p.SettlementID).Int("items", p.Items).Msg("sale_notification_sent")
	return nil
}

func (m *SaleMailer) log() *zerolog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Subject renders the mail subject.
func Subject(p SalePayload) string {
	if p.Items == 1 {
		return fmt.Sprintf("Your %s dataset sold", p.Category)
	}
	return fmt.Sprintf("%d of your %s datasets sold", p.Items, p.Category)
}

// Body renders the mail body.
func Body(p SalePayload) string {
	return fmt.Sprintf(
		"<p>%d submission(s) in <b>%s</b> were purchased on %s.</p><p>Gross payout: %.2f</p><p>Settlement: %s</p>",
		p.Items, p.Category, p.SoldAt.UTC().Format(time.RFC1123), p.Payout, p.SettlementID,
	)
}
