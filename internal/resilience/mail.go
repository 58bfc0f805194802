package resilience

import (
	"context"

	"github.com/noah-isme/datanexus/internal/common"
)

// GuardedSender routes mail through a breaker so a failing relay is not
// hammered by every queued notification.
type GuardedSender struct {
	Next    common.EmailSender
	Breaker *Breaker
}

// Send implements common.EmailSender.
func (g GuardedSender) Send(to, subject, html string) error {
	if g.Next == nil {
		return nil
	}
	return g.Breaker.Do(context.Background(), func(context.Context) error {
		return g.Next.Send(to, subject, html)
	})
}
