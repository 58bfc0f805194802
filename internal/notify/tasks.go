// Package notify tells contributors when their datasets sell. Settlement
// events are fanned out into one asynq task per contributor; the worker
// resolves the contributor's address and sends the mail.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TaskSaleNotify is the asynq task type for sale notifications.
const TaskSaleNotify = "sale:notify"

// SalePayload is the body of a TaskSaleNotify task.
type SalePayload struct {
	SettlementID string    `json:"settlementId"`
	OwnerID      string    `json:"ownerId"`
	Category     string    `json:"category"`
	Items        int       `json:"items"`
	Payout       float64   `json:"payout"`
	SoldAt       time.Time `json:"soldAt"`
}

// TaskID is the dedup id of the task; one notification per contributor per
// settlement.
func (p SalePayload) TaskID() string {
	return p.SettlementID + ":" + p.OwnerID
}

// NewSaleTask encodes p as an asynq task.
func NewSaleTask(p SalePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if strings.TrimSpace(p.SettlementID) == "" || strings.TrimSpace(p.OwnerID) == "" {
		return nil, errors.New("notify: settlement and owner are required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode payload: %w", err)
	}
	opts = append([]asynq.Option{asynq.TaskID(p.TaskID())}, opts...)
	return asynq.NewTask(TaskSaleNotify, body, opts...), nil
}

// ParseSaleTask decodes the payload of a TaskSaleNotify task.
func ParseSaleTask(t *asynq.Task) (SalePayload, error) {
	var p SalePayload
	if t == nil {
		return p, errors.New("notify: nil task")
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("notify: decode payload: %w", err)
	}
	if p.SettlementID == "" || p.OwnerID == "" {
		return p, errors.New("notify: payload missing settlement or owner")
	}
	return p, nil
}
