package events

import (
	"encoding/json"
	"time"
)

// Topic constants for domain events emitted by the marketplace.
const (
	TopicSettlementCompleted = "settlement.completed"
	TopicSubmissionCreated   = "submission.created"
	TopicSubmissionDeleted   = "submission.deleted"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicSettlementCompleted,
		TopicSubmissionCreated,
		TopicSubmissionDeleted,
	}
}

// SoldItem is one line of a settlement payload.
type SoldItem struct {
	SubmissionID string  `json:"submissionId"`
	OwnerID      string  `json:"ownerId"`
	Payout       float64 `json:"payout"`
}

// SettlementCompleted is the payload of TopicSettlementCompleted.
type SettlementCompleted struct {
	SettlementID string     `json:"settlementId"`
	AgencyID     string     `json:"agencyId"`
	Category     string     `json:"category"`
	SoldAt       time.Time  `json:"soldAt"`
	TotalCost    float64    `json:"totalCost"`
	Items        []SoldItem `json:"items"`
}

// Owners returns the distinct contributor ids in payload order.
func (p SettlementCompleted) Owners() []string {
	seen := make(map[string]struct{}, len(p.Items))
	out := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		if _, ok := seen[it.OwnerID]; ok {
			continue
		}
		seen[it.OwnerID] = struct{}{}
		out = append(out, it.OwnerID)
	}
	return out
}

// SubmissionChanged is the payload of the submission topics.
type SubmissionChanged struct {
	SubmissionID string `json:"submissionId"`
	OwnerID      string `json:"ownerId"`
	Category     string `json:"category"`
}

// AffectedOwners decodes the contributor ids touched by an event.
func AffectedOwners(ev Event) ([]string, error) {
	switch ev.Topic {
	case TopicSettlementCompleted:
		var p SettlementCompleted
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, err
		}
		return p.Owners(), nil
	case TopicSubmissionCreated, TopicSubmissionDeleted:
		var p SubmissionChanged
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, err
		}
		if p.OwnerID == "" {
			return nil, nil
		}
		return []string{p.OwnerID}, nil
	default:
		return nil, nil
	}
}
