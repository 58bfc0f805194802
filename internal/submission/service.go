package submission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/market"
)

// Store persists submissions.
type Store interface {
	InsertSubmission(ctx context.Context, sub market.Submission) (market.Submission, error)
	GetSubmission(ctx context.Context, id string) (market.Submission, error)
	ListByOwner(ctx context.Context, owner market.ContributorID) ([]market.Submission, error)
	DeleteUnsoldSubmission(ctx context.Context, owner market.ContributorID, id string, now time.Time) (market.Submission, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Input is the metadata recorded for an uploaded dataset. The blob itself is
// stored by an external collaborator; only its URL is kept here.
type Input struct {
	Category     string
	Title        string
	BlobURL      string
	QualityScore float64
}

// Service manages contributor submissions.
type Service struct {
	Store  Store
	Events Emitter
	Now    func() time.Time
	Logger *zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("submission service not configured")
	}
	return nil
}

// Create records a new unsold submission owned by owner.
func (s *Service) Create(ctx context.Context, owner market.ContributorID, in Input) (market.Submission, error) {
	if err := s.ready(); err != nil {
		return market.Submission{}, err
	}
	if owner.IsZero() {
		return market.Submission{}, fmt.Errorf("contributor is required: %w", market.ErrInvalidInput)
	}
	category, err := market.NormalizeCategory(in.Category)
	if err != nil {
		return market.Submission{}, err
	}
	if in.QualityScore < 0 || math.IsNaN(in.QualityScore) || math.IsInf(in.QualityScore, 0) {
		return market.Submission{}, fmt.Errorf("quality score must be a non-negative number: %w", market.ErrInvalidInput)
	}
	sub, err := s.Store.InsertSubmission(ctx, market.Submission{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		Category:     category,
		Title:        strings.TrimSpace(in.Title),
		BlobURL:      strings.TrimSpace(in.BlobURL),
		QualityScore: in.QualityScore,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return market.Submission{}, market.Persistence("insert submission", err)
	}
	s.emit(ctx, events.TopicSubmissionCreated, sub)
	return sub, nil
}

// List returns the owner's submissions, oldest first.
func (s *Service) List(ctx context.Context, owner market.ContributorID) ([]market.Submission, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	subs, err := s.Store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, market.Persistence("list by owner", err)
	}
	return subs, nil
}

// Get returns one submission. Submissions owned by someone else report
// market.ErrNotFound.
func (s *Service) Get(ctx context.Context, owner market.ContributorID, id string) (market.Submission, error) {
	if err := s.ready(); err != nil {
		return market.Submission{}, err
	}
	sub, err := s.Store.GetSubmission(ctx, strings.TrimSpace(id))
	if err != nil {
		return market.Submission{}, market.Persistence("get submission", err)
	}
	if sub.OwnerID != owner {
		return market.Submission{}, market.ErrNotFound
	}
	return sub, nil
}

// Delete removes an unsold submission owned by owner. Sold submissions are
// immutable and report market.ErrAlreadySold.
func (s *Service) Delete(ctx context.Context, owner market.ContributorID, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	sub, err := s.Store.DeleteUnsoldSubmission(ctx, owner, strings.TrimSpace(id), s.now())
	if err != nil {
		return market.Persistence("delete submission", err)
	}
	s.emit(ctx, events.TopicSubmissionDeleted, sub)
	return nil
}

func (s *Service) emit(ctx context.Context, topic string, sub market.Submission) {
	if s.Events == nil {
		return
	}
	payload := events.SubmissionChanged{SubmissionID: sub.ID, OwnerID: sub.OwnerID.String(), Category: sub.Category}
	if _, err := s.Events.Emit(ctx, topic, sub.ID, payload); err != nil && s.Logger != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("submission_id", sub.ID).Msg("submission_event_failed")
	}
}
