// Package seed fills a store with demo contributors, submissions and agency
// profiles.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/submission"
)

// Store is what seeding writes to.
type Store interface {
	submission.Store
	UpsertAgency(ctx context.Context, agency market.Agency) (market.Agency, error)
	SetContributorEmail(ctx context.Context, id market.ContributorID, email string) error
}

// Options sizes the generated data set.
type Options struct {
	Contributors   int
	PerContributor int
	Categories     []string
	Agencies       []string
	Seed           int64
}

// DefaultCategories are used when Options.Categories is empty.
var DefaultCategories = []string{"Vision", "Audio", "Medical Imaging", "Geospatial", "Text Corpora"}

// Result counts what was written.
type Result struct {
	Contributors int
	Submissions  int
	Agencies     int
}

// Run writes the data set through the submission service so the usual
// validation and events apply.
func Run(ctx context.Context, store Store, svc *submission.Service, opts Options) (Result, error) {
	if opts.Contributors <= 0 {
		opts.Contributors = 5
	}
	if opts.PerContributor <= 0 {
		opts.PerContributor = 4
	}
	if len(opts.Categories) == 0 {
		opts.Categories = DefaultCategories
	}
	if len(opts.Agencies) == 0 {
		opts.Agencies = []string{"acme-research", "globex-ai"}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var res Result
	for i := 1; i <= opts.Contributors; i++ {
		owner, err := market.NewContributorID(fmt.Sprintf("contributor-%02d", i))
		if err != nil {
			return res, err
		}
		if err := store.SetContributorEmail(ctx, owner, fmt.Sprintf("%s@example.test", owner.String())); err != nil {
			return res, fmt.Errorf("seed contributor %s: %w", owner, err)
		}
		res.Contributors++
		for j := 0; j < opts.PerContributor; j++ {
			category := opts.Categories[rng.Intn(len(opts.Categories))]
			_, err := svc.Create(ctx, owner, submission.Input{
				Category:     category,
				Title:        fmt.Sprintf("%s sample %d", category, j+1),
				BlobURL:      fmt.Sprintf("https://blobs.example.test/%s/%d.parquet", owner, j+1),
				QualityScore: float64(rng.Intn(100)) / 10,
			})
			if err != nil {
				return res, fmt.Errorf("seed submission for %s: %w", owner, err)
			}
			res.Submissions++
		}
	}
	for _, raw := range opts.Agencies {
		id, err := market.NewAgencyID(raw)
		if err != nil {
			return res, err
		}
		if _, err := store.UpsertAgency(ctx, market.Agency{ID: id, Name: raw, ContactEmail: "buyers@" + raw + ".example.test"}); err != nil {
			return res, fmt.Errorf("seed agency %s: %w", raw, err)
		}
		res.Agencies++
	}
	return res, nil
}
