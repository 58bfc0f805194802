package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/obs"
	"github.com/noah-isme/datanexus/internal/repo"
	"github.com/noah-isme/datanexus/internal/seed"
	"github.com/noah-isme/datanexus/internal/submission"
)

func newSeedCmd() *cobra.Command {
	var opts seed.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo contributors, submissions and agencies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			poolConfig, err := pgxpool.ParseConfig(url)
			if err != nil {
				return fmt.Errorf("parse database config: %w", err)
			}
			poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
			pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			store := repo.NewPostgres(pool)
			svc := &submission.Service{Store: store, Events: &events.Bus{Store: store}}
			res, err := seed.Run(ctx, store, svc, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d contributors, %d submissions, %d agencies\n",
				res.Contributors, res.Submissions, res.Agencies)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Contributors, "contributors", 5, "number of contributors")
	cmd.Flags().IntVar(&opts.PerContributor, "per-contributor", 4, "submissions per contributor")
	cmd.Flags().StringSliceVar(&opts.Categories, "categories", nil, "categories to draw from")
	cmd.Flags().StringSliceVar(&opts.Agencies, "agencies", nil, "agency ids to create")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed; 0 uses the clock")
	return cmd
}
