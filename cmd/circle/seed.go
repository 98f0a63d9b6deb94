// ABOUTME: Loads a YAML fixture into the postgres backend.
// ABOUTME: Fixture recommendations go to redis when one is configured.
package main

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/storage/memory"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load a fixture into the postgres backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

var seedRecsTTL time.Duration

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().DurationVar(&seedRecsTTL, "recs-ttl", 24*time.Hour, "Lifetime of seeded recommendations")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if globalBackend.postgres == nil {
		return fmt.Errorf("seed needs the postgres backend (got %s)", globalBackend.kind)
	}
	f, err := memory.LoadFixture(args[0])
	if err != nil {
		return err
	}
	if err := globalBackend.postgres.Seed(ctx, f); err != nil {
		return err
	}

	if len(f.Recommendations) > 0 {
		if globalBackend.recs == nil {
			glog.Warningf("fixture has recommendations but no redis is configured; skipping them")
		} else {
			for userID, ids := range f.Recommendations {
				if err := globalBackend.recs.Set(ctx, userID, ids, seedRecsTTL); err != nil {
					return fmt.Errorf("failed to seed recommendations for %s: %w", userID, err)
				}
			}
		}
	}

	fmt.Printf("Seeded %d profiles, %d interests and %d posts.\n", len(f.Profiles), len(f.Interests), len(f.Posts))
	return nil
}
