package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/openline-hq/caseguard/internal/core/config"
	"github.com/openline-hq/caseguard/internal/core/db"
	"github.com/openline-hq/caseguard/internal/metrics"
	"github.com/openline-hq/caseguard/internal/store"
	"github.com/openline-hq/caseguard/internal/transitions"
)

var transitionsCmd = &cobra.Command{
	Use:   "transitions",
	Short: "Run the status transition sweep once",
	Long:  `Advances cases that have dwelt in a status past the configured window, per the transition rules in the config file. Intended to run from cron or a scheduler.`,
	RunE:  runTransitions,
}

func init() {
	rootCmd.AddCommand(transitionsCmd)
}

func runTransitions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Transitions) == 0 {
		return fmt.Errorf("no transition rules configured")
	}

	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	st, err := store.NewStore(database, queries)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	rules := make([]transitions.Rule, 0, len(cfg.Transitions))
	for _, t := range cfg.Transitions {
		rules = append(rules, transitions.Rule{
			From:        t.From,
			To:          t.To,
			Days:        t.AfterDays,
			Hours:       t.AfterHours,
			Description: t.Description,
		})
	}

	job, err := transitions.NewJob(st, rules)
	if err != nil {
		return fmt.Errorf("failed to build transition job: %w", err)
	}

	advanced, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("transition sweep failed: %w", err)
	}

	metrics.AddTransitions(advanced)
	log.Printf("Advanced %d cases", advanced)
	return nil
}
