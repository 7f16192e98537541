package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openline-hq/caseguard/internal/access"
	"github.com/openline-hq/caseguard/internal/core/config"
	"github.com/openline-hq/caseguard/internal/core/db"
	"github.com/openline-hq/caseguard/internal/query"
	"github.com/openline-hq/caseguard/internal/server"
	"github.com/openline-hq/caseguard/internal/service"
	"github.com/openline-hq/caseguard/internal/store"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the case API service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Port = port
	}

	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'caseguard migrate' first", s.ID)
		}
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	registry := access.NewRegistry()
	compiler := query.NewCompiler(registry)

	st, err := store.NewStore(database, queries)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	svc, err := service.NewCaseService(registry, compiler, st)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	rules := config.PermissiveRules()
	if cfg.RulesFile != "" {
		rules, err = config.LoadRules(cfg.RulesFile, registry)
		if err != nil {
			return fmt.Errorf("failed to load visibility rules: %w", err)
		}
	}

	handler, err := server.NewHandler(svc, rules)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	httpServer, err := server.NewHTTPServer(cfg, server.NewRouter(cfg, handler, st))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Printf("Starting CaseGuard API v%s on %s:%d", Version, cfg.Host, cfg.Port)
	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		return httpServer.Shutdown(ctx)
	}
}
