package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	webAdapter "projectbooks/internal/adapters/web"
	"projectbooks/internal/ai"
	"projectbooks/internal/app"
	"projectbooks/internal/db"
)

var log zerolog.Logger

func main() {
	_ = godotenv.Load()
	log = zerolog.New(os.Stderr).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:   "app",
		Short: "projectbooks operational CLI",
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()

			var agent ai.AgentService
			if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
				agent = ai.NewAgent(apiKey)
			} else {
				log.Warn().Msg("OPENAI_API_KEY is not set, expense drafting disabled")
			}

			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			handler := webAdapter.NewHandler(app.New(pool, agent), os.Getenv("ALLOWED_ORIGINS"), log)

			log.Info().Str("port", port).Msg("server starting")
			return http.ListenAndServe(":"+port, handler)
		},
	}
}

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations in lexical order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()

			return applyMigrations(ctx, pool, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory containing .sql migration files")
	return cmd
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
		log.Info().Str("file", name).Msg("migration applied")
	}
	return nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert a starter admin user and default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()

			_, err = pool.Exec(ctx, `
				INSERT INTO users (username, email, role, is_active)
				VALUES ('admin', 'admin@example.com', 'admin', true)
				ON CONFLICT (username) DO NOTHING;

				INSERT INTO settings (key, value) VALUES
				('receipt_required_threshold', '100'),
				('default_currency', 'USD'),
				('exchange_rate_multiplier', '1')
				ON CONFLICT (key) DO NOTHING;
			`)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			log.Info().Msg("seed complete")
			return nil
		},
	}
}
