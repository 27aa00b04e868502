package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasksms/internal/app"
	"tasksms/internal/config"
	"tasksms/internal/db"
	"tasksms/internal/engine"
	"tasksms/internal/migrate"
	"tasksms/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tasksms",
	Short: "Task management service",
	Long: `tasksms stores tasks with tag/group lookup values and an audit history.
- serve: run the REST API (JSON Patch updates, SUMMARY/DETAILS/DEEP projections).
- migrate: apply the embedded schema to the configured database.
- seed: insert the demo tasks into an empty database.
- task: create, list, inspect, patch and delete tasks locally.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKSMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", config.Path("."), "config file (optional)")
	pf.Bool("json", false, "output JSON")
	pf.String("actor-id", "cli", "actor recorded in created_by/modified_by")
	pf.String("db-driver", "", "database driver: sqlite or postgres")
	pf.String("db-path", "", "sqlite database file (default .tasksms/tasks.db; :memory: only with serve)")
	pf.String("db-dsn", "", "postgres connection string")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	for _, name := range []string{"config", "json", "actor-id", "db-driver", "db-path", "db-dsn", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(taskCmd())
}

// loadConfig reads the config file and applies flag/env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	overrideString(&cfg.Database.Driver, "db-driver")
	overrideString(&cfg.Database.Path, "db-path")
	overrideString(&cfg.Database.DSN, "db-dsn")
	overrideString(&cfg.Log.Level, "log-level")
	overrideString(&cfg.Log.Format, "log-format")
	overrideString(&cfg.Server.Addr, "addr")
	overrideString(&cfg.Server.BasePath, "base-path")
	overrideString(&cfg.Auth.JWTSecret, "jwt-secret")
	if viper.IsSet("auth-required") {
		cfg.Auth.Required = viper.GetBool("auth-required")
	}
	if viper.IsSet("seed") {
		cfg.Demo.Seed = viper.GetBool("seed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := viper.GetString(key); v != "" {
		*dst = v
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	return app.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			slog.SetDefault(logger)
			rt, err := app.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: cfg.Server.BasePath,
				Logger:   logger,
				Auth: server.AuthConfig{
					JWTSecret:    cfg.Auth.JWTSecret,
					Required:     cfg.Auth.Required,
					DefaultActor: cfg.Auth.DefaultActor,
					Logger:       logger,
				},
			})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go server.NewWebhookDispatcher(rt.Engine.Repo, cfg.Webhooks, logger).Run(ctx)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
				if timeout <= 0 {
					timeout = 10 * time.Second
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("shutdown", slog.String("error", err.Error()))
				}
			}()
			logger.Info("serving task API",
				slog.String("url", fmt.Sprintf("http://%s%s", cfg.Server.Addr, cfg.Server.BasePath)),
				slog.String("docs", "/docs"),
				slog.String("driver", cfg.Database.Driver),
				slog.Int("webhooks", len(cfg.Webhooks)))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	cmd.Flags().String("base-path", "", "API base path (default /api)")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens")
	cmd.Flags().Bool("auth-required", false, "reject requests without a bearer token")
	cmd.Flags().Bool("seed", false, "insert demo tasks when the database is empty")
	for _, name := range []string{"addr", "base-path", "jwt-secret", "auth-required", "seed"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dbCfg := cfg.DBConfig()
			conn, err := db.Open(dbCfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			version, err := migrate.Migrate(conn, dbCfg.Driver)
			if err != nil {
				return err
			}
			return printJSONOrTable(map[string]any{"driver": dbCfg.Driver, "schema_version": version})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo tasks into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := app.SeedDemo(ctx, e, e.Logger)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"created": n})
			})
		},
	}
}

// --- helpers ---

var errMemoryDB = errors.New("an in-memory database does not outlive one command; set --db-path to a file")

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Demo.Seed = false
	if cfg.Database.Driver == db.DriverSQLite && cfg.Database.Path == db.MemoryPath {
		return errMemoryDB
	}
	rt, err := app.Open(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
