package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tasksms/internal/config"
	"tasksms/internal/db"
	"tasksms/internal/engine"
	"tasksms/internal/migrate"
)

// Runtime is an opened database with its schema applied and an engine bound to it.
type Runtime struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Logger *slog.Logger
}

func (rt *Runtime) Close() error {
	if rt == nil || rt.DB == nil {
		return nil
	}
	return rt.DB.Close()
}

// Open connects to the configured database, migrates it and optionally seeds demo data.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := cfg.DBConfig()
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	version, err := migrate.Migrate(conn, dbCfg.Driver)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("schema ready", slog.String("driver", dbCfg.Driver), slog.Int("version", version))

	eng := engine.New(conn, dbCfg.Driver)
	eng.Logger = logger
	rt := &Runtime{Config: cfg, DB: conn, Engine: eng, Logger: logger}
	if cfg.Demo.Seed {
		if _, err := SeedDemo(ctx, eng, logger); err != nil {
			conn.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	return rt, nil
}

// NewLogger builds the process logger from the log config section.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
