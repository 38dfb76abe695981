package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"escra/internal/config"
	"escra/internal/db"
	"escra/internal/engine"
	"escra/internal/engine/auth"
	"escra/internal/migrate"
)

// Options select the workspace and the session user for a CLI or server run.
type Options struct {
	Workspace string
	// User overrides user.name from escra.yml when set.
	User   string
	Logger *zap.Logger
}

// Runtime is an opened workspace: migrated database, loaded config and the engine over both.
type Runtime struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares the workspace, migrates the database and loads escra.yml,
// falling back to defaults when the file is absent.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := config.LoadOrDefault(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if user := strings.TrimSpace(opts.User); user != "" {
		cfg.User.Name = user
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("workspace ready", zap.String("db", db.Path(opts.Workspace)), zap.Int("schema", version))
	return &Runtime{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg, log),
	}, nil
}

// Actor returns the session user, or an error telling how to set one.
func (r *Runtime) Actor() (string, error) {
	if name := strings.TrimSpace(r.Config.User.Name); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("no current user; set user.name in %s or pass --user", config.Path("<workspace>"))
}

// Caller returns the session user with the role set by user.role, if any.
// An empty role is resolved from the stored assignments by the engine.
func (r *Runtime) Caller() (auth.Actor, error) {
	name, err := r.Actor()
	if err != nil {
		return auth.Actor{}, err
	}
	return auth.Actor{ID: name, Role: r.Config.User.Role}, nil
}

func (r *Runtime) Close() error {
	return r.DB.Close()
}
