package app

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"concierge/internal/config"
	"concierge/internal/db"
	"concierge/internal/engine"
	"concierge/internal/migrate"
)

// Workspace is an opened workspace: migrated database, resolved config and
// an engine bound to both.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open opens the workspace database, applies migrations and loads
// concierge.yml, falling back to defaults when the file is absent.
func Open(dir string, logger *zap.Logger) (*Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg).WithLogger(logger)
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: eng}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
