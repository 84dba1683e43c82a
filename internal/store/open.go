package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
)

// OpenRunStore opens the run store selected by cfg.Driver. defaultPath is
// used for sqlite when cfg.Path is empty.
func OpenRunStore(ctx context.Context, cfg config.StoreConfig, defaultPath string, log *logging.Logger) (RunStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = defaultPath
		}
		db, err := Open(path, log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteRunStore(db), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: postgres driver requires a dsn")
		}
		return OpenPostgres(ctx, cfg.DSN, log)
	case "memory":
		return NewMemoryRunStore(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
