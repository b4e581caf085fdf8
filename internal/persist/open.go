package persist

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

// Options selects and configures a store backend.
type Options struct {
	Driver     string
	StateDir   string
	SQLitePath string
}

// Open constructs the store selected by opts.Driver.
func Open(ctx context.Context, opts Options, logger pslog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverFile:
		return NewFileStoreWithLogger(opts.StateDir, logger)
	case DriverSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.StateDir, "surveyforge.db")
		}
		return NewSQLiteStore(ctx, path, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
