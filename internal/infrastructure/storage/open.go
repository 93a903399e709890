package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewsDesk/internal/config"
	"NewsDesk/internal/ports"
)

// Open builds the configured article store. SQL backends are migrated before use.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (ports.ArticleStore, error) {
	switch cfg.Driver {
	case config.StorageSQL:
		dialect, dsn, err := ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}

		db, err := OpenSQL(ctx, dialect, dsn)
		if err != nil {
			return nil, err
		}

		version, err := RunMigrations(db, dialect)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("sql store ready", "dialect", dialect, "schema_version", version)

		return NewSQLStore(db, dialect), nil

	case config.StorageSheets:
		values, err := NewGoogleValues(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, err
		}
		if err := values.EnsureSheet(ctx, cfg.Sheets.Worksheet); err != nil {
			return nil, err
		}

		store, err := NewSheetsStore(ctx, values, cfg.Sheets.Worksheet)
		if err != nil {
			return nil, err
		}
		store.WithLogger(logger)
		logger.Info("sheets store ready", "worksheet", cfg.Sheets.Worksheet)

		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenSQL opens and pings a database handle for the dialect.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	var driverName string
	switch dialect {
	case DialectPostgres:
		driverName = "postgres"
	case DialectSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// One connection: writers serialise anyway and ":memory:" databases are per-connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	return db, nil
}

// ParseDSN maps a connection URL onto a dialect. SQLite URLs follow the
// sqlite:///relative/path and sqlite:////absolute/path convention.
func ParseDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite:///"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite:///"), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "file:"):
		return DialectSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q", dsn)
	}
}
