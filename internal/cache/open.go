package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// 支持的持久化驱动。
const (
	DriverFS       = "fs"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options 描述如何打开 Storage。
type Options struct {
	Driver      string
	DSN         string
	StoragePath string
}

// OpenStorage 根据驱动选择磁盘或 SQL 实现。
func OpenStorage(ctx context.Context, opts Options) (Storage, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	switch driver {
	case "", DriverFS:
		return NewFileStorage(filepath.Join(opts.StoragePath, "caches"))
	case DriverSQLite:
		dsn := opts.DSN
		if dsn == "" {
			if err := os.MkdirAll(opts.StoragePath, 0o755); err != nil {
				return nil, fmt.Errorf("create storage path: %w", err)
			}
			dsn = DefaultSQLiteDSN(opts.StoragePath)
		}
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		return newSQLStorageOrClose(ctx, bun.NewDB(sqldb, sqlitedialect.New()))
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		sqldb, err := sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return newSQLStorageOrClose(ctx, bun.NewDB(sqldb, pgdialect.New()))
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", opts.Driver)
	}
}

// DefaultSQLiteDSN 返回 StoragePath 下的默认数据库文件。
func DefaultSQLiteDSN(storagePath string) string {
	return "file:" + filepath.Join(storagePath, "lazier-docs.db") + "?_busy_timeout=5000"
}

func newSQLStorageOrClose(ctx context.Context, db *bun.DB) (Storage, error) {
	storage, err := NewSQLStorage(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage, nil
}
