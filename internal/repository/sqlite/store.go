// Package sqlite 基于 SQLite 的存储实现，是默认的单机部署后端。
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/langchou/carnote/internal/store"
)

// dbtx *sql.DB 与 *sql.Tx 的公共子集
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store SQLite 存储
type Store struct {
	db         *sql.DB
	vehicles   *VehicleRepository
	energyLogs *EnergyLogRepository
}

var _ store.Store = (*Store)(nil)

// Open 打开（或创建）数据库文件并应用 schema
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite 只有一个写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		vehicles:   &VehicleRepository{q: db},
		energyLogs: &EnergyLogRepository{q: db, db: db},
	}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	return nil
}

// Migrate 创建表与索引，可重复执行
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}
	return nil
}

// Vehicles 车辆仓库
func (s *Store) Vehicles() store.Vehicles { return s.vehicles }

// EnergyLogs 能耗记录仓库
func (s *Store) EnergyLogs() store.EnergyLogs { return s.energyLogs }

// InTx 在事务中执行 fn，fn 返回错误或 panic 时回滚
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(txRepos{
		vehicles:   &VehicleRepository{q: tx},
		energyLogs: &EnergyLogRepository{q: tx},
	}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

type txRepos struct {
	vehicles   *VehicleRepository
	energyLogs *EnergyLogRepository
}

func (t txRepos) Vehicles() store.Vehicles     { return t.vehicles }
func (t txRepos) EnergyLogs() store.EnergyLogs { return t.energyLogs }

const schema = `
CREATE TABLE IF NOT EXISTS vehicles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    plate_number TEXT NOT NULL UNIQUE,
    brand TEXT,
    model TEXT,
    power_type TEXT NOT NULL CHECK (power_type IN ('fuel', 'electric', 'hybrid')),
    current_mileage INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS energy_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    vehicle_id INTEGER NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
    log_date DATETIME NOT NULL,
    mileage INTEGER NOT NULL CHECK (mileage >= 0),
    energy_type TEXT NOT NULL CHECK (energy_type IN ('fuel', 'electric')),
    amount REAL NOT NULL CHECK (amount > 0),
    cost REAL,
    unit_price REAL,
    fuel_gauge_reading REAL,
    is_full BOOLEAN NOT NULL DEFAULT 0,
    location_name TEXT,
    location_lat REAL,
    location_lng REAL,
    notes TEXT,
    mileage_diff INTEGER,
    consumption_per_100km REAL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_energy_logs_vehicle_id ON energy_logs(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_energy_logs_timeline ON energy_logs(vehicle_id, log_date, mileage, id);
`
