package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/carnote/internal/store"
)

// Store PostgreSQL 存储实现
type Store struct {
	db         *DB
	vehicles   *VehicleRepository
	energyLogs *EnergyLogRepository
}

var _ store.Store = (*Store)(nil)

// NewStore 基于连接池创建存储
func NewStore(db *DB) *Store {
	return &Store{
		db:         db,
		vehicles:   NewVehicleRepository(db),
		energyLogs: NewEnergyLogRepository(db),
	}
}

// Vehicles 车辆仓库
func (s *Store) Vehicles() store.Vehicles { return s.vehicles }

// EnergyLogs 能耗记录仓库
func (s *Store) EnergyLogs() store.EnergyLogs { return s.energyLogs }

// InTx 在事务中执行 fn。仓库内部再开事务时退化为 savepoint。
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		return fn(txRepos{
			vehicles:   &VehicleRepository{q: tx},
			energyLogs: &EnergyLogRepository{q: tx},
		})
	})
}

// Close 关闭连接池
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

type txRepos struct {
	vehicles   *VehicleRepository
	energyLogs *EnergyLogRepository
}

func (t txRepos) Vehicles() store.Vehicles     { return t.vehicles }
func (t txRepos) EnergyLogs() store.EnergyLogs { return t.energyLogs }
