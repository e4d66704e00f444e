// Package store 定义存储层接口，由 PostgreSQL 与 SQLite 两种实现提供。
package store

import (
	"context"
	"errors"

	"github.com/langchou/carnote/internal/consumption"
	"github.com/langchou/carnote/internal/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrDuplicate 违反唯一约束（如车牌号重复）
	ErrDuplicate = errors.New("duplicate")
)

// Vehicles 车辆仓库
type Vehicles interface {
	Create(ctx context.Context, v *models.Vehicle) error
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
	List(ctx context.Context) ([]*models.Vehicle, error)
	// Update 修改车辆信息，车牌重复时返回 ErrDuplicate
	Update(ctx context.Context, v *models.Vehicle) error
	// Delete 删除车辆及其全部能耗记录
	Delete(ctx context.Context, id int64) error
	// RaiseMileage 仅当 mileage 大于当前里程时更新
	RaiseMileage(ctx context.Context, vehicleID, mileage int64) error
}

// EnergyLogs 能耗记录仓库
type EnergyLogs interface {
	consumption.EventStore

	Create(ctx context.Context, l *models.EnergyLog) error
	GetByID(ctx context.Context, id int64) (*models.EnergyLog, error)
	// Update 更新用户字段，不修改派生字段
	Update(ctx context.Context, l *models.EnergyLog) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f models.EnergyLogFilter) ([]*models.EnergyLog, error)
	Count(ctx context.Context, f models.EnergyLogFilter) (int64, error)
}

// Tx 一组在同一事务（或同一连接池）上工作的仓库
type Tx interface {
	Vehicles() Vehicles
	EnergyLogs() EnergyLogs
}

// Store 存储入口
type Store interface {
	Tx
	// InTx 在事务中执行 fn，fn 返回错误时回滚
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
