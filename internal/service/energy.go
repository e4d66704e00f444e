package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carnote/internal/consumption"
	"github.com/langchou/carnote/internal/lock"
	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/internal/store"
	"github.com/langchou/carnote/pkg/ws"
)

// Notifier 重算结果推送
type Notifier interface {
	Publish(vehicleID int64, msgType string, data any)
}

// RecalculatedEvent 推送给客户端的重算结果
type RecalculatedEvent struct {
	VehicleID int64                 `json:"vehicle_id"`
	Trigger   string                `json:"trigger"`
	Derived   []consumption.Derived `json:"derived"`
}

// 触发重算的原因
const (
	TriggerCreate = "create"
	TriggerUpdate = "update"
	TriggerDelete = "delete"
	TriggerManual = "manual"
)

// EnergyService 能耗记录服务：记录变更与重算在同一把车辆锁、同一个事务内完成
type EnergyService struct {
	store    store.Store
	locker   lock.Locker
	engine   *consumption.Engine
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewEnergyService 创建能耗记录服务，notifier 可为 nil
func NewEnergyService(
	st store.Store,
	locker lock.Locker,
	engine *consumption.Engine,
	notifier Notifier,
	logger *zap.Logger,
) *EnergyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnergyService{
		store:    st,
		locker:   locker,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Create 新增记录并重算该车辆
func (s *EnergyService) Create(ctx context.Context, l *models.EnergyLog) (*models.EnergyLog, error) {
	if err := validateEnergyLog(l); err != nil {
		return nil, err
	}

	var created *models.EnergyLog
	err := s.mutate(ctx, l.VehicleID, TriggerCreate, func(tx *txScope) error {
		if _, err := tx.Vehicles().GetByID(ctx, l.VehicleID); err != nil {
			return mapStoreErr(err)
		}
		l.MileageDiff = nil
		l.ConsumptionPer100km = nil
		if err := tx.EnergyLogs().Create(ctx, l); err != nil {
			return fmt.Errorf("create energy log: %w", err)
		}
		if err := tx.Vehicles().RaiseMileage(ctx, l.VehicleID, l.Mileage); err != nil {
			return err
		}
		return s.recalculate(ctx, tx, l.VehicleID, func() (err error) {
			created, err = tx.EnergyLogs().GetByID(ctx, l.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update 修改记录的用户字段并重算。记录所属车辆不可变更。
func (s *EnergyService) Update(ctx context.Context, id int64, l *models.EnergyLog) (*models.EnergyLog, error) {
	existing, err := s.store.EnergyLogs().GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if l.VehicleID == 0 {
		l.VehicleID = existing.VehicleID
	}
	if l.VehicleID != existing.VehicleID {
		return nil, fmt.Errorf("update energy log %d: %w", id, ErrVehicleMismatch)
	}
	if err := validateEnergyLog(l); err != nil {
		return nil, err
	}
	l.ID = id

	var updated *models.EnergyLog
	err = s.mutate(ctx, existing.VehicleID, TriggerUpdate, func(tx *txScope) error {
		// 加锁前读取的记录可能已被删除
		current, err := tx.EnergyLogs().GetByID(ctx, id)
		if err != nil {
			return mapStoreErr(err)
		}
		if current.VehicleID != existing.VehicleID {
			return fmt.Errorf("update energy log %d: %w", id, ErrVehicleMismatch)
		}
		if err := tx.EnergyLogs().Update(ctx, l); err != nil {
			return mapStoreErr(err)
		}
		if err := tx.Vehicles().RaiseMileage(ctx, l.VehicleID, l.Mileage); err != nil {
			return err
		}
		return s.recalculate(ctx, tx, l.VehicleID, func() (err error) {
			updated, err = tx.EnergyLogs().GetByID(ctx, id)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete 删除记录并重算剩余记录
func (s *EnergyService) Delete(ctx context.Context, id int64) error {
	existing, err := s.store.EnergyLogs().GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}

	return s.mutate(ctx, existing.VehicleID, TriggerDelete, func(tx *txScope) error {
		if err := tx.EnergyLogs().Delete(ctx, id); err != nil {
			return mapStoreErr(err)
		}
		return s.recalculate(ctx, tx, existing.VehicleID, nil)
	})
}

// Get 获取单条记录
func (s *EnergyService) Get(ctx context.Context, id int64) (*models.EnergyLog, error) {
	l, err := s.store.EnergyLogs().GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return l, nil
}

// List 分页查询，返回当前页与满足条件的总数
func (s *EnergyService) List(ctx context.Context, f models.EnergyLogFilter) ([]*models.EnergyLog, int64, error) {
	logs, err := s.store.EnergyLogs().List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.EnergyLogs().Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Recalculate 单独重算一辆车，可重复调用
func (s *EnergyService) Recalculate(ctx context.Context, vehicleID int64) error {
	return s.mutate(ctx, vehicleID, TriggerManual, func(tx *txScope) error {
		if _, err := tx.Vehicles().GetByID(ctx, vehicleID); err != nil {
			return mapStoreErr(err)
		}
		return s.recalculate(ctx, tx, vehicleID, nil)
	})
}

// RecalculateAll 依次重算所有车辆，单车失败不影响其他车辆
func (s *EnergyService) RecalculateAll(ctx context.Context) error {
	vehicles, err := s.store.Vehicles().List(ctx)
	if err != nil {
		return fmt.Errorf("list vehicles: %w", err)
	}

	start := time.Now()
	var errs []error
	for _, v := range vehicles {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Recalculate(ctx, v.ID); err != nil {
			s.logger.Error("Failed to recalculate vehicle",
				zap.Int64("vehicle_id", v.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("vehicle %d: %w", v.ID, err))
			continue
		}
		s.logger.Info("Vehicle recalculated", zap.Int64("vehicle_id", v.ID))
	}

	s.logger.Info("Recalculation of all vehicles finished",
		zap.Int("vehicles", len(vehicles)),
		zap.Int("failed", len(errs)),
		zap.Duration("elapsed", time.Since(start)))
	return errors.Join(errs...)
}

// mutate 在车辆锁与事务内执行 fn，提交后推送重算结果
func (s *EnergyService) mutate(ctx context.Context, vehicleID int64, trigger string, fn func(tx *txScope) error) error {
	unlock, err := s.locker.Lock(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("lock vehicle %d: %w", vehicleID, err)
	}
	defer unlock()

	scope := &txScope{}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		scope.Tx = tx
		return fn(scope)
	})
	if err != nil {
		return err
	}
	derived := scope.derived

	s.logger.Debug("Energy logs recalculated",
		zap.Int64("vehicle_id", vehicleID),
		zap.String("trigger", trigger),
		zap.Int("events", len(derived)))

	if s.notifier != nil {
		s.notifier.Publish(vehicleID, ws.MsgTypeRecalculated, RecalculatedEvent{
			VehicleID: vehicleID,
			Trigger:   trigger,
			Derived:   derived,
		})
	}
	return nil
}

// recalculate 在事务内重算并在成功后执行 after（读取最新记录）
func (s *EnergyService) recalculate(ctx context.Context, tx *txScope, vehicleID int64, after func() error) error {
	res, err := s.engine.Recalculate(ctx, tx.EnergyLogs(), vehicleID)
	if err != nil {
		return fmt.Errorf("recalculate vehicle %d: %w", vehicleID, err)
	}
	tx.derived = res.Derived
	if after != nil {
		return after()
	}
	return nil
}

// txScope 事务内的仓库，附带最后一次重算的结果，用于提交后推送
type txScope struct {
	store.Tx
	derived []consumption.Derived
}

func validateEnergyLog(l *models.EnergyLog) error {
	verr := &ValidationError{}
	if l.VehicleID <= 0 {
		verr.add("vehicle_id is required")
	}
	if l.LogDate.IsZero() {
		verr.add("log_date is required")
	}
	if l.Mileage < 0 {
		verr.add("mileage must not be negative")
	}
	if !(l.Amount > 0) {
		verr.add("amount must be positive")
	}
	if !l.EnergyType.Valid() {
		verr.add(fmt.Sprintf("energy_type must be one of fuel, electric (got %d)", uint8(l.EnergyType)))
	}
	return verr.orNil()
}
