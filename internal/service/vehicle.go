package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/pkg/ws"
)

// CreateVehicle 创建车辆
func (s *EnergyService) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	if err := validateVehicle(v); err != nil {
		return err
	}

	if err := s.store.Vehicles().Create(ctx, v); err != nil {
		return fmt.Errorf("create vehicle: %w", mapStoreErr(err))
	}
	s.logger.Info("Vehicle created",
		zap.Int64("vehicle_id", v.ID),
		zap.String("plate_number", v.PlateNumber))
	return nil
}

// UpdateVehicle 修改车辆信息。与能耗记录的变更共用车辆锁，
// 避免与 RaiseMileage 交错覆盖当前里程。
func (s *EnergyService) UpdateVehicle(ctx context.Context, id int64, v *models.Vehicle) (*models.Vehicle, error) {
	if err := validateVehicle(v); err != nil {
		return nil, err
	}
	v.ID = id

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock vehicle %d: %w", id, err)
	}
	defer unlock()

	if err := s.store.Vehicles().Update(ctx, v); err != nil {
		return nil, fmt.Errorf("update vehicle: %w", mapStoreErr(err))
	}
	s.logger.Info("Vehicle updated",
		zap.Int64("vehicle_id", v.ID),
		zap.String("plate_number", v.PlateNumber))
	return v, nil
}

// DeleteVehicle 删除车辆及其全部能耗记录
func (s *EnergyService) DeleteVehicle(ctx context.Context, id int64) error {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock vehicle %d: %w", id, err)
	}
	defer unlock()

	if err := s.store.Vehicles().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete vehicle: %w", mapStoreErr(err))
	}
	s.logger.Info("Vehicle deleted", zap.Int64("vehicle_id", id))

	if s.notifier != nil {
		s.notifier.Publish(id, ws.MsgTypeVehicleDeleted, map[string]int64{"vehicle_id": id})
	}
	return nil
}

// GetVehicle 获取车辆
func (s *EnergyService) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, err := s.store.Vehicles().GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return v, nil
}

// ListVehicles 获取所有车辆
func (s *EnergyService) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	return s.store.Vehicles().List(ctx)
}

func validateVehicle(v *models.Vehicle) error {
	v.PlateNumber = strings.TrimSpace(v.PlateNumber)

	verr := &ValidationError{}
	if v.PlateNumber == "" {
		verr.add("plate_number is required")
	}
	if !models.ValidPowerType(v.PowerType) {
		verr.add(fmt.Sprintf("power_type must be one of fuel, electric, hybrid (got %q)", v.PowerType))
	}
	if v.CurrentMileage < 0 {
		verr.add("current_mileage must not be negative")
	}
	return verr.orNil()
}
