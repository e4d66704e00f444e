package service

import (
	"context"
	"time"

	"github.com/langchou/carnote/internal/models"
)

// QuickEntry 快捷记录：只填里程与加注量，其余字段由车辆推断
type QuickEntry struct {
	VehicleID    int64
	Mileage      int64
	Amount       float64
	Cost         *float64
	IsFull       bool
	LocationName *string
	LocationLat  *float64
	LocationLng  *float64
}

// QuickAdd 以当前时间新增一条记录。纯电车记为充电，燃油与混动车记为加油，
// 给出费用时单价为 cost / amount。
func (s *EnergyService) QuickAdd(ctx context.Context, e QuickEntry) (*models.EnergyLog, error) {
	verr := &ValidationError{}
	if e.VehicleID <= 0 {
		verr.add("vehicle_id is required")
	}
	if !(e.Amount > 0) {
		verr.add("amount must be positive")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	v, err := s.store.Vehicles().GetByID(ctx, e.VehicleID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	l := &models.EnergyLog{
		VehicleID:    e.VehicleID,
		LogDate:      s.now().UTC().Truncate(time.Second),
		Mileage:      e.Mileage,
		EnergyType:   quickEnergyType(v.PowerType),
		Amount:       e.Amount,
		Cost:         e.Cost,
		IsFull:       e.IsFull,
		LocationName: e.LocationName,
		LocationLat:  e.LocationLat,
		LocationLng:  e.LocationLng,
	}
	if e.Cost != nil {
		price := *e.Cost / e.Amount
		l.UnitPrice = &price
	}
	return s.Create(ctx, l)
}

func quickEnergyType(powerType string) models.EnergyType {
	if powerType == models.PowerElectric {
		return models.EnergyElectric
	}
	return models.EnergyFuel
}
