package models

import "time"

// EnergyLog 能耗记录（加油 / 充电）
type EnergyLog struct {
	ID               int64      `json:"id" db:"id"`
	VehicleID        int64      `json:"vehicle_id" db:"vehicle_id"`
	LogDate          time.Time  `json:"log_date" db:"log_date"`
	Mileage          int64      `json:"mileage" db:"mileage"` // 里程表读数
	EnergyType       EnergyType `json:"energy_type" db:"energy_type"`
	Amount           float64    `json:"amount" db:"amount"` // 加油量 L / 充电量 kWh
	Cost             *float64   `json:"cost,omitempty" db:"cost"`
	UnitPrice        *float64   `json:"unit_price,omitempty" db:"unit_price"`
	FuelGaugeReading *float64   `json:"fuel_gauge_reading,omitempty" db:"fuel_gauge_reading"`
	IsFull           bool       `json:"is_full" db:"is_full"` // 是否加满
	LocationName     *string    `json:"location_name,omitempty" db:"location_name"`
	LocationLat      *float64   `json:"location_lat,omitempty" db:"location_lat"`
	LocationLng      *float64   `json:"location_lng,omitempty" db:"location_lng"`
	Notes            *string    `json:"notes,omitempty" db:"notes"`

	// 由重算引擎维护
	MileageDiff         *int64   `json:"mileage_diff" db:"mileage_diff"`
	ConsumptionPer100km *float64 `json:"consumption_per_100km" db:"consumption_per_100km"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EnergyLogFilter 能耗记录查询条件
type EnergyLogFilter struct {
	VehicleID  *int64
	EnergyType *EnergyType
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}
