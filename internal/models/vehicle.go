package models

import "time"

// 动力类型
const (
	PowerFuel     = "fuel"
	PowerElectric = "electric"
	PowerHybrid   = "hybrid"
)

// Vehicle 车辆信息
type Vehicle struct {
	ID             int64     `json:"id" db:"id"`
	PlateNumber    string    `json:"plate_number" db:"plate_number"`
	Brand          string    `json:"brand" db:"brand"`
	Model          string    `json:"model" db:"model"`
	PowerType      string    `json:"power_type" db:"power_type"`
	CurrentMileage int64     `json:"current_mileage" db:"current_mileage"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ValidPowerType 是否为合法的动力类型
func ValidPowerType(p string) bool {
	switch p {
	case PowerFuel, PowerElectric, PowerHybrid:
		return true
	}
	return false
}
