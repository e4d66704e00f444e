package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// ErrInvalidEnergyType 未知的能耗类型
var ErrInvalidEnergyType = errors.New("invalid energy type")

// EnergyType 能耗类型（油 / 电）
type EnergyType uint8

const (
	EnergyFuel EnergyType = iota
	EnergyElectric

	numEnergyTypes
)

// NumEnergyTypes 能耗类型数量，用于按类型分配的定长数组
const NumEnergyTypes = int(numEnergyTypes)

var energyTypeNames = [numEnergyTypes]string{
	EnergyFuel:     "fuel",
	EnergyElectric: "electric",
}

var energyTypeUnits = [numEnergyTypes]string{
	EnergyFuel:     "L",
	EnergyElectric: "kWh",
}

// EnergyTypes 返回全部能耗类型
func EnergyTypes() []EnergyType {
	types := make([]EnergyType, 0, numEnergyTypes)
	for t := EnergyType(0); t < numEnergyTypes; t++ {
		types = append(types, t)
	}
	return types
}

// ParseEnergyType 解析能耗类型字符串
func ParseEnergyType(s string) (EnergyType, error) {
	for i, name := range energyTypeNames {
		if name == s {
			return EnergyType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidEnergyType, s)
}

// Valid 是否为已定义的能耗类型
func (t EnergyType) Valid() bool {
	return t < numEnergyTypes
}

func (t EnergyType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("EnergyType(%d)", uint8(t))
	}
	return energyTypeNames[t]
}

// Unit 计量单位
func (t EnergyType) Unit() string {
	if !t.Valid() {
		return ""
	}
	return energyTypeUnits[t]
}

// MarshalText 实现 encoding.TextMarshaler
func (t EnergyType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEnergyType, uint8(t))
	}
	return []byte(energyTypeNames[t]), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (t *EnergyType) UnmarshalText(text []byte) error {
	parsed, err := ParseEnergyType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value 实现 driver.Valuer 接口，以文本形式存储
func (t EnergyType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEnergyType, uint8(t))
	}
	return energyTypeNames[t], nil
}

// Scan 实现 sql.Scanner 接口
func (t *EnergyType) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	default:
		return fmt.Errorf("scan energy type: unsupported type %T", value)
	}
}
