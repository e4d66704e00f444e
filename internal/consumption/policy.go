package consumption

import "fmt"

// RegressionPolicy 决定本次加满里程小于上次加满里程时的百公里消耗。
// 入参为周期里程（负数）与周期内总加注量。
type RegressionPolicy func(distance int64, consumed float64) *float64

// RegressionNull 里程倒退时不计算消耗（默认）
func RegressionNull(int64, float64) *float64 {
	return nil
}

// RegressionZero 里程倒退时消耗记为 0
func RegressionZero(int64, float64) *float64 {
	zero := 0.0
	return &zero
}

// ParseRegressionPolicy 按名称选择策略: "null" 或 "zero"
func ParseRegressionPolicy(name string) (RegressionPolicy, error) {
	switch name {
	case "", "null":
		return RegressionNull, nil
	case "zero":
		return RegressionZero, nil
	default:
		return nil, fmt.Errorf("unknown regression policy %q", name)
	}
}
