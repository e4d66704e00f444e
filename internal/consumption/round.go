package consumption

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// per100 计算 total / distance * 100，四舍五入保留两位小数
func per100(total decimal.Decimal, distance int64) float64 {
	v := total.Mul(hundred).Div(decimal.NewFromInt(distance)).Round(2)
	f, _ := v.Float64()
	return f
}
