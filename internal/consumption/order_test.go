package consumption

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(events []Event) []int64 {
	out := make([]int64, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestOrder(t *testing.T) {
	in := []Event{
		fuel(9, 2, 1500, 10, true),
		fuel(4, 1, 1300, 10, true),
		fuel(3, 1, 1300, 10, false), // 日期与里程相同，按 ID 排序
		fuel(5, 1, 1200, 10, false),
		fuel(1, 0, 1000, 10, true),
		electric(2, 2, 1400, 10, true),
	}

	got := Order(in)
	assert.Equal(t, []int64{1, 5, 3, 4, 2, 9}, ids(got))
	assert.Equal(t, []int64{9, 4, 3, 5, 1, 2}, ids(in), "input must not be reordered")
}

func TestOrder_DateBeforeMileage(t *testing.T) {
	// 补录的历史记录里程更大但日期更早，仍按日期排在前面
	got := Order([]Event{
		fuel(1, 5, 1000, 10, true),
		fuel(2, 1, 5000, 10, true),
	})
	assert.Equal(t, []int64{2, 1}, ids(got))
}

func TestOrder_Empty(t *testing.T) {
	assert.Empty(t, Order(nil))
}
