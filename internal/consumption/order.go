package consumption

import (
	"cmp"
	"slices"
)

// Order 返回按 (日期, 里程, ID) 升序排列的新切片，不修改入参。
// ID 作为最终排序键，保证相同日期与里程的记录也有确定的先后。
func Order(events []Event) []Event {
	ordered := slices.Clone(events)
	slices.SortFunc(ordered, compareEvents)
	return ordered
}

func compareEvents(a, b Event) int {
	if c := a.LogDate.Compare(b.LogDate); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Mileage, b.Mileage); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
