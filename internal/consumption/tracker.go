package consumption

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/shopspring/decimal"
)

// 周期跟踪器状态
const (
	phaseAwaitingBaseline = "awaiting_baseline" // 尚未出现加满记录
	phaseCycleOpen        = "cycle_open"        // 已有上次加满作为基准
)

const eventFullFill = "full_fill"

// cycleTracker 单一能耗类型的加满-加满周期跟踪器。
// 每次重算新建，不跨调用复用。
type cycleTracker struct {
	fsm        *fsm.FSM
	baseline   Event
	pending    decimal.Decimal // 上次加满之后未加满记录的累计量
	regression RegressionPolicy
}

func newCycleTracker(regression RegressionPolicy) *cycleTracker {
	if regression == nil {
		regression = RegressionNull
	}
	return &cycleTracker{
		regression: regression,
		fsm: fsm.NewFSM(
			phaseAwaitingBaseline,
			fsm.Events{
				{Name: eventFullFill, Src: []string{phaseAwaitingBaseline, phaseCycleOpen}, Dst: phaseCycleOpen},
			},
			fsm.Callbacks{},
		),
	}
}

// observe 处理时间线上的下一条同类型记录，返回其百公里消耗
func (t *cycleTracker) observe(ctx context.Context, e Event) (*float64, error) {
	if !e.IsFull {
		t.pending = t.pending.Add(decimal.NewFromFloat(e.Amount))
		return nil, nil
	}

	var consumption *float64
	if t.fsm.Is(phaseCycleOpen) {
		consumption = t.closeCycle(e)
	}

	if err := t.fsm.Event(ctx, eventFullFill); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return nil, fmt.Errorf("tracker %s: %w", e.EnergyType, err)
		}
	}
	t.baseline = e
	t.pending = decimal.Zero
	return consumption, nil
}

func (t *cycleTracker) closeCycle(e Event) *float64 {
	distance := e.Mileage - t.baseline.Mileage
	total := t.pending.Add(decimal.NewFromFloat(e.Amount))

	switch {
	case distance > 0:
		v := per100(total, distance)
		return &v
	case distance == 0:
		zero := 0.0
		return &zero
	default:
		consumed, _ := total.Float64()
		return t.regression(distance, consumed)
	}
}
