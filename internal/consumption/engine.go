// Package consumption 根据车辆的完整能耗记录重算里程差与百公里消耗。
//
// 每次重算都从存储读取车辆全部记录，按 (日期, 里程, ID) 排序后单次遍历：
// 里程差相对于整车时间线上的前一条记录（跨能耗类型），百公里消耗按能耗类型
// 分别以「加满到加满」为周期计算。结果整体写回，不做增量维护。
package consumption

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carnote/internal/models"
)

// Event 参与重算的能耗记录字段
type Event struct {
	ID         int64
	VehicleID  int64
	LogDate    time.Time
	Mileage    int64
	EnergyType models.EnergyType
	Amount     float64
	IsFull     bool
}

// Derived 重算结果
type Derived struct {
	ID          int64    `json:"id"`
	MileageDiff *int64   `json:"mileage_diff"`
	Consumption *float64 `json:"consumption_per_100km"`
}

// EventStore 重算所需的存储能力
type EventStore interface {
	// ListEvents 返回车辆的全部记录，不区分能耗类型
	ListEvents(ctx context.Context, vehicleID int64) ([]Event, error)
	// PersistDerived 原子地写回派生字段，其余字段不变
	PersistDerived(ctx context.Context, vehicleID int64, derived []Derived) error
}

// Observer 重算结果观测（指标）
type Observer interface {
	ObserveRecalculation(vehicleID int64, events int, elapsed time.Duration, err error)
}

// Result 单次重算的结果
type Result struct {
	VehicleID int64
	Derived   []Derived
}

// Engine 重算引擎
type Engine struct {
	logger     *zap.Logger
	regression RegressionPolicy
	observer   Observer
}

// Option 引擎选项
type Option func(*Engine)

// WithRegressionPolicy 设置里程倒退策略
func WithRegressionPolicy(p RegressionPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.regression = p
		}
	}
}

// WithObserver 设置观测器
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine 创建重算引擎
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:     logger,
		regression: RegressionNull,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute 对一组记录做一次完整遍历，按时间线顺序返回派生字段
func (e *Engine) Compute(ctx context.Context, events []Event) ([]Derived, error) {
	timeline := Order(events)
	derived := make([]Derived, 0, len(timeline))

	var trackers [models.NumEnergyTypes]*cycleTracker
	for i, ev := range timeline {
		d := Derived{ID: ev.ID}

		if i > 0 {
			diff := max(0, ev.Mileage-timeline[i-1].Mileage)
			d.MileageDiff = &diff
		}

		if !ev.EnergyType.Valid() {
			return nil, fmt.Errorf("event %d: %w", ev.ID, models.ErrInvalidEnergyType)
		}
		tracker := trackers[ev.EnergyType]
		if tracker == nil {
			tracker = newCycleTracker(e.regression)
			trackers[ev.EnergyType] = tracker
		}
		consumption, err := tracker.observe(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		d.Consumption = consumption

		derived = append(derived, d)
	}
	return derived, nil
}

// Recalculate 读取车辆全部记录，重算并整体写回。
// 调用方负责鉴权与同一车辆的互斥。
func (e *Engine) Recalculate(ctx context.Context, store EventStore, vehicleID int64) (res Result, err error) {
	start := time.Now()
	count := 0
	defer func() {
		if e.observer != nil {
			e.observer.ObserveRecalculation(vehicleID, count, time.Since(start), err)
		}
	}()

	res.VehicleID = vehicleID

	events, err := store.ListEvents(ctx, vehicleID)
	if err != nil {
		return res, fmt.Errorf("list events: %w", err)
	}
	count = len(events)
	if count == 0 {
		return res, nil
	}

	derived, err := e.Compute(ctx, events)
	if err != nil {
		return res, fmt.Errorf("compute: %w", err)
	}

	if err := store.PersistDerived(ctx, vehicleID, derived); err != nil {
		return res, fmt.Errorf("persist derived: %w", err)
	}

	e.logger.Debug("Recalculated energy logs",
		zap.Int64("vehicle_id", vehicleID),
		zap.Int("events", count),
		zap.Duration("elapsed", time.Since(start)))

	res.Derived = derived
	return res, nil
}
