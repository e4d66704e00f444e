package consumption

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/carnote/internal/models"
)

var day0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func fuel(id int64, day int, mileage int64, amount float64, full bool) Event {
	return Event{ID: id, VehicleID: 1, LogDate: day0.AddDate(0, 0, day), Mileage: mileage, EnergyType: models.EnergyFuel, Amount: amount, IsFull: full}
}

func electric(id int64, day int, mileage int64, amount float64, full bool) Event {
	e := fuel(id, day, mileage, amount, full)
	e.EnergyType = models.EnergyElectric
	return e
}

func byID(derived []Derived) map[int64]Derived {
	m := make(map[int64]Derived, len(derived))
	for _, d := range derived {
		m[d.ID] = d
	}
	return m
}

func compute(t *testing.T, e *Engine, events ...Event) map[int64]Derived {
	t.Helper()
	derived, err := e.Compute(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, derived, len(events))
	return byID(derived)
}

type memStore struct {
	events     []Event
	persisted  [][]Derived
	listErr    error
	persistErr error
}

func (s *memStore) ListEvents(_ context.Context, _ int64) ([]Event, error) {
	return s.events, s.listErr
}

func (s *memStore) PersistDerived(_ context.Context, _ int64, derived []Derived) error {
	if s.persistErr != nil {
		return s.persistErr
	}
	s.persisted = append(s.persisted, derived)
	return nil
}

func TestCompute_FullToFullScenario(t *testing.T) {
	engine := NewEngine(nil)
	e1 := fuel(1, 0, 1000, 40, true)
	e2 := fuel(2, 1, 1300, 20, false)
	e3 := fuel(3, 2, 1500, 25, true)

	got := compute(t, engine, e1, e2, e3)
	assert.Nil(t, got[1].MileageDiff)
	assert.Nil(t, got[1].Consumption)
	assert.EqualValues(t, 300, *got[2].MileageDiff)
	assert.Nil(t, got[2].Consumption)
	assert.EqualValues(t, 200, *got[3].MileageDiff)
	require.NotNil(t, got[3].Consumption)
	assert.Equal(t, 9.0, *got[3].Consumption)

	// 删除中间的未加满记录后重算
	got = compute(t, engine, e1, e3)
	assert.EqualValues(t, 500, *got[3].MileageDiff)
	require.NotNil(t, got[3].Consumption)
	assert.Equal(t, 5.0, *got[3].Consumption)
}

func TestCompute_FirstFullFillHasNoConsumption(t *testing.T) {
	got := compute(t, NewEngine(nil),
		fuel(1, 0, 500, 12, false),
		fuel(2, 1, 800, 18, false),
		fuel(3, 2, 1000, 45, true),
		electric(4, 3, 1100, 30, true),
	)
	assert.Nil(t, got[3].Consumption)
	assert.Nil(t, got[4].Consumption)
}

func TestCompute_CarrierIsolation(t *testing.T) {
	fuelOnly := []Event{
		fuel(1, 0, 1000, 40, true),
		fuel(3, 2, 1250, 10, false),
		fuel(5, 4, 1600, 22.5, true),
		fuel(7, 6, 2100, 31, true),
	}
	electricOnly := []Event{
		electric(2, 1, 1100, 20, true),
		electric(4, 3, 1400, 7.5, false),
		electric(6, 5, 1900, 25, true),
	}
	engine := NewEngine(nil)

	mixed := compute(t, engine, append(append([]Event{}, fuelOnly...), electricOnly...)...)
	onlyFuel := compute(t, engine, fuelOnly...)
	onlyElectric := compute(t, engine, electricOnly...)

	for _, e := range fuelOnly {
		assert.Equal(t, onlyFuel[e.ID].Consumption, mixed[e.ID].Consumption, "fuel event %d", e.ID)
	}
	for _, e := range electricOnly {
		assert.Equal(t, onlyElectric[e.ID].Consumption, mixed[e.ID].Consumption, "electric event %d", e.ID)
	}

	// 里程差使用整车时间线，而不是按能耗类型
	assert.EqualValues(t, 100, *mixed[2].MileageDiff)
	assert.EqualValues(t, 150, *mixed[3].MileageDiff)
}

func TestCompute_DeletingFullFillMergesCycles(t *testing.T) {
	engine := NewEngine(nil)
	f1 := fuel(1, 0, 1000, 40, true)
	p1 := fuel(2, 1, 1200, 10, false)
	f2 := fuel(3, 2, 1400, 30, true)
	p2 := fuel(4, 3, 1600, 15, false)
	f3 := fuel(5, 4, 1800, 20, true)

	got := compute(t, engine, f1, p1, f2, p2, f3)
	assert.Equal(t, 10.0, *got[3].Consumption)
	assert.Equal(t, 8.75, *got[5].Consumption)

	got = compute(t, engine, f1, p1, p2, f3)
	// (10 + 15 + 20) / 800 * 100 = 5.625
	assert.Equal(t, 5.63, *got[5].Consumption)
	assert.Nil(t, got[2].Consumption)
	assert.Nil(t, got[4].Consumption)
}

func TestCompute_OdometerRegression(t *testing.T) {
	events := []Event{
		fuel(1, 0, 1000, 40, true),
		fuel(2, 1, 900, 10, false),
		fuel(3, 2, 950, 30, true),
	}

	got := compute(t, NewEngine(nil), events...)
	assert.EqualValues(t, 0, *got[2].MileageDiff)
	assert.EqualValues(t, 50, *got[3].MileageDiff)
	assert.Nil(t, got[3].Consumption)

	got = compute(t, NewEngine(nil, WithRegressionPolicy(RegressionZero)), events...)
	require.NotNil(t, got[3].Consumption)
	assert.Equal(t, 0.0, *got[3].Consumption)
}

func TestCompute_RegressionResetsBaseline(t *testing.T) {
	got := compute(t, NewEngine(nil),
		fuel(1, 0, 1000, 40, true),
		fuel(2, 1, 950, 30, true),
		fuel(3, 2, 1450, 35, true),
	)
	assert.Nil(t, got[2].Consumption)
	assert.Equal(t, 7.0, *got[3].Consumption)
}

func TestCompute_ZeroDistanceCycle(t *testing.T) {
	got := compute(t, NewEngine(nil),
		fuel(1, 0, 1000, 40, true),
		fuel(2, 0, 1000, 3, true),
	)
	require.NotNil(t, got[2].Consumption)
	assert.Equal(t, 0.0, *got[2].Consumption)
	assert.EqualValues(t, 0, *got[2].MileageDiff)
}

func TestCompute_Rounding(t *testing.T) {
	got := compute(t, NewEngine(nil),
		fuel(1, 0, 1000, 40, true),
		fuel(2, 1, 1700, 33.33, true),
	)
	assert.Equal(t, 4.76, *got[2].Consumption)
}

func TestCompute_InvalidEnergyType(t *testing.T) {
	e := fuel(1, 0, 1000, 40, true)
	e.EnergyType = models.EnergyType(42)

	_, err := NewEngine(nil).Compute(context.Background(), []Event{e})
	assert.ErrorIs(t, err, models.ErrInvalidEnergyType)
}

func TestCompute_Empty(t *testing.T) {
	derived, err := NewEngine(nil).Compute(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, derived)
}

func TestRecalculate_Idempotent(t *testing.T) {
	store := &memStore{events: []Event{
		fuel(3, 2, 1500, 25, true),
		electric(4, 2, 1500, 11, true),
		fuel(1, 0, 1000, 40, true),
		fuel(2, 1, 1300, 20, false),
	}}
	engine := NewEngine(nil)

	_, err := engine.Recalculate(context.Background(), store, 1)
	require.NoError(t, err)
	_, err = engine.Recalculate(context.Background(), store, 1)
	require.NoError(t, err)

	require.Len(t, store.persisted, 2)
	first, err := json.Marshal(store.persisted[0])
	require.NoError(t, err)
	second, err := json.Marshal(store.persisted[1])
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRecalculate_EmptyIsNoop(t *testing.T) {
	store := &memStore{}
	res, err := NewEngine(nil).Recalculate(context.Background(), store, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, res.VehicleID)
	assert.Empty(t, store.persisted)
}

func TestRecalculate_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := NewEngine(nil).Recalculate(context.Background(), &memStore{listErr: boom}, 1)
	assert.ErrorIs(t, err, boom)

	store := &memStore{events: []Event{fuel(1, 0, 1000, 40, true)}, persistErr: boom}
	_, err = NewEngine(nil).Recalculate(context.Background(), store, 1)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "persist derived")
}

type recordingObserver struct {
	events int
	err    error
	calls  int
}

func (o *recordingObserver) ObserveRecalculation(_ int64, events int, _ time.Duration, err error) {
	o.calls++
	o.events = events
	o.err = err
}

func TestRecalculate_NotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	store := &memStore{events: []Event{fuel(1, 0, 1000, 40, true), fuel(2, 1, 1400, 30, true)}}

	_, err := NewEngine(nil, WithObserver(obs)).Recalculate(context.Background(), store, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, 2, obs.events)
	assert.NoError(t, obs.err)
}

func TestCompute_HybridTimelineGolden(t *testing.T) {
	events := []Event{
		fuel(8, 6, 10750, 5, true),
		electric(7, 5, 10800, 2, true),
		fuel(6, 5, 10800, 30, true),
		electric(5, 4, 10600, 10, true),
		fuel(4, 3, 10450, 15, false),
		electric(3, 2, 10300, 6, false),
		electric(2, 1, 10120, 8.5, true),
		fuel(1, 0, 10000, 40, true),
	}

	derived, err := NewEngine(nil).Compute(context.Background(), events)
	require.NoError(t, err)

	out, err := json.MarshalIndent(derived, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "hybrid_timeline", append(out, '\n'))
}
