package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/carnote/internal/consumption"
	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/internal/store"
)

var day0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "carnote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createVehicle(t *testing.T, s *Store, plate string) *models.Vehicle {
	t.Helper()
	v := &models.Vehicle{PlateNumber: plate, Brand: "Toyota", Model: "Corolla", PowerType: models.PowerHybrid}
	require.NoError(t, s.Vehicles().Create(context.Background(), v))
	return v
}

func createLog(t *testing.T, s *Store, vehicleID int64, day int, mileage int64, et models.EnergyType, amount float64, full bool) *models.EnergyLog {
	t.Helper()
	l := &models.EnergyLog{
		VehicleID:  vehicleID,
		LogDate:    day0.AddDate(0, 0, day),
		Mileage:    mileage,
		EnergyType: et,
		Amount:     amount,
		IsFull:     full,
	}
	require.NoError(t, s.EnergyLogs().Create(context.Background(), l))
	return l
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carnote.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestVehicleRepository(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v := createVehicle(t, s, "沪A12345")
	assert.NotZero(t, v.ID)

	got, err := s.Vehicles().GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Toyota", got.Brand)
	assert.Equal(t, models.PowerHybrid, got.PowerType)

	_, err = s.Vehicles().GetByID(ctx, v.ID+1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Vehicles().RaiseMileage(ctx, v.ID, 1200))
	require.NoError(t, s.Vehicles().RaiseMileage(ctx, v.ID, 900))
	got, err = s.Vehicles().GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1200, got.CurrentMileage)

	createVehicle(t, s, "京B00001")
	list, err := s.Vehicles().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestEnergyLogRepository_CRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v := createVehicle(t, s, "沪A12345")

	cost := 300.5
	notes := "中石化"
	l := &models.EnergyLog{
		VehicleID:  v.ID,
		LogDate:    day0,
		Mileage:    1000,
		EnergyType: models.EnergyFuel,
		Amount:     40,
		Cost:       &cost,
		IsFull:     true,
		Notes:      &notes,
	}
	require.NoError(t, s.EnergyLogs().Create(ctx, l))

	got, err := s.EnergyLogs().GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.LogDate.Equal(day0))
	assert.Equal(t, models.EnergyFuel, got.EnergyType)
	require.NotNil(t, got.Cost)
	assert.InDelta(t, cost, *got.Cost, 1e-9)
	assert.Nil(t, got.UnitPrice)
	assert.Nil(t, got.MileageDiff)
	assert.Nil(t, got.ConsumptionPer100km)
	assert.True(t, got.IsFull)

	got.Mileage = 1100
	got.EnergyType = models.EnergyElectric
	got.IsFull = false
	require.NoError(t, s.EnergyLogs().Update(ctx, got))

	got, err = s.EnergyLogs().GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1100, got.Mileage)
	assert.Equal(t, models.EnergyElectric, got.EnergyType)
	assert.False(t, got.IsFull)

	require.NoError(t, s.EnergyLogs().Delete(ctx, l.ID))
	assert.ErrorIs(t, s.EnergyLogs().Delete(ctx, l.ID), store.ErrNotFound)
	_, err = s.EnergyLogs().GetByID(ctx, l.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	missing := &models.EnergyLog{ID: l.ID, LogDate: day0, Mileage: 1, Amount: 1}
	assert.ErrorIs(t, s.EnergyLogs().Update(ctx, missing), store.ErrNotFound)
}

func TestEnergyLogRepository_ListAndCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v1 := createVehicle(t, s, "沪A12345")
	v2 := createVehicle(t, s, "京B00001")

	a := createLog(t, s, v1.ID, 0, 1000, models.EnergyFuel, 40, true)
	b := createLog(t, s, v1.ID, 3, 1200, models.EnergyElectric, 20, true)
	c := createLog(t, s, v1.ID, 6, 1500, models.EnergyFuel, 30, true)
	createLog(t, s, v2.ID, 1, 500, models.EnergyFuel, 30, true)

	logs, err := s.EnergyLogs().List(ctx, models.EnergyLogFilter{VehicleID: &v1.ID})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{logs[0].ID, logs[1].ID, logs[2].ID})

	fuel := models.EnergyFuel
	logs, err = s.EnergyLogs().List(ctx, models.EnergyLogFilter{VehicleID: &v1.ID, EnergyType: &fuel, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, a.ID, logs[0].ID)

	start := day0.AddDate(0, 0, 2)
	end := day0.AddDate(0, 0, 4)
	logs, err = s.EnergyLogs().List(ctx, models.EnergyLogFilter{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, b.ID, logs[0].ID)

	n, err := s.EnergyLogs().Count(ctx, models.EnergyLogFilter{EnergyType: &fuel})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestEnergyLogRepository_RecalculateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v := createVehicle(t, s, "沪A12345")

	createLog(t, s, v.ID, 0, 1000, models.EnergyFuel, 40, true)
	partial := createLog(t, s, v.ID, 3, 1200, models.EnergyFuel, 20, false)
	last := createLog(t, s, v.ID, 6, 1500, models.EnergyFuel, 25, true)

	engine := consumption.NewEngine(nil)
	_, err := engine.Recalculate(ctx, s.EnergyLogs(), v.ID)
	require.NoError(t, err)

	got, err := s.EnergyLogs().GetByID(ctx, last.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MileageDiff)
	assert.EqualValues(t, 300, *got.MileageDiff)
	require.NotNil(t, got.ConsumptionPer100km)
	assert.InDelta(t, 9.0, *got.ConsumptionPer100km, 1e-9)

	err = s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.EnergyLogs().Delete(ctx, partial.ID); err != nil {
			return err
		}
		_, err := engine.Recalculate(ctx, tx.EnergyLogs(), v.ID)
		return err
	})
	require.NoError(t, err)

	got, err = s.EnergyLogs().GetByID(ctx, last.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 500, *got.MileageDiff)
	assert.InDelta(t, 5.0, *got.ConsumptionPer100km, 1e-9)
}

func TestEnergyLogRepository_PersistDerivedUnknownID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v := createVehicle(t, s, "沪A12345")
	l := createLog(t, s, v.ID, 0, 1000, models.EnergyFuel, 40, true)

	diff := int64(9)
	err := s.EnergyLogs().PersistDerived(ctx, v.ID, []consumption.Derived{
		{ID: l.ID, MileageDiff: &diff},
		{ID: l.ID + 100},
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.EnergyLogs().GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MileageDiff)

	// 事务内使用 savepoint
	err = s.InTx(ctx, func(tx store.Tx) error {
		err := tx.EnergyLogs().PersistDerived(ctx, v.ID, []consumption.Derived{
			{ID: l.ID, MileageDiff: &diff},
			{ID: l.ID + 100},
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	got, err = s.EnergyLogs().GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MileageDiff)
}

func TestStore_InTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v := createVehicle(t, s, "沪A12345")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		l := &models.EnergyLog{VehicleID: v.ID, LogDate: day0, Mileage: 10, EnergyType: models.EnergyFuel, Amount: 1}
		if err := tx.EnergyLogs().Create(ctx, l); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.EnergyLogs().Count(ctx, models.EnergyLogFilter{VehicleID: &v.ID})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVehicleRepository_UpdateAndDuplicatePlate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v := createVehicle(t, s, "沪A12345")
	other := createVehicle(t, s, "京B00001")

	v.Brand = "BYD"
	v.Model = "Qin"
	v.PowerType = models.PowerElectric
	v.CurrentMileage = 800
	require.NoError(t, s.Vehicles().Update(ctx, v))
	assert.False(t, v.CreatedAt.IsZero())

	got, err := s.Vehicles().GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "BYD", got.Brand)
	assert.Equal(t, models.PowerElectric, got.PowerType)
	assert.EqualValues(t, 800, got.CurrentMileage)

	other.PlateNumber = "沪A12345"
	err = s.Vehicles().Update(ctx, other)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = s.Vehicles().Create(ctx, &models.Vehicle{PlateNumber: "京B00001", PowerType: models.PowerFuel})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = s.Vehicles().Update(ctx, &models.Vehicle{ID: other.ID + 100, PlateNumber: "x", PowerType: models.PowerFuel})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVehicleRepository_DeleteCascadesToLogs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v := createVehicle(t, s, "沪A12345")
	keep := createVehicle(t, s, "京B00001")
	l := createLog(t, s, v.ID, 0, 1000, models.EnergyFuel, 40, true)
	createLog(t, s, v.ID, 3, 1300, models.EnergyFuel, 20, true)
	kept := createLog(t, s, keep.ID, 0, 500, models.EnergyElectric, 30, true)

	require.NoError(t, s.Vehicles().Delete(ctx, v.ID))

	_, err := s.Vehicles().GetByID(ctx, v.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.EnergyLogs().GetByID(ctx, l.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	events, err := s.EnergyLogs().ListEvents(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = s.EnergyLogs().GetByID(ctx, kept.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.Vehicles().Delete(ctx, v.ID), store.ErrNotFound)
}
