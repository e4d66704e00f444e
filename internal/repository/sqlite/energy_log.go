package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/langchou/carnote/internal/consumption"
	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/internal/store"
)

const energyLogColumns = `id, vehicle_id, log_date, mileage, energy_type, amount, cost, unit_price, fuel_gauge_reading,
	is_full, location_name, location_lat, location_lng, notes, mileage_diff, consumption_per_100km, created_at, updated_at`

// EnergyLogRepository 能耗记录仓库
type EnergyLogRepository struct {
	q dbtx
	// db 非空表示不在事务中
	db *sql.DB
}

// Create 创建能耗记录
func (r *EnergyLogRepository) Create(ctx context.Context, l *models.EnergyLog) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO energy_logs (vehicle_id, log_date, mileage, energy_type, amount, cost, unit_price, fuel_gauge_reading,
			is_full, location_name, location_lat, location_lng, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.VehicleID,
		l.LogDate.UTC(),
		l.Mileage,
		l.EnergyType,
		l.Amount,
		l.Cost,
		l.UnitPrice,
		l.FuelGaugeReading,
		l.IsFull,
		l.LocationName,
		l.LocationLat,
		l.LocationLng,
		l.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert energy log: %w", err)
	}
	if l.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert energy log: %w", err)
	}
	l.CreatedAt = now
	l.UpdatedAt = now
	return nil
}

// GetByID 获取能耗记录
func (r *EnergyLogRepository) GetByID(ctx context.Context, id int64) (*models.EnergyLog, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+energyLogColumns+` FROM energy_logs WHERE id = ?`, id)
	l, err := scanEnergyLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get energy log %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get energy log: %w", err)
	}
	return l, nil
}

// Update 更新用户可编辑字段，派生字段不变
func (r *EnergyLogRepository) Update(ctx context.Context, l *models.EnergyLog) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE energy_logs SET
			log_date = ?, mileage = ?, energy_type = ?, amount = ?, cost = ?, unit_price = ?,
			fuel_gauge_reading = ?, is_full = ?, location_name = ?, location_lat = ?, location_lng = ?,
			notes = ?, updated_at = ?
		WHERE id = ?`,
		l.LogDate.UTC(),
		l.Mileage,
		l.EnergyType,
		l.Amount,
		l.Cost,
		l.UnitPrice,
		l.FuelGaugeReading,
		l.IsFull,
		l.LocationName,
		l.LocationLat,
		l.LocationLng,
		l.Notes,
		now,
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("update energy log: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update energy log: %w", err)
	} else if n == 0 {
		return fmt.Errorf("update energy log %d: %w", l.ID, store.ErrNotFound)
	}
	l.UpdatedAt = now
	return nil
}

// Delete 删除能耗记录
func (r *EnergyLogRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM energy_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete energy log: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete energy log: %w", err)
	} else if n == 0 {
		return fmt.Errorf("delete energy log %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// List 按条件分页查询，日期倒序
func (r *EnergyLogRepository) List(ctx context.Context, f models.EnergyLogFilter) ([]*models.EnergyLog, error) {
	where, args := buildWhere(f)
	query := `SELECT ` + energyLogColumns + ` FROM energy_logs` + where + ` ORDER BY log_date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list energy logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.EnergyLog
	for rows.Next() {
		l, err := scanEnergyLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan energy log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list energy logs: %w", err)
	}
	return logs, nil
}

// Count 统计满足条件的记录数
func (r *EnergyLogRepository) Count(ctx context.Context, f models.EnergyLogFilter) (int64, error) {
	where, args := buildWhere(f)
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM energy_logs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count energy logs: %w", err)
	}
	return count, nil
}

// ListEvents 返回车辆全部记录的重算字段
func (r *EnergyLogRepository) ListEvents(ctx context.Context, vehicleID int64) ([]consumption.Event, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, vehicle_id, log_date, mileage, energy_type, amount, is_full
		FROM energy_logs WHERE vehicle_id = ?
		ORDER BY log_date, mileage, id`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []consumption.Event
	for rows.Next() {
		var ev consumption.Event
		if err := rows.Scan(&ev.ID, &ev.VehicleID, &ev.LogDate, &ev.Mileage, &ev.EnergyType, &ev.Amount, &ev.IsFull); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// PersistDerived 写回派生字段。不在事务中时自行开启事务，
// 否则使用 savepoint，失败时只撤销本次写回。
func (r *EnergyLogRepository) PersistDerived(ctx context.Context, vehicleID int64, derived []consumption.Derived) error {
	if len(derived) == 0 {
		return nil
	}

	if r.db != nil {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := persistDerived(ctx, tx, vehicleID, derived); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	if _, err := r.q.ExecContext(ctx, `SAVEPOINT persist_derived`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := persistDerived(ctx, r.q, vehicleID, derived); err != nil {
		if _, rbErr := r.q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT persist_derived`); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := r.q.ExecContext(ctx, `RELEASE SAVEPOINT persist_derived`); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func persistDerived(ctx context.Context, q dbtx, vehicleID int64, derived []consumption.Derived) error {
	for _, d := range derived {
		res, err := q.ExecContext(ctx,
			`UPDATE energy_logs SET mileage_diff = ?, consumption_per_100km = ? WHERE id = ? AND vehicle_id = ?`,
			d.MileageDiff, d.Consumption, d.ID, vehicleID)
		if err != nil {
			return fmt.Errorf("update energy log %d: %w", d.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update energy log %d: %w", d.ID, err)
		}
		if n != 1 {
			return fmt.Errorf("energy log %d of vehicle %d: %w", d.ID, vehicleID, store.ErrNotFound)
		}
	}
	return nil
}

func scanEnergyLog(row scanner) (*models.EnergyLog, error) {
	l := &models.EnergyLog{}
	err := row.Scan(
		&l.ID,
		&l.VehicleID,
		&l.LogDate,
		&l.Mileage,
		&l.EnergyType,
		&l.Amount,
		&l.Cost,
		&l.UnitPrice,
		&l.FuelGaugeReading,
		&l.IsFull,
		&l.LocationName,
		&l.LocationLat,
		&l.LocationLng,
		&l.Notes,
		&l.MileageDiff,
		&l.ConsumptionPer100km,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func buildWhere(f models.EnergyLogFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.VehicleID != nil {
		conds = append(conds, "vehicle_id = ?")
		args = append(args, *f.VehicleID)
	}
	if f.EnergyType != nil {
		conds = append(conds, "energy_type = ?")
		args = append(args, *f.EnergyType)
	}
	if f.StartDate != nil {
		conds = append(conds, "log_date >= ?")
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		conds = append(conds, "log_date <= ?")
		args = append(args, f.EndDate.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
