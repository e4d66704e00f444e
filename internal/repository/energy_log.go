package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/carnote/internal/consumption"
	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/internal/store"
)

const energyLogColumns = `id, vehicle_id, log_date, mileage, energy_type, amount, cost, unit_price, fuel_gauge_reading,
	is_full, location_name, location_lat, location_lng, notes, mileage_diff, consumption_per_100km, created_at, updated_at`

// EnergyLogRepository 能耗记录仓库
type EnergyLogRepository struct {
	q querier
}

// NewEnergyLogRepository 创建能耗记录仓库
func NewEnergyLogRepository(db *DB) *EnergyLogRepository {
	return &EnergyLogRepository{q: db.Pool}
}

// Create 创建能耗记录，派生字段由重算写入
func (r *EnergyLogRepository) Create(ctx context.Context, l *models.EnergyLog) error {
	query := `
		INSERT INTO energy_logs (vehicle_id, log_date, mileage, energy_type, amount, cost, unit_price, fuel_gauge_reading,
			is_full, location_name, location_lat, location_lng, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query,
		l.VehicleID,
		l.LogDate,
		l.Mileage,
		l.EnergyType.String(),
		l.Amount,
		l.Cost,
		l.UnitPrice,
		l.FuelGaugeReading,
		l.IsFull,
		l.LocationName,
		l.LocationLat,
		l.LocationLng,
		l.Notes,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert energy log: %w", err)
	}
	return nil
}

// GetByID 获取能耗记录
func (r *EnergyLogRepository) GetByID(ctx context.Context, id int64) (*models.EnergyLog, error) {
	query := `SELECT ` + energyLogColumns + ` FROM energy_logs WHERE id = $1`
	l, err := scanEnergyLog(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get energy log %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get energy log: %w", err)
	}
	return l, nil
}

// Update 更新用户可编辑字段
func (r *EnergyLogRepository) Update(ctx context.Context, l *models.EnergyLog) error {
	query := `
		UPDATE energy_logs SET
			log_date = $2,
			mileage = $3,
			energy_type = $4,
			amount = $5,
			cost = $6,
			unit_price = $7,
			fuel_gauge_reading = $8,
			is_full = $9,
			location_name = $10,
			location_lat = $11,
			location_lng = $12,
			notes = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.q.QueryRow(ctx, query,
		l.ID,
		l.LogDate,
		l.Mileage,
		l.EnergyType.String(),
		l.Amount,
		l.Cost,
		l.UnitPrice,
		l.FuelGaugeReading,
		l.IsFull,
		l.LocationName,
		l.LocationLat,
		l.LocationLng,
		l.Notes,
	).Scan(&l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update energy log %d: %w", l.ID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update energy log: %w", err)
	}
	return nil
}

// Delete 删除能耗记录
func (r *EnergyLogRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM energy_logs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete energy log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete energy log %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// List 按条件分页查询，日期倒序
func (r *EnergyLogRepository) List(ctx context.Context, f models.EnergyLogFilter) ([]*models.EnergyLog, error) {
	where, args := buildEnergyLogWhere(f)
	query := `SELECT ` + energyLogColumns + ` FROM energy_logs` + where + ` ORDER BY log_date DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
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

// Count 统计满足条件的记录数，忽略分页
func (r *EnergyLogRepository) Count(ctx context.Context, f models.EnergyLogFilter) (int64, error) {
	where, args := buildEnergyLogWhere(f)
	var count int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM energy_logs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count energy logs: %w", err)
	}
	return count, nil
}

// ListEvents 返回车辆全部记录的重算字段
func (r *EnergyLogRepository) ListEvents(ctx context.Context, vehicleID int64) ([]consumption.Event, error) {
	query := `
		SELECT id, vehicle_id, log_date, mileage, energy_type, amount, is_full
		FROM energy_logs WHERE vehicle_id = $1
		ORDER BY log_date, mileage, id
	`
	rows, err := r.q.Query(ctx, query, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []consumption.Event
	for rows.Next() {
		var (
			ev         consumption.Event
			energyType string
		)
		if err := rows.Scan(&ev.ID, &ev.VehicleID, &ev.LogDate, &ev.Mileage, &energyType, &ev.Amount, &ev.IsFull); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.EnergyType, err = models.ParseEnergyType(energyType); err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// PersistDerived 在一个事务中批量写回派生字段。
// 任一记录不存在或不属于该车辆时整体回滚。
func (r *EnergyLogRepository) PersistDerived(ctx context.Context, vehicleID int64, derived []consumption.Derived) error {
	if len(derived) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range derived {
			batch.Queue(`
				UPDATE energy_logs SET mileage_diff = $1, consumption_per_100km = $2
				WHERE id = $3 AND vehicle_id = $4
			`, d.MileageDiff, d.Consumption, d.ID, vehicleID)
		}

		results := tx.SendBatch(ctx, batch)
		for _, d := range derived {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return fmt.Errorf("update energy log %d: %w", d.ID, err)
			}
			if tag.RowsAffected() != 1 {
				results.Close()
				return fmt.Errorf("energy log %d of vehicle %d: %w", d.ID, vehicleID, store.ErrNotFound)
			}
		}
		return results.Close()
	})
}

// rowScanner pgx.Row 与 pgx.Rows 的公共部分
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnergyLog(row rowScanner) (*models.EnergyLog, error) {
	l := &models.EnergyLog{}
	var energyType string
	err := row.Scan(
		&l.ID,
		&l.VehicleID,
		&l.LogDate,
		&l.Mileage,
		&energyType,
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
	if l.EnergyType, err = models.ParseEnergyType(energyType); err != nil {
		return nil, err
	}
	return l, nil
}

func buildEnergyLogWhere(f models.EnergyLogFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.VehicleID != nil {
		add("vehicle_id = $%d", *f.VehicleID)
	}
	if f.EnergyType != nil {
		add("energy_type = $%d", f.EnergyType.String())
	}
	if f.StartDate != nil {
		add("log_date >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("log_date <= $%d", *f.EndDate)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
