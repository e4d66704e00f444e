package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/internal/store"
)

// VehicleRepository 车辆仓库
type VehicleRepository struct {
	q dbtx
}

const vehicleColumns = `id, plate_number, COALESCE(brand, ''), COALESCE(model, ''), power_type, current_mileage, created_at, updated_at`

// Create 创建车辆
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO vehicles (plate_number, brand, model, power_type, current_mileage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.PlateNumber, v.Brand, v.Model, v.PowerType, v.CurrentMileage, now, now)
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", mapUniqueViolation(err))
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

// GetByID 通过 ID 获取车辆
func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get vehicle %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by id: %w", err)
	}
	return v, nil
}

// List 获取所有车辆
func (r *VehicleRepository) List(ctx context.Context) ([]*models.Vehicle, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return vehicles, nil
}

// Update 更新车辆信息
func (r *VehicleRepository) Update(ctx context.Context, v *models.Vehicle) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE vehicles SET plate_number = ?, brand = ?, model = ?, power_type = ?, current_mileage = ?, updated_at = ?
		WHERE id = ?`,
		v.PlateNumber, v.Brand, v.Model, v.PowerType, v.CurrentMileage, now, v.ID)
	if err != nil {
		return fmt.Errorf("update vehicle: %w", mapUniqueViolation(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update vehicle %d: %w", v.ID, store.ErrNotFound)
	}

	row := r.q.QueryRowContext(ctx, `SELECT created_at FROM vehicles WHERE id = ?`, v.ID)
	if err := row.Scan(&v.CreatedAt); err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	v.UpdatedAt = now
	return nil
}

// Delete 删除车辆，能耗记录由外键级联删除（需 foreign_keys = ON）
func (r *VehicleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete vehicle %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// RaiseMileage 仅当新里程更大时更新当前里程
func (r *VehicleRepository) RaiseMileage(ctx context.Context, vehicleID, mileage int64) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE vehicles SET current_mileage = ?, updated_at = ? WHERE id = ? AND current_mileage < ?`,
		mileage, time.Now().UTC(), vehicleID, mileage)
	if err != nil {
		return fmt.Errorf("raise vehicle mileage: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row scanner) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(
		&v.ID,
		&v.PlateNumber,
		&v.Brand,
		&v.Model,
		&v.PowerType,
		&v.CurrentMileage,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func mapUniqueViolation(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return errors.Join(store.ErrDuplicate, err)
	}
	return err
}
