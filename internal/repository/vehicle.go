package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/internal/store"
)

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	q querier
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{q: db.Pool}
}

// Create 创建车辆
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (plate_number, brand, model, power_type, current_mileage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	now := time.Now()
	err := r.q.QueryRow(ctx, query,
		v.PlateNumber,
		v.Brand,
		v.Model,
		v.PowerType,
		v.CurrentMileage,
		now,
		now,
	).Scan(&v.ID)

	if err != nil {
		return fmt.Errorf("insert vehicle: %w", mapUniqueViolation(err))
	}

	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

// GetByID 通过 ID 获取车辆
func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	query := `
		SELECT id, plate_number, COALESCE(brand, ''), COALESCE(model, ''), power_type, current_mileage, created_at, updated_at
		FROM vehicles WHERE id = $1
	`
	v := &models.Vehicle{}
	err := r.q.QueryRow(ctx, query, id).Scan(
		&v.ID,
		&v.PlateNumber,
		&v.Brand,
		&v.Model,
		&v.PowerType,
		&v.CurrentMileage,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get vehicle %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by id: %w", err)
	}
	return v, nil
}

// List 获取所有车辆
func (r *VehicleRepository) List(ctx context.Context) ([]*models.Vehicle, error) {
	query := `
		SELECT id, plate_number, COALESCE(brand, ''), COALESCE(model, ''), power_type, current_mileage, created_at, updated_at
		FROM vehicles ORDER BY id
	`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v := &models.Vehicle{}
		err := rows.Scan(
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
	query := `
		UPDATE vehicles SET
			plate_number = $2, brand = $3, model = $4, power_type = $5,
			current_mileage = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query,
		v.ID,
		v.PlateNumber,
		v.Brand,
		v.Model,
		v.PowerType,
		v.CurrentMileage,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update vehicle %d: %w", v.ID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update vehicle: %w", mapUniqueViolation(err))
	}
	return nil
}

// Delete 删除车辆，能耗记录由外键级联删除
func (r *VehicleRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete vehicle %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// RaiseMileage 更新车辆当前里程 (仅当新里程大于当前里程时)
func (r *VehicleRepository) RaiseMileage(ctx context.Context, vehicleID, mileage int64) error {
	query := `
		UPDATE vehicles SET current_mileage = $1, updated_at = NOW()
		WHERE id = $2 AND current_mileage < $1
	`
	if _, err := r.q.Exec(ctx, query, mileage, vehicleID); err != nil {
		return fmt.Errorf("raise vehicle mileage: %w", err)
	}
	return nil
}

// mapUniqueViolation 将唯一约束冲突 (23505) 转为 store.ErrDuplicate
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Join(store.ErrDuplicate, err)
	}
	return err
}
