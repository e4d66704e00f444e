package service

import (
	"errors"
	"strings"

	"github.com/langchou/carnote/internal/store"
)

var (
	// ErrNotFound 车辆或记录不存在
	ErrNotFound = errors.New("not found")
	// ErrVehicleMismatch 记录不能迁移到其他车辆
	ErrVehicleMismatch = errors.New("energy log belongs to another vehicle")
	// ErrDuplicatePlate 车牌号已存在
	ErrDuplicatePlate = errors.New("plate number already exists")
)

// ValidationError 输入校验失败
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(problem string) {
	e.Problems = append(e.Problems, problem)
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// mapStoreErr 将存储层的哨兵错误转为服务层错误
func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errors.Join(ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		return errors.Join(ErrDuplicatePlate, err)
	}
	return err
}
