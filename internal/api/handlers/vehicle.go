package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/langchou/carnote/internal/models"
)

type vehicleRequest struct {
	PlateNumber    string `json:"plate_number"`
	Brand          string `json:"brand"`
	Model          string `json:"model"`
	PowerType      string `json:"power_type"`
	CurrentMileage int64  `json:"current_mileage"`
}

// CreateVehicle 创建车辆
func (h *Handler) CreateVehicle(c *gin.Context) {
	v, ok := bindVehicle(c)
	if !ok {
		return
	}
	if err := h.energyService.CreateVehicle(c.Request.Context(), v); err != nil {
		h.respondError(c, err, "Failed to create vehicle")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": v})
}

// UpdateVehicle 修改车辆信息
func (h *Handler) UpdateVehicle(c *gin.Context) {
	id, ok := parseID(c, "vehicle")
	if !ok {
		return
	}
	v, ok := bindVehicle(c)
	if !ok {
		return
	}

	updated, err := h.energyService.UpdateVehicle(c.Request.Context(), id, v)
	if err != nil {
		h.respondError(c, err, "Failed to update vehicle")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// DeleteVehicle 删除车辆及其能耗记录
func (h *Handler) DeleteVehicle(c *gin.Context) {
	id, ok := parseID(c, "vehicle")
	if !ok {
		return
	}

	if err := h.energyService.DeleteVehicle(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete vehicle")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id, "deleted": true}})
}

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.energyService.ListVehicles(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list vehicles")
		return
	}
	if vehicles == nil {
		vehicles = []*models.Vehicle{}
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// GetVehicle 获取车辆详情
func (h *Handler) GetVehicle(c *gin.Context) {
	id, ok := parseID(c, "vehicle")
	if !ok {
		return
	}

	v, err := h.energyService.GetVehicle(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Vehicle")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": v})
}

// RecalculateVehicle 手动重算车辆的全部能耗记录
func (h *Handler) RecalculateVehicle(c *gin.Context) {
	id, ok := parseID(c, "vehicle")
	if !ok {
		return
	}

	if err := h.energyService.Recalculate(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to recalculate vehicle")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"vehicle_id": id, "recalculated": true}})
}

func bindVehicle(c *gin.Context) (*models.Vehicle, bool) {
	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return nil, false
	}
	return &models.Vehicle{
		PlateNumber:    req.PlateNumber,
		Brand:          req.Brand,
		Model:          req.Model,
		PowerType:      req.PowerType,
		CurrentMileage: req.CurrentMileage,
	}, true
}
