package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langchou/carnote/internal/models"
	"github.com/langchou/carnote/internal/service"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	// maxPage 保证 (page-1)*perPage 不会溢出
	maxPage = 1_000_000
)

// 支持的日期格式，按顺序尝试
var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02"}

// energyLogRequest 请求体中的派生字段被忽略
type energyLogRequest struct {
	VehicleID        int64              `json:"vehicle_id"`
	LogDate          string             `json:"log_date"`
	Mileage          int64              `json:"mileage"`
	EnergyType       *models.EnergyType `json:"energy_type"`
	Amount           float64            `json:"amount"`
	Cost             *float64           `json:"cost"`
	UnitPrice        *float64           `json:"unit_price"`
	FuelGaugeReading *float64           `json:"fuel_gauge_reading"`
	IsFull           bool               `json:"is_full"`
	LocationName     *string            `json:"location_name"`
	LocationLat      *float64           `json:"location_lat"`
	LocationLng      *float64           `json:"location_lng"`
	Notes            *string            `json:"notes"`
}

func (r *energyLogRequest) toModel() (*models.EnergyLog, error) {
	l := &models.EnergyLog{
		VehicleID:        r.VehicleID,
		Mileage:          r.Mileage,
		Amount:           r.Amount,
		Cost:             r.Cost,
		UnitPrice:        r.UnitPrice,
		FuelGaugeReading: r.FuelGaugeReading,
		IsFull:           r.IsFull,
		LocationName:     r.LocationName,
		LocationLat:      r.LocationLat,
		LocationLng:      r.LocationLng,
		Notes:            r.Notes,
	}
	verr := &service.ValidationError{}
	if r.EnergyType == nil {
		verr.Problems = append(verr.Problems, "energy_type is required")
	} else {
		l.EnergyType = *r.EnergyType
	}
	if r.LogDate != "" {
		t, err := parseDate(r.LogDate)
		if err != nil {
			verr.Problems = append(verr.Problems, err.Error())
		}
		l.LogDate = t
	}
	if len(verr.Problems) > 0 {
		return nil, verr
	}
	return l, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func (h *Handler) bindEnergyLog(c *gin.Context) (*models.EnergyLog, bool) {
	var req energyLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return nil, false
	}
	l, err := req.toModel()
	if err != nil {
		h.respondError(c, err, "Invalid energy log")
		return nil, false
	}
	return l, true
}

// CreateEnergyLog 新增能耗记录，返回重算后的记录
func (h *Handler) CreateEnergyLog(c *gin.Context) {
	l, ok := h.bindEnergyLog(c)
	if !ok {
		return
	}

	created, err := h.energyService.Create(c.Request.Context(), l)
	if err != nil {
		h.respondError(c, err, "Failed to create energy log")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// ListEnergyLogs 获取能耗记录列表
func (h *Handler) ListEnergyLogs(c *gin.Context) {
	var f models.EnergyLogFilter

	if v := c.Query("vehicle_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
			return
		}
		f.VehicleID = &id
	}
	if v := c.Query("energy_type"); v != "" {
		et, err := models.ParseEnergyType(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.EnergyType = &et
	}
	if v := c.Query("start_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// 只给日期时包含当天
		if len(v) == len("2006-01-02") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.EndDate = &t
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	switch {
	case errors.Is(err, strconv.ErrRange) || page > maxPage:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("page must not exceed %d", maxPage)})
		return
	case err != nil || page < 1:
		page = 1
	}
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	f.Limit = perPage
	f.Offset = (page - 1) * perPage

	logs, total, err := h.energyService.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err, "Failed to list energy logs")
		return
	}
	if logs == nil {
		logs = []*models.EnergyLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": logs,
		"pagination": gin.H{
			"page":        page,
			"per_page":    perPage,
			"total":       total,
			"total_pages": (total + int64(perPage) - 1) / int64(perPage),
		},
	})
}

// GetEnergyLog 获取能耗记录
func (h *Handler) GetEnergyLog(c *gin.Context) {
	id, ok := parseID(c, "energy log")
	if !ok {
		return
	}

	l, err := h.energyService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Energy log")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": l})
}

// UpdateEnergyLog 修改能耗记录，返回重算后的记录
func (h *Handler) UpdateEnergyLog(c *gin.Context) {
	id, ok := parseID(c, "energy log")
	if !ok {
		return
	}
	l, ok := h.bindEnergyLog(c)
	if !ok {
		return
	}

	updated, err := h.energyService.Update(c.Request.Context(), id, l)
	if err != nil {
		h.respondError(c, err, "Failed to update energy log")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// DeleteEnergyLog 删除能耗记录
func (h *Handler) DeleteEnergyLog(c *gin.Context) {
	id, ok := parseID(c, "energy log")
	if !ok {
		return
	}

	if err := h.energyService.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete energy log")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id, "deleted": true}})
}

// quickAddRequest 快捷记录的查询参数
type quickAddRequest struct {
	VehicleID    int64    `form:"vehicle_id"`
	Mileage      int64    `form:"mileage"`
	Amount       float64  `form:"amount"`
	Cost         *float64 `form:"cost"`
	IsFull       string   `form:"is_full"`
	LocationName *string  `form:"location_name"`
	LocationLat  *float64 `form:"location_lat"`
	LocationLng  *float64 `form:"location_lng"`
}

// QuickAddEnergyLog 通过查询参数快速记录一次加油或充电，便于快捷指令调用。
// GET /api/energy/quick?vehicle_id=1&mileage=12000&amount=40&is_full=1
func (h *Handler) QuickAddEnergyLog(c *gin.Context) {
	var req quickAddRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}
	if c.Query("mileage") == "" || c.Query("amount") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mileage and amount are required"})
		return
	}

	created, err := h.energyService.QuickAdd(c.Request.Context(), service.QuickEntry{
		VehicleID:    req.VehicleID,
		Mileage:      req.Mileage,
		Amount:       req.Amount,
		Cost:         req.Cost,
		IsFull:       parseFlag(req.IsFull),
		LocationName: req.LocationName,
		LocationLat:  req.LocationLat,
		LocationLng:  req.LocationLng,
	})
	if err != nil {
		h.respondError(c, err, "Failed to add energy log")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// parseFlag 接受 1 / true / yes
func parseFlag(v string) bool {
	switch v {
	case "1", "true", "yes":
		return true
	}
	return false
}
