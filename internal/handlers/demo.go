package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/httpx"
	"github.com/diewo77/receivables/internal/models"
	"github.com/diewo77/receivables/internal/validation"
)

// DemoHandler serves the product-demo scheduling endpoints. Booking
// and listing are public; status changes and deletion are finance-
// manager actions (gated by the router).
type DemoHandler struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewDemoHandler(db *gorm.DB, logger *zap.Logger) *DemoHandler {
	return &DemoHandler{DB: db, Logger: logger}
}

// Create: POST /demo/schedule
func (h *DemoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		Company       string `json:"company"`
		Phone         string `json:"phone"`
		PreferredDate string `json:"preferredDate"`
		PreferredTime string `json:"preferredTime"`
		Message       string `json:"message"`
		DemoType      string `json:"demoType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	name := validation.SanitizeString(req.Name)
	email := validation.SanitizeEmail(req.Email)
	company := validation.SanitizeString(req.Company)
	phone := validation.SanitizeString(req.Phone)
	preferredDate := validation.SanitizeString(req.PreferredDate)
	preferredTime := validation.SanitizeString(req.PreferredTime)
	message := validation.SanitizeString(req.Message)
	demoType := validation.SanitizeString(req.DemoType)
	if demoType == "" {
		demoType = models.DemoTypeOverview
	}

	result := validation.Validate([]validation.Rule{
		{Field: "Name", Value: name, Rules: []string{"required", "name"}},
		{Field: "Email", Value: email, Rules: []string{"required", "email"}},
		{Field: "Company", Value: company, Rules: []string{"required", "minLength"}},
		{Field: "Phone", Value: phone, Rules: []string{"required", "minLength"}},
		{Field: "Preferred Date", Value: preferredDate, Rules: []string{"required", "date", "futureDate"}},
		{Field: "Preferred Time", Value: preferredTime, Rules: []string{"required"}},
		{Field: "Message", Value: message, Rules: []string{"description"}},
	})
	if !result.IsValid {
		httpx.Error(w, http.StatusBadRequest, result.First())
		return
	}
	if demoType != models.DemoTypeOverview && demoType != models.DemoTypeTechnical && demoType != models.DemoTypeCustom {
		httpx.Error(w, http.StatusBadRequest, "Invalid demo type")
		return
	}
	date, _ := validation.ParseDate(preferredDate)

	// Reject double booking of a live slot.
	var count int64
	err := h.DB.Model(&models.DemoBooking{}).
		Where("preferred_date = ? AND preferred_time = ? AND status IN ?",
			date, preferredTime, []string{models.DemoStatusPending, models.DemoStatusConfirmed}).
		Count(&count).Error
	if err != nil {
		h.Logger.Error("demo slot lookup failed", zap.Error(err))
		httpx.Internal(w)
		return
	}
	if count > 0 {
		httpx.Error(w, http.StatusBadRequest, "This time slot is already booked. Please choose a different time.")
		return
	}

	demo := models.DemoBooking{
		Name:          name,
		Email:         email,
		Company:       company,
		Phone:         phone,
		PreferredDate: date,
		PreferredTime: preferredTime,
		Message:       message,
		DemoType:      demoType,
		Status:        models.DemoStatusPending,
	}
	if err := h.DB.Create(&demo).Error; err != nil {
		h.Logger.Error("demo create failed", zap.Error(err))
		httpx.Internal(w)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"demoId":  demo.ID,
		"message": "Demo scheduled successfully! We'll contact you soon to confirm the details.",
	})
}

// List: GET /demo/schedule?date=&status=
func (h *DemoHandler) List(w http.ResponseWriter, r *http.Request) {
	q := h.DB.Model(&models.DemoBooking{})

	if raw := r.URL.Query().Get("date"); raw != "" {
		day, ok := validation.ParseDate(raw)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "Please enter a valid date")
			return
		}
		q = q.Where("preferred_date >= ? AND preferred_date < ?", day, day.Add(24*time.Hour))
	}
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var demos []models.DemoBooking
	if err := q.Order("preferred_date ASC, preferred_time ASC").Find(&demos).Error; err != nil {
		h.Logger.Error("demo list failed", zap.Error(err))
		httpx.Internal(w)
		return
	}
	httpx.JSON(w, http.StatusOK, demos)
}

// UpdateStatus: PATCH /demo/schedule/{id} (finance manager only)
func (h *DemoHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "Invalid demo ID format")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	switch req.Status {
	case models.DemoStatusPending, models.DemoStatusConfirmed, models.DemoStatusCompleted, models.DemoStatusCancelled:
	default:
		httpx.Error(w, http.StatusBadRequest, "Invalid status")
		return
	}

	var demo models.DemoBooking
	if err := h.DB.First(&demo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Error(w, http.StatusNotFound, "Demo not found")
			return
		}
		h.Logger.Error("demo lookup failed", zap.Error(err))
		httpx.Internal(w)
		return
	}
	if err := h.DB.Model(&demo).Update("status", req.Status).Error; err != nil {
		h.Logger.Error("demo status update failed", zap.Error(err))
		httpx.Internal(w)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "demo": demo})
}

// Delete: DELETE /demo/schedule/{id} (finance manager only)
func (h *DemoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "Invalid demo ID format")
		return
	}

	res := h.DB.Delete(&models.DemoBooking{}, id)
	if res.Error != nil {
		h.Logger.Error("demo delete failed", zap.Error(res.Error))
		httpx.Internal(w)
		return
	}
	if res.RowsAffected == 0 {
		httpx.Error(w, http.StatusNotFound, "Demo not found")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
