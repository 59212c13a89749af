package handlers

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/httpx"
	"github.com/diewo77/receivables/internal/models"
)

// CustomerHandler backs the finance manager's customer picker.
type CustomerHandler struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewCustomerHandler(db *gorm.DB, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{DB: db, Logger: logger}
}

// List: GET /customers (finance manager only, gated by router)
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	var customers []models.User
	err := h.DB.WithContext(r.Context()).
		Where("role = ?", models.RoleCustomer).
		Order("name ASC").
		Find(&customers).Error
	if err != nil {
		h.Logger.Error("customer list failed", zap.Error(err))
		httpx.Internal(w)
		return
	}

	out := make([]models.UserSummary, 0, len(customers))
	for i := range customers {
		out = append(out, customers[i].Summary())
	}
	httpx.JSON(w, http.StatusOK, out)
}
