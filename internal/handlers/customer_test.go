package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/diewo77/receivables/internal/models"
)

func TestCustomerList(t *testing.T) {
	db := setupTestDB(t)
	users := []models.User{
		{Email: "zoe@test.co", Name: "Zoe Last", Password: "x", Role: models.RoleCustomer},
		{Email: "amy@test.co", Name: "Amy First", Password: "x", Role: models.RoleCustomer},
		{Email: "fm@test.co", Name: "Fin Manager", Password: "x", Role: models.RoleFinanceManager},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("user: %v", err)
		}
	}
	h := NewCustomerHandler(db, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var out []models.UserSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("customers = %d, want 2 (manager excluded)", len(out))
	}
	if out[0].Name != "Amy First" || out[1].Name != "Zoe Last" {
		t.Errorf("not ordered by name: %+v", out)
	}
}
