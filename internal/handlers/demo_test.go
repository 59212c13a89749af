package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/models"
)

func demoBody(date, slot string) string {
	return fmt.Sprintf(`{
		"name": "Jane Doe",
		"email": "jane@example.com",
		"company": "Acme Corp",
		"phone": "5551234567",
		"preferredDate": %q,
		"preferredTime": %q,
		"demoType": "overview"
	}`, date, slot)
}

func TestDemoCreate(t *testing.T) {
	db := setupTestDB(t)
	h := NewDemoHandler(db, zap.NewNop())
	date := time.Now().Add(7 * 24 * time.Hour).Format("2006-01-02")

	rr := postJSON(t, h.Create, "/demo/schedule", demoBody(date, "10:00"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Success bool `json:"success"`
		DemoID  uint `json:"demoId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.DemoID == 0 {
		t.Errorf("resp = %+v", resp)
	}

	var demo models.DemoBooking
	if err := db.First(&demo, resp.DemoID).Error; err != nil {
		t.Fatalf("stored booking: %v", err)
	}
	if demo.Status != models.DemoStatusPending {
		t.Errorf("status = %s, want pending", demo.Status)
	}
}

func TestDemoCreateRejectsTakenSlot(t *testing.T) {
	db := setupTestDB(t)
	h := NewDemoHandler(db, zap.NewNop())
	date := time.Now().Add(7 * 24 * time.Hour).Format("2006-01-02")

	if rr := postJSON(t, h.Create, "/demo/schedule", demoBody(date, "10:00")); rr.Code != http.StatusCreated {
		t.Fatalf("first booking: %d", rr.Code)
	}
	rr := postJSON(t, h.Create, "/demo/schedule", demoBody(date, "10:00"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if got := errorMessage(t, rr); got != "This time slot is already booked. Please choose a different time." {
		t.Errorf("error = %q", got)
	}

	// A different slot the same day is fine.
	if rr := postJSON(t, h.Create, "/demo/schedule", demoBody(date, "11:00")); rr.Code != http.StatusCreated {
		t.Errorf("different slot: %d", rr.Code)
	}
}

func TestDemoCreateValidation(t *testing.T) {
	db := setupTestDB(t)
	h := NewDemoHandler(db, zap.NewNop())

	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			"past date",
			demoBody("2020-01-01", "10:00"),
			"Preferred Date must be a future date",
		},
		{
			"bad demo type",
			fmt.Sprintf(`{"name":"Jane Doe","email":"jane@example.com","company":"Acme Corp","phone":"5551234567","preferredDate":%q,"preferredTime":"10:00","demoType":"sales"}`,
				time.Now().Add(7*24*time.Hour).Format("2006-01-02")),
			"Invalid demo type",
		},
		{
			"missing email",
			fmt.Sprintf(`{"name":"Jane Doe","company":"Acme Corp","phone":"5551234567","preferredDate":%q,"preferredTime":"10:00"}`,
				time.Now().Add(7*24*time.Hour).Format("2006-01-02")),
			"Email is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, h.Create, "/demo/schedule", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if got := errorMessage(t, rr); got != tc.wantMsg {
				t.Errorf("error = %q, want %q", got, tc.wantMsg)
			}
		})
	}
}

func seedDemo(t *testing.T, db *gorm.DB, date time.Time, slot string) models.DemoBooking {
	t.Helper()
	demo := models.DemoBooking{
		Name:          "Jane Doe",
		Email:         "jane@example.com",
		Company:       "Acme Corp",
		Phone:         "5551234567",
		PreferredDate: date,
		PreferredTime: slot,
		DemoType:      models.DemoTypeOverview,
		Status:        models.DemoStatusPending,
	}
	if err := db.Create(&demo).Error; err != nil {
		t.Fatalf("demo: %v", err)
	}
	return demo
}

func TestDemoListFilters(t *testing.T) {
	db := setupTestDB(t)
	h := NewDemoHandler(db, zap.NewNop())

	day1 := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC)
	seedDemo(t, db, day1, "10:00")
	confirmed := seedDemo(t, db, day2, "10:00")
	db.Model(&confirmed).Update("status", models.DemoStatusConfirmed)

	req := httptest.NewRequest(http.MethodGet, "/demo/schedule?date=2026-09-10", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	var demos []models.DemoBooking
	if err := json.Unmarshal(rr.Body.Bytes(), &demos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(demos) != 1 || !demos[0].PreferredDate.Equal(day1) {
		t.Errorf("date filter returned %d bookings", len(demos))
	}

	req = httptest.NewRequest(http.MethodGet, "/demo/schedule?status=confirmed", nil)
	rr = httptest.NewRecorder()
	h.List(rr, req)
	demos = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &demos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(demos) != 1 || demos[0].ID != confirmed.ID {
		t.Errorf("status filter returned %d bookings", len(demos))
	}
}

func TestDemoUpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	h := NewDemoHandler(db, zap.NewNop())
	demo := seedDemo(t, db, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), "10:00")

	patch := func(id, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/demo/schedule/"+id, strings.NewReader(body))
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		h.UpdateStatus(rr, req)
		return rr
	}

	rr := patch(fmt.Sprint(demo.ID), `{"status":"confirmed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got models.DemoBooking
	db.First(&got, demo.ID)
	if got.Status != models.DemoStatusConfirmed {
		t.Errorf("stored status = %s", got.Status)
	}

	if rr := patch(fmt.Sprint(demo.ID), `{"status":"archived"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad status: %d, want 400", rr.Code)
	}
	if rr := patch("999", `{"status":"confirmed"}`); rr.Code != http.StatusNotFound {
		t.Errorf("missing demo: %d, want 404", rr.Code)
	}
}

func TestDemoDelete(t *testing.T) {
	db := setupTestDB(t)
	h := NewDemoHandler(db, zap.NewNop())
	demo := seedDemo(t, db, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), "10:00")

	del := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/demo/schedule/"+id, nil)
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		h.Delete(rr, req)
		return rr
	}

	if rr := del(fmt.Sprint(demo.ID)); rr.Code != http.StatusOK {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := del(fmt.Sprint(demo.ID)); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: %d, want 404", rr.Code)
	}
}
