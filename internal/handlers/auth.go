package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/auth"
	"github.com/diewo77/receivables/internal/httpx"
	"github.com/diewo77/receivables/internal/models"
	"github.com/diewo77/receivables/internal/validation"
)

const bcryptCost = 12

type AuthHandler struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewAuthHandler(db *gorm.DB, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{DB: db, Logger: logger}
}

// Signup: POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	name := validation.SanitizeString(req.Name)
	email := validation.SanitizeEmail(req.Email)
	password := req.Password
	role := validation.SanitizeString(req.Role)

	result := validation.Validate([]validation.Rule{
		{Field: "Name", Value: name, Rules: []string{"required", "name"}},
		{Field: "Email", Value: email, Rules: []string{"required", "email"}},
		{Field: "Password", Value: password, Rules: []string{"required", "password"}},
		{Field: "Role", Value: role, Rules: []string{"required"}},
	})
	if !result.IsValid {
		httpx.Error(w, http.StatusBadRequest, result.First())
		return
	}
	if role != models.RoleFinanceManager && role != models.RoleCustomer {
		httpx.Error(w, http.StatusBadRequest, "Invalid role")
		return
	}

	var count int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		h.Logger.Error("signup: email lookup failed", zap.Error(err))
		httpx.Internal(w)
		return
	}
	if count > 0 {
		httpx.Error(w, http.StatusBadRequest, "User already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		h.Logger.Error("signup: hash failed", zap.Error(err))
		httpx.Internal(w)
		return
	}

	user := models.User{Name: name, Email: email, Password: string(hash), Role: role}
	if err := h.DB.Create(&user).Error; err != nil {
		h.Logger.Error("signup: create failed", zap.Error(err))
		httpx.Internal(w)
		return
	}

	// Password has json:"-" on the model; the row serializes without it.
	httpx.JSON(w, http.StatusCreated, &user)
}

// Login: POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	email := validation.SanitizeEmail(req.Email)
	if email == "" || req.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", email).First(&user).Error; err != nil {
		httpx.Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		httpx.Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	auth.CreateSession(w, user.ID)
	httpx.JSON(w, http.StatusOK, &user)
}

// Logout: POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearSession(w)
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
