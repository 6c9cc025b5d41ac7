package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/internal/infrastructure/firebase"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
)

// DevTokenHandler seeds users and hands out dev:<uid> bearer tokens. Only
// routed when ENVIRONMENT=development.
type DevTokenHandler struct {
	userRepo repository.UserRepository
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(userRepo repository.UserRepository) *DevTokenHandler {
	return &DevTokenHandler{
		userRepo: userRepo,
	}
}

func SetupDevTokenHandler(userRepo repository.UserRepository) {
	devTokenHandler = NewDevTokenHandler(userRepo)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

type seedUserRequest struct {
	ID          string  `json:"id" validate:"required"`
	DisplayName string  `json:"display_name" validate:"required"`
	Role        string  `json:"role" validate:"required,oneof=traveller guide admin"`
	HourlyRate  float64 `json:"hourly_rate" validate:"gte=0"`
	Currency    string  `json:"currency"`
}

func (h *DevTokenHandler) SeedUser(c echo.Context) error {
	var req seedUserRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	now := time.Now()
	user := &entity.User{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		HourlyRate:  req.HourlyRate,
		Currency:    req.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.userRepo.Create(c.Request().Context(), user); err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]interface{}{
		"token": firebase.DevToken(user.ID),
		"user":  user,
	})
}

func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	user, err := h.userRepo.GetByID(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"token": firebase.DevToken(user.ID),
		"user":  user,
	})
}
