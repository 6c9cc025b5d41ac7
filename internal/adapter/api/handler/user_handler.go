package handler

import (
	"log"

	"github.com/labstack/echo/v4"

	"guidebook/internal/usecase"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
)

type UserHandler struct {
	userUseCase *usecase.UserUseCase
}

func NewUserHandler(userUseCase *usecase.UserUseCase) *UserHandler {
	return &UserHandler{
		userUseCase: userUseCase,
	}
}

type registerRequest struct {
	Email       string  `json:"email" validate:"omitempty,email"`
	DisplayName string  `json:"display_name" validate:"required,max=80"`
	Role        string  `json:"role" validate:"required,oneof=traveller guide"`
	HourlyRate  float64 `json:"hourly_rate" validate:"gte=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
}

type updateProfileRequest struct {
	DisplayName *string  `json:"display_name" validate:"omitempty,max=80"`
	AvatarURL   *string  `json:"avatar_url" validate:"omitempty,url"`
	HourlyRate  *float64 `json:"hourly_rate" validate:"omitempty,gt=0"`
	Currency    *string  `json:"currency" validate:"omitempty,len=3"`
}

func (h *UserHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	uid := getUserIDFromContext(c)
	user, err := h.userUseCase.Register(c.Request().Context(), uid, usecase.RegisterInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		HourlyRate:  req.HourlyRate,
		Currency:    req.Currency,
	})
	if err != nil {
		return response.Error(c, err)
	}

	log.Printf("Registered %s profile for user %s", user.Role, uid)
	return response.Created(c, user)
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	user, err := h.userUseCase.GetUserProfile(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, user)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	user, err := h.userUseCase.UpdateProfile(c.Request().Context(), getUserIDFromContext(c), usecase.UpdateProfileInput{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		HourlyRate:  req.HourlyRate,
		Currency:    req.Currency,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, user)
}

func (h *UserHandler) GetUserByID(c echo.Context) error {
	user, err := h.userUseCase.GetPublicProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, user)
}
