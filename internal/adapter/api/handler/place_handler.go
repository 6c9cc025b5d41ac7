package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"guidebook/internal/domain/service"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
)

type PlaceHandler struct {
	places service.PlaceLookup
}

func NewPlaceHandler(places service.PlaceLookup) *PlaceHandler {
	return &PlaceHandler{
		places: places,
	}
}

func (h *PlaceHandler) Search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return response.Error(c, errors.Validation("q is required", nil))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	places, err := h.places.Search(c.Request().Context(), q, limit)
	if err != nil {
		return response.Error(c, errors.TransportFailure("Place lookup failed", err))
	}

	return response.Success(c, places)
}

func (h *PlaceHandler) Reverse(c echo.Context) error {
	lat, errLat := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.QueryParam("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return response.Error(c, errors.Validation("lat and lon must be valid coordinates", nil))
	}

	place, err := h.places.Reverse(c.Request().Context(), lat, lon)
	if err != nil {
		return response.Error(c, errors.TransportFailure("Place lookup failed", err))
	}

	return response.Success(c, place)
}
