package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetStats returns the user's study statistics.
func (h *Handler) GetStats(c echo.Context) error {
	userID, err := GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	stats, err := h.db.GetUserStudyStats(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get stats").SetInternal(err)
	}

	return c.JSON(http.StatusOK, stats)
}
