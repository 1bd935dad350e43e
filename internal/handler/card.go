package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
)

// UpdateCard replaces a Mochi card's content, for fixing the source card
// after a review surfaced a problem with it.
func (h *Handler) UpdateCard(c echo.Context) error {
	if _, err := GetUserIDFromToken(c); err != nil {
		return err
	}

	cardID := c.Param("id")

	var req contract.UpdateCardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to bind request")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	card, err := h.mochi.UpdateCardContent(c.Request().Context(), cardID, req.Content)
	if err != nil {
		if errors.Is(err, mochi.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "card not found")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "failed to update card").SetInternal(err)
	}

	return c.JSON(http.StatusOK, card)
}
