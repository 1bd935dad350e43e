package handler

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
)

// GetDecks lists the user's Mochi decks with hierarchical display names.
// The generated review subdecks are hidden so they can't be studied back
// into themselves.
func (h *Handler) GetDecks(c echo.Context) error {
	if _, err := GetUserIDFromToken(c); err != nil {
		return err
	}

	ctx := c.Request().Context()

	decks, err := h.mochi.ListDecks(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to list decks").SetInternal(err)
	}

	tree := mochi.BuildDeckTree(decks)

	resp := make([]contract.DeckResponse, 0, len(decks))
	for _, deck := range decks {
		if deck.Name == mochi.ReviewDeckName {
			continue
		}
		resp = append(resp, contract.DeckResponse{
			ID:          deck.ID,
			Name:        deck.Name,
			ParentID:    deck.ParentID,
			DisplayName: tree.DisplayName(deck),
		})
	}

	sort.Slice(resp, func(i, j int) bool {
		return resp[i].DisplayName < resp[j].DisplayName
	})

	return c.JSON(http.StatusOK, resp)
}
