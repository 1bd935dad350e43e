package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
)

// StartSession snapshots the deck's due cards into a new review session.
// When Mochi reports nothing due the response carries a message instead of
// a session.
func (h *Handler) StartSession(c echo.Context) error {
	userID, err := GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	var req contract.StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to bind request")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	decks, err := h.mochi.ListDecks(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to list decks").SetInternal(err)
	}

	tree := mochi.BuildDeckTree(decks)
	node, ok := tree[req.DeckID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "deck not found")
	}
	deckName := tree.DisplayName(node.Deck)

	due, err := h.mochi.DueCards(ctx, req.DeckID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch due cards").SetInternal(err)
	}

	if len(due) == 0 {
		return c.JSON(http.StatusOK, contract.StartSessionResponse{
			Message: "no cards due for review",
		})
	}

	snapshots := make([]db.NewSessionCard, 0, len(due))
	for _, card := range due {
		content := mochi.SanitizeContent(card.Content)
		question, answer := mochi.ParseContent(content)
		snapshots = append(snapshots, db.NewSessionCard{
			CardID:   card.ID,
			DeckID:   card.DeckID,
			Content:  content,
			Question: question,
			Answer:   answer,
		})
	}

	session, err := h.db.CreateSession(userID, req.DeckID, deckName, snapshots)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session").SetInternal(err)
	}

	return c.JSON(http.StatusCreated, contract.StartSessionResponse{Session: session})
}

// GetSession returns the session; completed sessions carry a summary of the
// dialogue that happened in them.
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.getOwnedSession(c)
	if err != nil {
		return err
	}

	resp := contract.SessionDetailResponse{Session: session}
	if session.State == db.StateComplete {
		count, avg, err := h.db.GetSessionScore(session.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session score").SetInternal(err)
		}
		resp.Summary = &contract.SessionSummary{AnswersEvaluated: count, AvgScore: avg}
	}

	return c.JSON(http.StatusOK, resp)
}

// GetCurrentCard returns the card the session is waiting on, generating the
// rephrased question on demand if the prefetch job hasn't gotten to it yet.
// The active question is the latest follow-up while the dialogue is in a
// follow-up round.
func (h *Handler) GetCurrentCard(c echo.Context) error {
	session, err := h.getOwnedSession(c)
	if err != nil {
		return err
	}

	if session.State == db.StateComplete {
		return c.JSON(http.StatusOK, contract.CardView{
			SessionID:  session.ID,
			Position:   session.CurrentIndex,
			TotalCards: session.TotalCards,
			State:      db.StateComplete,
		})
	}

	ctx := c.Request().Context()

	card, err := h.db.GetSessionCard(session.ID, session.CurrentIndex)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session card").SetInternal(err)
	}

	if card.Rephrased == nil {
		rephrased, err := h.dialogue.RephraseQuestion(ctx, card.Question, card.Answer, session.DeckName)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to rephrase question").SetInternal(err)
		}
		if err := h.db.SetRephrased(card.ID, rephrased); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to store rephrased question").SetInternal(err)
		}
		card, err = h.db.GetSessionCard(session.ID, session.CurrentIndex)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session card").SetInternal(err)
		}
	}

	view := contract.CardView{
		SessionID:     session.ID,
		CardID:        card.CardID,
		Position:      card.Position,
		TotalCards:    session.TotalCards,
		State:         session.State,
		Question:      *card.Rephrased,
		Content:       h.mochi.ResolveImages(ctx, card.CardID, card.Content),
		FollowUpCount: session.FollowUpCount,
	}

	if session.State == db.StateFollowUp {
		if followUp := h.latestFollowUp(card.ID); followUp != nil {
			view.FollowUp = followUp
		}
	}

	return c.JSON(http.StatusOK, view)
}

// SubmitAnswer grades the user's answer against the card, records the
// exchange and moves the dialogue forward: into another follow-up round when
// the tutor has one and the cap allows, otherwise into evaluating so the
// client can reveal, save or skip.
func (h *Handler) SubmitAnswer(c echo.Context) error {
	session, err := h.getOwnedSession(c)
	if err != nil {
		return err
	}

	if session.State != db.StateQuestion && session.State != db.StateFollowUp {
		return echo.NewHTTPError(http.StatusConflict, "session is not awaiting an answer")
	}

	var req contract.AnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to bind request")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	card, err := h.db.GetSessionCard(session.ID, session.CurrentIndex)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session card").SetInternal(err)
	}
	if card.Rephrased == nil {
		return echo.NewHTTPError(http.StatusConflict, "card has no question yet")
	}

	previous, err := h.db.GetExchanges(card.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get exchanges").SetInternal(err)
	}

	activeQuestion := *card.Rephrased
	if session.State == db.StateFollowUp && len(previous) > 0 {
		if followUp := previous[len(previous)-1].FollowUp; followUp != nil {
			activeQuestion = *followUp
		}
	}

	history := make([]ai.Exchange, 0, len(previous))
	for _, ex := range previous {
		history = append(history, ai.Exchange{
			Question:   ex.Question,
			UserAnswer: ex.UserAnswer,
			Evaluation: ai.Evaluation{
				IsCorrect: ex.IsCorrect,
				Score:     ex.Score,
				Feedback:  ex.Feedback,
				FollowUp:  ex.FollowUp,
			},
		})
	}

	eval, err := h.dialogue.EvaluateAnswer(ctx, activeQuestion, card.Answer, req.Answer, history)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to evaluate answer").SetInternal(err)
	}

	if _, err := h.db.AddExchange(&db.Exchange{
		SessionID:     session.ID,
		SessionCardID: card.ID,
		Round:         len(previous),
		Question:      activeQuestion,
		UserAnswer:    req.Answer,
		IsCorrect:     eval.IsCorrect,
		Score:         eval.Score,
		Feedback:      eval.Feedback,
		FollowUp:      eval.FollowUp,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record exchange").SetInternal(err)
	}

	// A correct answer ends the dialogue even if the model offered a
	// follow-up; incorrect ones keep probing until the per-card cap.
	canFollowUp := eval.FollowUp != nil && !eval.IsCorrect && session.FollowUpCount < db.MaxFollowUps

	nextState := db.StateEvaluating
	followUpCount := session.FollowUpCount
	if canFollowUp {
		nextState = db.StateFollowUp
		followUpCount++
	}
	if err := h.db.UpdateSessionState(session.ID, nextState, followUpCount); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update session").SetInternal(err)
	}

	updated, err := h.db.GetSession(session.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session").SetInternal(err)
	}

	exchanges, err := h.db.GetExchanges(card.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get exchanges").SetInternal(err)
	}

	return c.JSON(http.StatusOK, contract.AnswerResponse{
		Evaluation:     *eval,
		ExpectedAnswer: card.Answer,
		CanFollowUp:    canFollowUp,
		History:        exchanges,
		Session:        updated,
	})
}

// SkipCard advances past the current card without saving anything to Mochi.
func (h *Handler) SkipCard(c echo.Context) error {
	session, err := h.getOwnedSession(c)
	if err != nil {
		return err
	}

	if session.State == db.StateComplete {
		return echo.NewHTTPError(http.StatusConflict, "session is complete")
	}

	updated, err := h.db.AdvanceSession(session.ID, false, true)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to advance session").SetInternal(err)
	}

	return c.JSON(http.StatusOK, updated)
}

// SaveCard writes the current card's rephrased question back to Mochi as a
// new card in the deck's review subdeck, then advances the session.
func (h *Handler) SaveCard(c echo.Context) error {
	session, err := h.getOwnedSession(c)
	if err != nil {
		return err
	}

	if session.State == db.StateComplete {
		return echo.NewHTTPError(http.StatusConflict, "session is complete")
	}

	ctx := c.Request().Context()

	card, err := h.db.GetSessionCard(session.ID, session.CurrentIndex)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session card").SetInternal(err)
	}
	if card.Rephrased == nil {
		return echo.NewHTTPError(http.StatusConflict, "card has no rephrased question to save")
	}

	reviewDeckID, err := h.mochi.GetOrCreateReviewDeck(ctx, session.DeckID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to get review deck").SetInternal(err)
	}

	content := mochi.BuildReviewCard(card.Question, card.Answer, *card.Rephrased, card.CardID)
	created, err := h.mochi.CreateCard(ctx, reviewDeckID, content, []string{"feynman", "rephrased"})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to create card").SetInternal(err)
	}

	if err := h.db.RecordSavedCard(session.UserID, card.ID, created.ID, reviewDeckID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record saved card").SetInternal(err)
	}

	updated, err := h.db.AdvanceSession(session.ID, true, false)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to advance session").SetInternal(err)
	}

	return c.JSON(http.StatusOK, contract.SaveCardResponse{
		MochiCardID: created.ID,
		DeckID:      reviewDeckID,
		Session:     updated,
	})
}

// getOwnedSession loads the session from the :id path param and checks it
// belongs to the authenticated user.
func (h *Handler) getOwnedSession(c echo.Context) (*db.Session, error) {
	userID, err := GetUserIDFromToken(c)
	if err != nil {
		return nil, err
	}

	session, err := h.db.GetSession(c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get session").SetInternal(err)
	}

	if session.UserID != userID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	return session, nil
}

func (h *Handler) latestFollowUp(sessionCardID string) *string {
	exchanges, err := h.db.GetExchanges(sessionCardID)
	if err != nil || len(exchanges) == 0 {
		return nil
	}
	return exchanges[len(exchanges)-1].FollowUp
}
