package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
	"github.com/maarten-devries/feynman-flashcards/internal/testutils"
)

func physicsMock() *mockMochi {
	mock := newMockMochi()
	mock.decks = []mochi.Deck{
		{ID: "d1", Name: "Physics"},
		{ID: "f-other", Name: "Feynman", ParentID: "other"},
	}
	mock.due["d1"] = []mochi.Card{
		{ID: "c1", DeckID: "d1", Content: "What is inertia?\n---\nResistance to change in motion."},
		{ID: "c2", DeckID: "d1", Content: "What is entropy?\n---\nA measure of disorder."},
	}
	return mock
}

func TestGetDecksHidesReviewDecks(t *testing.T) {
	mock := physicsMock()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL})
	resp := testutils.ConnectHelper(t, e)

	rec := testutils.PerformRequest(t, e, http.MethodGet, "/v1/decks", "", resp.Token, http.StatusOK)
	decks := testutils.ParseResponse[[]contract.DeckResponse](t, rec)

	require.Len(t, decks, 1)
	assert.Equal(t, "d1", decks[0].ID)
	assert.Equal(t, "Physics", decks[0].DisplayName)
}

func TestStartSessionNoDueCards(t *testing.T) {
	mock := physicsMock()
	mock.due["d1"] = nil
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL})
	resp := testutils.ConnectHelper(t, e)

	rec := testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions", `{"deck_id":"d1"}`, resp.Token, http.StatusOK)
	started := testutils.ParseResponse[contract.StartSessionResponse](t, rec)

	assert.Nil(t, started.Session)
	assert.Equal(t, "no cards due for review", started.Message)
}

func TestStartSessionUnknownDeck(t *testing.T) {
	mock := physicsMock()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL})
	resp := testutils.ConnectHelper(t, e)

	testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions", `{"deck_id":"nope"}`, resp.Token, http.StatusNotFound)
}

func TestSessionFlow(t *testing.T) {
	mock := physicsMock()
	server := mock.start(t)

	followUp := "What happens when friction is present?"
	evaluations := 0
	dialogue := &testutils.StubDialogue{
		EvaluateFunc: func(ctx context.Context, question, expectedAnswer, userAnswer string, history []ai.Exchange) (*ai.Evaluation, error) {
			evaluations++
			if evaluations == 1 {
				return &ai.Evaluation{IsCorrect: false, Score: 0.5, Feedback: "Partially right.", FollowUp: &followUp}, nil
			}
			return &ai.Evaluation{IsCorrect: true, Score: 0.9, Feedback: "Exactly."}, nil
		},
	}

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL, Dialogue: dialogue})
	resp := testutils.ConnectHelper(t, e)
	token := resp.Token

	// Start a session over the due cards.
	rec := testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions", `{"deck_id":"d1"}`, token, http.StatusCreated)
	started := testutils.ParseResponse[contract.StartSessionResponse](t, rec)
	require.NotNil(t, started.Session)
	sessionID := started.Session.ID
	assert.Equal(t, db.StateQuestion, started.Session.State)
	assert.Equal(t, 2, started.Session.TotalCards)
	assert.Equal(t, "Physics", started.Session.DeckName)

	// First card arrives with a rephrased question.
	rec = testutils.PerformRequest(t, e, http.MethodGet, "/v1/sessions/"+sessionID+"/card", "", token, http.StatusOK)
	card := testutils.ParseResponse[contract.CardView](t, rec)
	assert.Equal(t, "c1", card.CardID)
	assert.Equal(t, 0, card.Position)
	assert.Equal(t, db.StateQuestion, card.State)
	assert.Equal(t, "In your own words: What is inertia?", card.Question)
	assert.Nil(t, card.FollowUp)

	// A partial answer triggers a follow-up round.
	rec = testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/answer", `{"answer":"Objects keep moving."}`, token, http.StatusOK)
	answer := testutils.ParseResponse[contract.AnswerResponse](t, rec)
	assert.False(t, answer.Evaluation.IsCorrect)
	assert.True(t, answer.CanFollowUp)
	assert.Equal(t, "Resistance to change in motion.", answer.ExpectedAnswer)
	require.Len(t, answer.History, 1)
	require.NotNil(t, answer.Session)
	assert.Equal(t, db.StateFollowUp, answer.Session.State)
	assert.Equal(t, 1, answer.Session.FollowUpCount)

	// The card view now shows the follow-up question.
	rec = testutils.PerformRequest(t, e, http.MethodGet, "/v1/sessions/"+sessionID+"/card", "", token, http.StatusOK)
	card = testutils.ParseResponse[contract.CardView](t, rec)
	assert.Equal(t, db.StateFollowUp, card.State)
	require.NotNil(t, card.FollowUp)
	assert.Equal(t, followUp, *card.FollowUp)

	// A full answer ends the dialogue for this card.
	rec = testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/answer", `{"answer":"Friction decelerates it."}`, token, http.StatusOK)
	answer = testutils.ParseResponse[contract.AnswerResponse](t, rec)
	assert.True(t, answer.Evaluation.IsCorrect)
	assert.False(t, answer.CanFollowUp)
	require.Len(t, answer.History, 2)
	assert.Equal(t, db.StateEvaluating, answer.Session.State)

	// Save the rephrased card back to Mochi.
	rec = testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/save", "", token, http.StatusOK)
	saved := testutils.ParseResponse[contract.SaveCardResponse](t, rec)
	assert.Equal(t, "mochi-card-1", saved.MochiCardID)
	require.NotNil(t, saved.Session)
	assert.Equal(t, 1, saved.Session.CurrentIndex)
	assert.Equal(t, db.StateQuestion, saved.Session.State)
	assert.Equal(t, 1, saved.Session.CardsSaved)

	created := mock.createdCards()
	require.Len(t, created, 1)
	assert.Contains(t, created[0].Content, "In your own words: What is inertia?")
	assert.Contains(t, created[0].Content, "Original: What is inertia?")
	assert.Equal(t, []string{"feynman", "rephrased"}, created[0].ManualTags)

	// The review card landed in a Feynman subdeck under the studied deck.
	var reviewDeck mochi.Deck
	for _, deck := range mock.decks {
		if deck.ID == created[0].DeckID {
			reviewDeck = deck
		}
	}
	assert.Equal(t, mochi.ReviewDeckName, reviewDeck.Name)
	assert.Equal(t, "d1", reviewDeck.ParentID)

	// Skip the second card; the session completes.
	rec = testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/skip", "", token, http.StatusOK)
	var session db.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, db.StateComplete, session.State)
	assert.Equal(t, 1, session.CardsSkipped)
	assert.NotNil(t, session.CompletedAt)

	// The card view reports completion.
	rec = testutils.PerformRequest(t, e, http.MethodGet, "/v1/sessions/"+sessionID+"/card", "", token, http.StatusOK)
	card = testutils.ParseResponse[contract.CardView](t, rec)
	assert.Equal(t, db.StateComplete, card.State)

	// Further answers are rejected.
	testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/answer", `{"answer":"too late"}`, token, http.StatusConflict)

	// The completed session carries a dialogue summary.
	rec = testutils.PerformRequest(t, e, http.MethodGet, "/v1/sessions/"+sessionID, "", token, http.StatusOK)
	detail := testutils.ParseResponse[contract.SessionDetailResponse](t, rec)
	require.NotNil(t, detail.Summary)
	assert.Equal(t, 2, detail.Summary.AnswersEvaluated)
	assert.InDelta(t, 0.7, detail.Summary.AvgScore, 0.001)

	// Stats reflect the finished session.
	rec = testutils.PerformRequest(t, e, http.MethodGet, "/v1/stats", "", token, http.StatusOK)
	stats := testutils.ParseResponse[db.StudyStats](t, rec)
	assert.Equal(t, 1, stats.CardsAnsweredToday)
	assert.Equal(t, 2, stats.TotalExchanges)
	assert.Equal(t, 1, stats.CardsSaved)
	assert.Equal(t, 1, stats.SessionsCompleted)
}

func TestFollowUpCap(t *testing.T) {
	mock := physicsMock()
	server := mock.start(t)

	// The model always wants to keep probing; the cap must end the dialogue.
	followUp := "Can you go deeper?"
	dialogue := &testutils.StubDialogue{
		EvaluateFunc: func(ctx context.Context, question, expectedAnswer, userAnswer string, history []ai.Exchange) (*ai.Evaluation, error) {
			return &ai.Evaluation{IsCorrect: false, Score: 0.4, Feedback: "Keep going.", FollowUp: &followUp}, nil
		},
	}

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL, Dialogue: dialogue})
	resp := testutils.ConnectHelper(t, e)
	token := resp.Token

	rec := testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions", `{"deck_id":"d1"}`, token, http.StatusCreated)
	started := testutils.ParseResponse[contract.StartSessionResponse](t, rec)
	require.NotNil(t, started.Session)
	sessionID := started.Session.ID

	testutils.PerformRequest(t, e, http.MethodGet, "/v1/sessions/"+sessionID+"/card", "", token, http.StatusOK)

	for round := 1; round <= db.MaxFollowUps; round++ {
		rec = testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/answer", `{"answer":"Still thinking."}`, token, http.StatusOK)
		answer := testutils.ParseResponse[contract.AnswerResponse](t, rec)
		assert.True(t, answer.CanFollowUp, "round %d", round)
		require.NotNil(t, answer.Session)
		assert.Equal(t, db.StateFollowUp, answer.Session.State, "round %d", round)
		assert.Equal(t, round, answer.Session.FollowUpCount, "round %d", round)
	}

	// The answer after the last allowed follow-up lands in evaluating even
	// though the evaluation still carries a follow-up question.
	rec = testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/answer", `{"answer":"Still thinking."}`, token, http.StatusOK)
	answer := testutils.ParseResponse[contract.AnswerResponse](t, rec)
	assert.False(t, answer.CanFollowUp)
	assert.Equal(t, db.StateEvaluating, answer.Session.State)
	require.Len(t, answer.History, db.MaxFollowUps+1)
}

func TestCorrectAnswerEndsDialogue(t *testing.T) {
	mock := physicsMock()
	server := mock.start(t)

	// A correct answer rests the card even when the model offers a follow-up.
	followUp := "Want to explore friction too?"
	dialogue := &testutils.StubDialogue{
		EvaluateFunc: func(ctx context.Context, question, expectedAnswer, userAnswer string, history []ai.Exchange) (*ai.Evaluation, error) {
			return &ai.Evaluation{IsCorrect: true, Score: 0.95, Feedback: "Exactly.", FollowUp: &followUp}, nil
		},
	}

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL, Dialogue: dialogue})
	resp := testutils.ConnectHelper(t, e)
	token := resp.Token

	rec := testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions", `{"deck_id":"d1"}`, token, http.StatusCreated)
	started := testutils.ParseResponse[contract.StartSessionResponse](t, rec)
	require.NotNil(t, started.Session)
	sessionID := started.Session.ID

	testutils.PerformRequest(t, e, http.MethodGet, "/v1/sessions/"+sessionID+"/card", "", token, http.StatusOK)

	rec = testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/answer", `{"answer":"Resistance to change in motion."}`, token, http.StatusOK)
	answer := testutils.ParseResponse[contract.AnswerResponse](t, rec)
	assert.False(t, answer.CanFollowUp)
	require.NotNil(t, answer.Session)
	assert.Equal(t, db.StateEvaluating, answer.Session.State)
	assert.Equal(t, 0, answer.Session.FollowUpCount)
}

func TestSubmitAnswerValidation(t *testing.T) {
	mock := physicsMock()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL})
	resp := testutils.ConnectHelper(t, e)

	rec := testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions", `{"deck_id":"d1"}`, resp.Token, http.StatusCreated)
	started := testutils.ParseResponse[contract.StartSessionResponse](t, rec)
	require.NotNil(t, started.Session)

	testutils.PerformRequest(t, e, http.MethodPost, "/v1/sessions/"+started.Session.ID+"/answer", `{}`, resp.Token, http.StatusBadRequest)
}

func TestGetSessionNotFound(t *testing.T) {
	mock := physicsMock()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL})
	resp := testutils.ConnectHelper(t, e)

	testutils.PerformRequest(t, e, http.MethodGet, "/v1/sessions/unknown", "", resp.Token, http.StatusNotFound)
}
