package mochi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
)

func TestDeckTreeDisplayName(t *testing.T) {
	decks := []mochi.Deck{
		{ID: "root", Name: "Science"},
		{ID: "physics", Name: "Physics", ParentID: "root"},
		{ID: "mech", Name: "Mechanics", ParentID: "physics"},
		{ID: "rot", Name: "Rotation", ParentID: "mech"},
		{ID: "gyro", Name: "Gyroscopes", ParentID: "rot"},
		{ID: "orphan", Name: "Orphan", ParentID: "gone"},
	}

	tree := mochi.BuildDeckTree(decks)

	assert.Equal(t, "Science", tree.DisplayName(decks[0]))
	assert.Equal(t, "Science / Physics", tree.DisplayName(decks[1]))
	assert.Equal(t, "Science / Physics / Mechanics / Rotation", tree.DisplayName(decks[3]))
	// Ancestors are capped, so the root drops off for deep decks.
	assert.Equal(t, "Physics / Mechanics / Rotation / Gyroscopes", tree.DisplayName(decks[4]))
	// Missing parents just truncate the path.
	assert.Equal(t, "Orphan", tree.DisplayName(decks[5]))
}

func TestGetOrCreateReviewDeckExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"docs": [
			{"id": "d1", "name": "Physics"},
			{"id": "f1", "name": "Feynman", "parent-id": "d1"}
		], "bookmark": ""}`))
	}))
	defer server.Close()

	client, err := mochi.NewClientWithBaseURL("test-key", server.URL)
	require.NoError(t, err)

	deckID, err := client.GetOrCreateReviewDeck(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "f1", deckID)
}

func TestGetOrCreateReviewDeckCreates(t *testing.T) {
	var created map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			// A Feynman deck exists, but under a different parent.
			_, _ = w.Write([]byte(`{"docs": [
				{"id": "d1", "name": "Physics"},
				{"id": "f2", "name": "Feynman", "parent-id": "other"}
			], "bookmark": ""}`))
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": "f-new", "name": "Feynman", "parent-id": "d1"}`))
		}
	}))
	defer server.Close()

	client, err := mochi.NewClientWithBaseURL("test-key", server.URL)
	require.NoError(t, err)

	deckID, err := client.GetOrCreateReviewDeck(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "f-new", deckID)
	assert.Equal(t, "Feynman", created["name"])
	assert.Equal(t, "d1", created["parent-id"])
}
