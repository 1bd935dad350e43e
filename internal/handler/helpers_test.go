package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
)

// mockMochi is an in-memory stand-in for the Mochi API, covering the
// endpoints the handlers touch.
type mockMochi struct {
	mu           sync.Mutex
	decks        []mochi.Deck
	due          map[string][]mochi.Card
	created      []mochi.Card
	updated      map[string]string
	unauthorized bool
}

func newMockMochi() *mockMochi {
	return &mockMochi{
		due:     map[string][]mochi.Card{},
		updated: map[string]string{},
	}
}

func (m *mockMochi) start(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /decks", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		writeJSON(w, map[string]interface{}{"docs": m.decks, "bookmark": ""})
	})

	mux.HandleFunc("POST /decks", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)

		m.mu.Lock()
		defer m.mu.Unlock()
		deck := mochi.Deck{
			ID:       fmt.Sprintf("deck-%d", len(m.decks)+1),
			Name:     payload["name"],
			ParentID: payload["parent-id"],
		}
		m.decks = append(m.decks, deck)

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, deck)
	})

	mux.HandleFunc("GET /due/{id}", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		cards := m.due[r.PathValue("id")]
		if cards == nil {
			cards = []mochi.Card{}
		}
		writeJSON(w, map[string]interface{}{"cards": cards})
	})

	mux.HandleFunc("POST /cards", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Content    string   `json:"content"`
			DeckID     string   `json:"deck-id"`
			ManualTags []string `json:"manual-tags"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)

		m.mu.Lock()
		defer m.mu.Unlock()
		card := mochi.Card{
			ID:         fmt.Sprintf("mochi-card-%d", len(m.created)+1),
			DeckID:     payload.DeckID,
			Content:    payload.Content,
			ManualTags: payload.ManualTags,
		}
		m.created = append(m.created, card)

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, card)
	})

	mux.HandleFunc("POST /cards/{id}", func(w http.ResponseWriter, r *http.Request) {
		cardID := r.PathValue("id")
		if cardID == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.updated[cardID] = payload["content"]

		writeJSON(w, mochi.Card{ID: cardID, Content: payload["content"]})
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		unauthorized := m.unauthorized
		m.mu.Unlock()
		if unauthorized {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	return server
}

func (m *mockMochi) createdCards() []mochi.Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mochi.Card(nil), m.created...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
