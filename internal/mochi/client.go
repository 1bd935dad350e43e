package mochi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://app.mochi.cards/api"

var ErrNotFound = errors.New("mochi: not found")

// Client talks to the Mochi cards REST API. Authentication is HTTP Basic
// with the API key as username and an empty password.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string) (*Client, error) {
	return NewClientWithBaseURL(apiKey, DefaultBaseURL)
}

// NewClientWithBaseURL is used by tests to point the client at a local server.
func NewClientWithBaseURL(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("mochi API key is required")
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type Deck struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent-id,omitempty"`
}

type Card struct {
	ID         string   `json:"id"`
	DeckID     string   `json:"deck-id"`
	Content    string   `json:"content"`
	ManualTags []string `json:"manual-tags,omitempty"`
}

type listPage[T any] struct {
	Docs     []T    `json:"docs"`
	Bookmark string `json:"bookmark"`
}

type apiError struct {
	Errors []string `json:"errors"`
}

func (c *Client) authHeader() string {
	encoded := base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":"))
	return "Basic " + encoded
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// doJSON performs a request and decodes the response body into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr apiError
		if err := json.Unmarshal(responseBody, &apiErr); err == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("mochi API error (status %d): %s", resp.StatusCode, apiErr.Errors[0])
		}
		return fmt.Errorf("mochi API error (status %d): %s", resp.StatusCode, string(responseBody))
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}

	return nil
}

// ValidateKey checks the API key by listing decks. It returns a short
// human-readable status message alongside the result.
func (c *Client) ValidateKey(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/decks", nil)
	if err != nil {
		return false, fmt.Sprintf("connection error: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, "connection timed out"
		}
		return false, fmt.Sprintf("connection error: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, "connected to Mochi"
	case http.StatusUnauthorized:
		return false, "invalid API key"
	default:
		return false, fmt.Sprintf("error: %d", resp.StatusCode)
	}
}

// ListDecks fetches every deck, following bookmark pagination until the
// bookmark stops changing.
func (c *Client) ListDecks(ctx context.Context) ([]Deck, error) {
	var decks []Deck
	bookmark := ""

	for {
		path := "/decks"
		if bookmark != "" {
			path += "?bookmark=" + bookmark
		}

		var page listPage[Deck]
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("error listing decks: %w", err)
		}

		decks = append(decks, page.Docs...)

		if page.Bookmark == "" || page.Bookmark == bookmark {
			break
		}
		bookmark = page.Bookmark
	}

	return decks, nil
}

// ListCards fetches every card in a deck, 100 per page.
func (c *Client) ListCards(ctx context.Context, deckID string) ([]Card, error) {
	var cards []Card
	bookmark := ""

	for {
		path := fmt.Sprintf("/cards?deck-id=%s&limit=100", deckID)
		if bookmark != "" {
			path += "&bookmark=" + bookmark
		}

		var page listPage[Card]
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("error listing cards: %w", err)
		}

		cards = append(cards, page.Docs...)

		if page.Bookmark == "" || page.Bookmark == bookmark || len(page.Docs) == 0 {
			break
		}
		bookmark = page.Bookmark
	}

	return cards, nil
}

// DueCards returns the cards Mochi considers due for review. An empty
// deckID asks for due cards across all decks.
func (c *Client) DueCards(ctx context.Context, deckID string) ([]Card, error) {
	path := "/due"
	if deckID != "" {
		path = "/due/" + deckID
	}

	var result struct {
		Cards []Card `json:"cards"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("error fetching due cards: %w", err)
	}

	return result.Cards, nil
}

func (c *Client) GetCard(ctx context.Context, cardID string) (*Card, error) {
	var card Card
	if err := c.doJSON(ctx, http.MethodGet, "/cards/"+cardID, nil, &card); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting card: %w", err)
	}

	return &card, nil
}

func (c *Client) CreateCard(ctx context.Context, deckID, content string, tags []string) (*Card, error) {
	payload := map[string]interface{}{
		"content": content,
		"deck-id": deckID,
	}
	if len(tags) > 0 {
		payload["manual-tags"] = tags
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling card payload: %w", err)
	}

	var card Card
	if err := c.doJSON(ctx, http.MethodPost, "/cards", body, &card); err != nil {
		return nil, fmt.Errorf("error creating card: %w", err)
	}

	return &card, nil
}

// UpdateCardContent replaces a card's markdown content. The Mochi API uses
// POST on the card resource for updates.
func (c *Client) UpdateCardContent(ctx context.Context, cardID, content string) (*Card, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, fmt.Errorf("error marshaling card payload: %w", err)
	}

	var card Card
	if err := c.doJSON(ctx, http.MethodPost, "/cards/"+cardID, body, &card); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error updating card: %w", err)
	}

	return &card, nil
}

func (c *Client) CreateDeck(ctx context.Context, name, parentID string) (*Deck, error) {
	payload := map[string]string{"name": name}
	if parentID != "" {
		payload["parent-id"] = parentID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling deck payload: %w", err)
	}

	var deck Deck
	if err := c.doJSON(ctx, http.MethodPost, "/decks", body, &deck); err != nil {
		return nil, fmt.Errorf("error creating deck: %w", err)
	}

	return &deck, nil
}

// GetAttachment downloads a card attachment and reports its content type.
func (c *Client) GetAttachment(ctx context.Context, cardID, filename string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/cards/%s/attachments/%s", cardID, filename), nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("error fetching attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("error fetching attachment (status %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("error reading attachment: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	return data, contentType, nil
}
