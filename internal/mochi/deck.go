package mochi

import (
	"context"
	"fmt"
	"strings"
)

// ReviewDeckName is the name of the subdeck that holds rephrased cards.
const ReviewDeckName = "Feynman"

// maxDisplayDepth caps how many ancestors a deck display name shows.
const maxDisplayDepth = 3

type DeckNode struct {
	Deck
	Children []string
}

// DeckTree maps deck IDs to their node with child links, built from the
// flat list Mochi returns.
type DeckTree map[string]*DeckNode

func BuildDeckTree(decks []Deck) DeckTree {
	tree := make(DeckTree, len(decks))
	for _, deck := range decks {
		tree[deck.ID] = &DeckNode{Deck: deck}
	}

	for _, deck := range decks {
		if deck.ParentID == "" {
			continue
		}
		if parent, ok := tree[deck.ParentID]; ok {
			parent.Children = append(parent.Children, deck.ID)
		}
	}

	return tree
}

// DisplayName renders a deck's place in the hierarchy, e.g.
// "Physics / Mechanics / Rotation".
func (t DeckTree) DisplayName(deck Deck) string {
	parts := []string{deck.Name}

	current := deck
	for depth := 0; current.ParentID != "" && depth < maxDisplayDepth; depth++ {
		parent, ok := t[current.ParentID]
		if !ok {
			break
		}
		parts = append([]string{parent.Name}, parts...)
		current = parent.Deck
	}

	return strings.Join(parts, " / ")
}

// GetOrCreateReviewDeck finds the "Feynman" subdeck under the given parent
// deck, creating it if missing. Rephrased cards land there so they get
// scheduled by Mochi like any other deck.
func (c *Client) GetOrCreateReviewDeck(ctx context.Context, parentDeckID string) (string, error) {
	decks, err := c.ListDecks(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing decks: %w", err)
	}

	for _, deck := range decks {
		if deck.Name == ReviewDeckName && deck.ParentID == parentDeckID {
			return deck.ID, nil
		}
	}

	created, err := c.CreateDeck(ctx, ReviewDeckName, parentDeckID)
	if err != nil {
		return "", fmt.Errorf("error creating review deck: %w", err)
	}

	return created.ID, nil
}
