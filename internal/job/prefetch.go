package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
)

const (
	// PrefetchInterval is how often the rephrase prefetch job runs.
	PrefetchInterval = 30 * time.Second
	// PrefetchBatchSize caps how many cards one run rephrases.
	PrefetchBatchSize = 5
)

// RephrasePrefetcher generates rephrased questions for upcoming session
// cards in the background, so GetCurrentCard rarely has to wait on the
// model.
type RephrasePrefetcher struct {
	storage     *db.Storage
	dialogue    ai.Dialogue
	stopCh      chan struct{}
	runningLock chan struct{} // Used to ensure only one prefetch run at a time
}

func NewRephrasePrefetcher(storage *db.Storage, dialogue ai.Dialogue) *RephrasePrefetcher {
	return &RephrasePrefetcher{
		storage:     storage,
		dialogue:    dialogue,
		stopCh:      make(chan struct{}),
		runningLock: make(chan struct{}, 1), // Buffer of 1 allows us to use it as a semaphore
	}
}

// Start begins the prefetch loop. It blocks until Stop is called.
func (p *RephrasePrefetcher) Start() {
	slog.Info("starting rephrase prefetch job")

	ticker := time.NewTicker(PrefetchInterval)
	defer ticker.Stop()

	go p.prefetch()

	for {
		select {
		case <-ticker.C:
			go p.prefetch()
		case <-p.stopCh:
			slog.Info("rephrase prefetch job stopped")
			return
		}
	}
}

func (p *RephrasePrefetcher) Stop() {
	close(p.stopCh)
}

func (p *RephrasePrefetcher) prefetch() {
	select {
	case p.runningLock <- struct{}{}:
		defer func() { <-p.runningLock }()
	default:
		// Another run is still in flight.
		return
	}

	cards, err := p.storage.GetPendingRephrases(PrefetchBatchSize)
	if err != nil {
		slog.Error("error getting pending rephrases", "error", err)
		return
	}

	if len(cards) == 0 {
		return
	}

	slog.Info("prefetching rephrased questions", "count", len(cards))

	ctx := context.Background()

	for _, card := range cards {
		session, err := p.storage.GetSession(card.SessionID)
		if err != nil {
			slog.Error("error getting session for prefetch", "session_id", card.SessionID, "error", err)
			continue
		}

		rephrased, err := p.dialogue.RephraseQuestion(ctx, card.Question, card.Answer, session.DeckName)
		if err != nil {
			slog.Error("error rephrasing question", "session_card_id", card.ID, "error", err)
			continue
		}

		if err := p.storage.SetRephrased(card.ID, rephrased); err != nil {
			slog.Error("error storing rephrased question", "session_card_id", card.ID, "error", err)
		}
	}
}
