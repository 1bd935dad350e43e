package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
	"github.com/maarten-devries/feynman-flashcards/internal/handler"
	"github.com/maarten-devries/feynman-flashcards/internal/middleware"
	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
	"github.com/maarten-devries/feynman-flashcards/internal/storage"
)

const (
	TestJWTSecret = "hello-world"
	TestDBPath    = ":memory:" // Use in-memory SQLite for tests
)

// CustomValidator implements the echo.Validator interface
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the provided struct
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// StubDialogue is a configurable ai.Dialogue for handler tests. Zero value
// rephrases with a fixed prefix and grades every answer correct.
type StubDialogue struct {
	RephraseFunc func(ctx context.Context, question, answer, topic string) (string, error)
	EvaluateFunc func(ctx context.Context, question, expectedAnswer, userAnswer string, history []ai.Exchange) (*ai.Evaluation, error)
}

func (s *StubDialogue) RephraseQuestion(ctx context.Context, question, answer, topic string) (string, error) {
	if s.RephraseFunc != nil {
		return s.RephraseFunc(ctx, question, answer, topic)
	}
	return "In your own words: " + question, nil
}

func (s *StubDialogue) EvaluateAnswer(ctx context.Context, question, expectedAnswer, userAnswer string, history []ai.Exchange) (*ai.Evaluation, error) {
	if s.EvaluateFunc != nil {
		return s.EvaluateFunc(ctx, question, expectedAnswer, userAnswer, history)
	}
	return &ai.Evaluation{IsCorrect: true, Score: 0.9, Feedback: "Good explanation."}, nil
}

type StubTranscriber struct {
	Text string
}

func (s *StubTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return s.Text, nil
}

type StubSynthesizer struct {
	Audio []byte
}

func (s *StubSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	return s.Audio, "audio/mpeg", nil
}

// Deps are the swappable handler dependencies for a test. MochiURL must
// point at a mock Mochi server; nil AI stubs leave the feature unconfigured,
// except Dialogue which defaults to a permissive stub.
type Deps struct {
	MochiURL    string
	Dialogue    ai.Dialogue
	Transcriber ai.Transcriber
	Synthesizer ai.Synthesizer
	Storage     storage.Provider
}

// SetupHandlerDependencies builds an Echo instance with a fresh in-memory
// database and the given dependencies, mirroring the production wiring.
func SetupHandlerDependencies(t *testing.T, deps Deps) *echo.Echo {
	dbStorage, err := db.ConnectDB(TestDBPath)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() {
		if err := dbStorage.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})

	mochiClient, err := mochi.NewClientWithBaseURL("test-api-key", deps.MochiURL)
	if err != nil {
		t.Fatalf("Failed to create mochi client: %v", err)
	}

	dialogue := deps.Dialogue
	if dialogue == nil {
		dialogue = &StubDialogue{}
	}

	h := handler.New(dbStorage, mochiClient, dialogue, deps.Transcriber, deps.Synthesizer, deps.Storage, TestJWTSecret)

	e := echo.New()

	logr := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	middleware.Setup(e, logr)

	e.Validator = &CustomValidator{validator: validator.New()}

	h.RegisterRoutes(e)

	return e
}

func PerformRequest(t *testing.T, e *echo.Echo, method, path, body, token string, expectedStatus int) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != expectedStatus {
		t.Errorf("Expected status %d, got %d, body: %s", expectedStatus, rec.Code, rec.Body.String())
	}
	return rec
}

func ParseResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var result T
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return result
}

// ConnectHelper performs the connect handshake and returns the issued token.
func ConnectHelper(t *testing.T, e *echo.Echo) contract.ConnectResponse {
	body := fmt.Sprintf(`{"name":%q}`, "Test User")
	rec := PerformRequest(t, e, http.MethodPost, "/auth/connect", body, "", http.StatusOK)
	return ParseResponse[contract.ConnectResponse](t, rec)
}
