package handler

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
	"github.com/maarten-devries/feynman-flashcards/internal/middleware"
	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
	"github.com/maarten-devries/feynman-flashcards/internal/storage"
)

type Handler struct {
	db              *db.Storage
	mochi           *mochi.Client
	dialogue        ai.Dialogue
	transcriber     ai.Transcriber
	synthesizer     ai.Synthesizer
	storageProvider storage.Provider
	jwtSecret       string
}

// New builds the handler. transcriber, synthesizer and storageProvider may
// be nil; the corresponding endpoints degrade gracefully.
func New(
	db *db.Storage,
	mochiClient *mochi.Client,
	dialogue ai.Dialogue,
	transcriber ai.Transcriber,
	synthesizer ai.Synthesizer,
	storageProvider storage.Provider,
	jwtSecret string,
) *Handler {
	return &Handler{
		db:              db,
		mochi:           mochiClient,
		dialogue:        dialogue,
		transcriber:     transcriber,
		synthesizer:     synthesizer,
		storageProvider: storageProvider,
		jwtSecret:       jwtSecret,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/connect", h.Connect)

	v1 := e.Group("/v1")
	v1.Use(echojwt.WithConfig(middleware.GetUserAuthConfig(h.jwtSecret)))

	v1.GET("/decks", h.GetDecks)

	v1.POST("/sessions", h.StartSession)
	v1.GET("/sessions/:id", h.GetSession)
	v1.GET("/sessions/:id/card", h.GetCurrentCard)
	v1.POST("/sessions/:id/answer", h.SubmitAnswer)
	v1.POST("/sessions/:id/skip", h.SkipCard)
	v1.POST("/sessions/:id/save", h.SaveCard)

	v1.PUT("/cards/:id", h.UpdateCard)

	v1.POST("/speech/transcriptions", h.Transcribe)
	v1.POST("/speech/speech", h.Synthesize)

	v1.GET("/stats", h.GetStats)
}

func GetUserIDFromToken(c echo.Context) (string, error) {
	user, ok := c.Get("user").(*jwt.Token)
	if !ok || user == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	claims, ok := user.Claims.(*contract.JWTClaims)
	if !ok || claims == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	return claims.UID, nil
}
