package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
)

const tokenTTL = 24 * time.Hour

// keyValidator is implemented by AI clients that can check their upstream
// credentials. Test stubs typically don't.
type keyValidator interface {
	ValidateKey(ctx context.Context) (bool, string)
}

func validateDialogue(ctx context.Context, d ai.Dialogue) (bool, string) {
	if v, ok := d.(keyValidator); ok {
		return v.ValidateKey(ctx)
	}
	return true, "configured"
}

func validateTranscriber(ctx context.Context, t ai.Transcriber) (bool, string) {
	if v, ok := t.(keyValidator); ok {
		return v.ValidateKey(ctx)
	}
	return true, "configured"
}

// Connect validates the configured upstream API keys and, when the
// required services (Mochi, Anthropic) check out, issues a session token.
func (h *Handler) Connect(c echo.Context) error {
	var req contract.ConnectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to bind request")
	}

	ctx := c.Request().Context()

	resp := contract.ConnectResponse{}

	ok, msg := h.mochi.ValidateKey(ctx)
	resp.Mochi = contract.ServiceStatus{Connected: ok, Message: msg}

	ok, msg = validateDialogue(ctx, h.dialogue)
	resp.Anthropic = contract.ServiceStatus{Connected: ok, Message: msg}

	if h.transcriber != nil {
		ok, msg = validateTranscriber(ctx, h.transcriber)
		resp.OpenAI = &contract.ServiceStatus{Connected: ok, Message: msg}
	}

	if !resp.Mochi.Connected || !resp.Anthropic.Connected {
		return c.JSON(http.StatusUnauthorized, resp)
	}

	user, err := h.db.GetPrimaryUser()
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to get user").SetInternal(err)
		}
		user, err = h.db.SaveUser(req.Name)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to save user").SetInternal(err)
		}
	}

	token, err := generateJWT(user.ID, h.jwtSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate JWT").SetInternal(err)
	}

	resp.Token = token
	resp.User = *user

	return c.JSON(http.StatusOK, resp)
}

func generateJWT(userID, secretKey string) (string, error) {
	claims := &contract.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
		UID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	t, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", err
	}

	return t, nil
}
