package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maarten-devries/feynman-flashcards/internal/contract"
)

// maxAudioUploadBytes caps recorded answers at 25 MB, the transcription
// API's own limit.
const maxAudioUploadBytes = 25 << 20

// Transcribe converts an uploaded audio recording into text. Returns 503
// when no speech backend is configured.
func (h *Handler) Transcribe(c echo.Context) error {
	if _, err := GetUserIDFromToken(c); err != nil {
		return err
	}

	if h.transcriber == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "speech recognition is not configured")
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "audio file is required")
	}
	if fileHeader.Size > maxAudioUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "audio file too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open audio file")
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read audio file").SetInternal(err)
	}

	text, err := h.transcriber.Transcribe(c.Request().Context(), audio, fileHeader.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to transcribe audio").SetInternal(err)
	}

	return c.JSON(http.StatusOK, contract.TranscriptionResponse{Text: text})
}

// Synthesize turns text into speech. With a storage provider configured the
// audio is uploaded and a URL returned; otherwise the bytes stream inline.
func (h *Handler) Synthesize(c echo.Context) error {
	if _, err := GetUserIDFromToken(c); err != nil {
		return err
	}

	if h.synthesizer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "speech synthesis is not configured")
	}

	var req contract.SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to bind request")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	audio, contentType, err := h.synthesizer.Synthesize(ctx, req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to synthesize speech").SetInternal(err)
	}

	if h.storageProvider != nil {
		fileName := fmt.Sprintf("speech/%s.mp3", nanoid.Must())
		url, err := h.storageProvider.UploadFile(ctx, bytes.NewReader(audio), fileName, contentType)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to store audio").SetInternal(err)
		}
		return c.JSON(http.StatusOK, contract.SynthesizeURLResponse{AudioURL: url})
	}

	return c.Blob(http.StatusOK, contentType, audio)
}
