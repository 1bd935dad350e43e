package handler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maarten-devries/feynman-flashcards/internal/contract"
	"github.com/maarten-devries/feynman-flashcards/internal/testutils"
)

// stubStorage fakes the blob store by echoing a CDN-style URL.
type stubStorage struct{}

func (stubStorage) UploadFile(ctx context.Context, reader io.Reader, fileName string, contentType string) (string, error) {
	return "https://cdn.test/" + fileName, nil
}

func performMultipartUpload(t *testing.T, e *echo.Echo, path, field, filename string, data []byte, token string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func TestTranscribeUnconfigured(t *testing.T) {
	mock := newMockMochi()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL})
	resp := testutils.ConnectHelper(t, e)

	testutils.PerformRequest(t, e, http.MethodPost, "/v1/speech/transcriptions", "", resp.Token, http.StatusServiceUnavailable)
}

func TestTranscribe(t *testing.T) {
	mock := newMockMochi()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{
		MochiURL:    server.URL,
		Transcriber: &testutils.StubTranscriber{Text: "inertia is resistance to change"},
	})
	resp := testutils.ConnectHelper(t, e)

	rec := performMultipartUpload(t, e, "/v1/speech/transcriptions", "audio", "answer.webm", []byte("fake-audio"), resp.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := testutils.ParseResponse[contract.TranscriptionResponse](t, rec)
	assert.Equal(t, "inertia is resistance to change", result.Text)
}

func TestTranscribeMissingFile(t *testing.T) {
	mock := newMockMochi()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{
		MochiURL:    server.URL,
		Transcriber: &testutils.StubTranscriber{Text: "hello"},
	})
	resp := testutils.ConnectHelper(t, e)

	testutils.PerformRequest(t, e, http.MethodPost, "/v1/speech/transcriptions", "", resp.Token, http.StatusBadRequest)
}

func TestSynthesizeUnconfigured(t *testing.T) {
	mock := newMockMochi()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{MochiURL: server.URL})
	resp := testutils.ConnectHelper(t, e)

	testutils.PerformRequest(t, e, http.MethodPost, "/v1/speech/speech", `{"text":"hello"}`, resp.Token, http.StatusServiceUnavailable)
}

func TestSynthesizeInline(t *testing.T) {
	mock := newMockMochi()
	server := mock.start(t)

	audio := []byte{0x49, 0x44, 0x33}
	e := testutils.SetupHandlerDependencies(t, testutils.Deps{
		MochiURL:    server.URL,
		Synthesizer: &testutils.StubSynthesizer{Audio: audio},
	})
	resp := testutils.ConnectHelper(t, e)

	rec := testutils.PerformRequest(t, e, http.MethodPost, "/v1/speech/speech", `{"text":"Well done"}`, resp.Token, http.StatusOK)
	assert.Equal(t, "audio/mpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, audio, rec.Body.Bytes())
}

func TestSynthesizeWithStorage(t *testing.T) {
	mock := newMockMochi()
	server := mock.start(t)

	e := testutils.SetupHandlerDependencies(t, testutils.Deps{
		MochiURL:    server.URL,
		Synthesizer: &testutils.StubSynthesizer{Audio: []byte("mp3-bytes")},
		Storage:     stubStorage{},
	})
	resp := testutils.ConnectHelper(t, e)

	rec := testutils.PerformRequest(t, e, http.MethodPost, "/v1/speech/speech", `{"text":"Well done"}`, resp.Token, http.StatusOK)
	result := testutils.ParseResponse[contract.SynthesizeURLResponse](t, rec)

	assert.Contains(t, result.AudioURL, "https://cdn.test/speech/")
	assert.Contains(t, result.AudioURL, ".mp3")
}
