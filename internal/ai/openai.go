package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const speechInstructions = "Speak clearly and at a moderate pace, like a friendly tutor."

// OpenAIClient provides speech-to-text and text-to-speech. It is optional:
// when no OpenAI key is configured the voice endpoints are disabled.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &OpenAIClient{
		client: &client,
	}, nil
}

// ValidateKey checks the API key by listing models.
func (c *OpenAIClient) ValidateKey(ctx context.Context) (bool, string) {
	if _, err := c.client.Models.List(ctx); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "401") {
			return false, "invalid API key"
		}
		return false, fmt.Sprintf("connection error: %v", err)
	}

	return true, "connected to OpenAI"
}

// Transcribe converts recorded audio into text. The filename carries the
// format hint for the API (e.g. "answer.webm").
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}

	response, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelGPT4oTranscribe,
		File:  openai.File(bytes.NewReader(audio), filename, "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("error transcribing audio: %w", err)
	}

	return strings.TrimSpace(response.Text), nil
}

// Synthesize renders text as MP3 speech with the tutor voice.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelGPT4oMiniTTS,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoiceCoral,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Instructions:   openai.String(speechInstructions),
	}

	response, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, "", fmt.Errorf("error generating audio: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, "", fmt.Errorf("error reading response body: %w", err)
	}

	return body, "audio/mpeg", nil
}
