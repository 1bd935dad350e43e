package ai

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// GoogleSynthesizer is an alternative TTS backend using Google Cloud
// Text-to-Speech. It relies on application default credentials.
type GoogleSynthesizer struct {
	ttsClient *texttospeech.Client
}

func NewGoogleSynthesizer(ctx context.Context) (*GoogleSynthesizer, error) {
	ttsClient, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google TTS client: %w", err)
	}

	return &GoogleSynthesizer{
		ttsClient: ttsClient,
	}, nil
}

func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			EffectsProfileId: []string{"handset-class-device"},
			AudioEncoding:    texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:     1.0,
			Pitch:            0.0,
		},
	}

	response, err := g.ttsClient.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("error generating audio with Google TTS: %w", err)
	}

	return response.AudioContent, "audio/mpeg", nil
}

func (g *GoogleSynthesizer) Close() error {
	return g.ttsClient.Close()
}
