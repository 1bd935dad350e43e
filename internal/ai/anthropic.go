package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	anthropicModel   = "claude-sonnet-4-20250514"
)

const rephraseSystemPrompt = `You are an expert educator helping students deeply understand concepts.

Your task is to rephrase flashcard questions to test the SAME concept but with different wording.
This prevents students from memorizing card layouts instead of actual knowledge.

Guidelines:
- Preserve the core concept and difficulty level
- Use different wording, analogies, or contexts
- The same answer should still be correct
- Be concise - this is a flashcard, not an essay question
- Do NOT include the answer in your rephrased question
- Vary your approach: sometimes ask for definitions, sometimes for examples, sometimes for comparisons`

const evaluateSystemPrompt = `You are a Socratic tutor evaluating student understanding.

Your role is to:
1. Assess if the student's answer demonstrates understanding of the core concept
2. Provide constructive feedback
3. If understanding is incomplete, ask a follow-up question to probe deeper

Be encouraging but honest. Focus on conceptual understanding, not exact wording.
A partially correct answer should get a follow-up question to clarify gaps.

Respond only with JSON in this format:
{
    "is_correct": true/false,
    "score": 0.0-1.0,
    "feedback": "Your explanation of what's right/wrong",
    "follow_up": "A follow-up question if needed, or null if understanding is complete"
}`

// AnthropicClient implements Dialogue against the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	return NewAnthropicClientWithBaseURL(apiKey, anthropicBaseURL)
}

// NewAnthropicClientWithBaseURL is used by tests to point the client at a
// local server.
func NewAnthropicClientWithBaseURL(apiKey, baseURL string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   anthropicModel,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) sendMessage(ctx context.Context, reqBody anthropicRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResponse anthropicErrorResponse
		if err := json.Unmarshal(responseBody, &errorResponse); err == nil && errorResponse.Error.Message != "" {
			return "", fmt.Errorf("Anthropic API error [%s]: %s", errorResponse.Error.Type, errorResponse.Error.Message)
		}
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(responseBody))
	}

	var response anthropicResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content found in response")
	}

	return response.Content[0].Text, nil
}

// ValidateKey checks the API key with a minimal one-token request.
func (c *AnthropicClient) ValidateKey(ctx context.Context) (bool, string) {
	_, err := c.sendMessage(ctx, anthropicRequest{
		Model:     c.model,
		MaxTokens: 1,
		Messages: []anthropicMessage{
			{Role: "user", Content: "ping"},
		},
	})
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "authentication_error") || strings.Contains(msg, "status 401") {
			return false, "invalid API key"
		}
		return false, fmt.Sprintf("connection error: %v", err)
	}

	return true, "connected to Anthropic"
}

// RephraseQuestion asks the model for a same-concept, differently-worded
// version of a card question. The expected answer is included so the model
// preserves difficulty, but never echoed into the result.
func (c *AnthropicClient) RephraseQuestion(ctx context.Context, question, answer, topic string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rephrase this flashcard question:\n\nOriginal Question: %s\n\nExpected Answer: %s\n", question, answer)
	if topic != "" {
		fmt.Fprintf(&sb, "\nContext: %s\n", topic)
	}
	sb.WriteString("\nProvide ONLY the rephrased question, nothing else.")

	text, err := c.sendMessage(ctx, anthropicRequest{
		Model:       c.model,
		MaxTokens:   300,
		Temperature: 0.8,
		System:      rephraseSystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: sb.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("error rephrasing question: %w", err)
	}

	return strings.TrimSpace(text), nil
}

// EvaluateAnswer grades a student answer against the expected one and, when
// understanding is incomplete, returns a follow-up question. Prior exchanges
// are replayed so the model sees the whole dialogue.
func (c *AnthropicClient) EvaluateAnswer(ctx context.Context, question, expectedAnswer, userAnswer string, history []Exchange) (*Evaluation, error) {
	messages := make([]anthropicMessage, 0, 2*len(history)+1)
	for _, entry := range history {
		evalJSON, err := json.Marshal(entry.Evaluation)
		if err != nil {
			return nil, fmt.Errorf("error marshaling prior evaluation: %w", err)
		}
		messages = append(messages,
			anthropicMessage{Role: "assistant", Content: string(evalJSON)},
			anthropicMessage{Role: "user", Content: "Student's response: " + entry.UserAnswer},
		)
	}

	prompt := fmt.Sprintf(`Question asked: %s

Expected answer: %s

Student's answer: %s

Evaluate this answer and respond in JSON format.`, question, expectedAnswer, userAnswer)

	messages = append(messages, anthropicMessage{Role: "user", Content: prompt})

	text, err := c.sendMessage(ctx, anthropicRequest{
		Model:       c.model,
		MaxTokens:   500,
		Temperature: 0.3,
		System:      evaluateSystemPrompt,
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("error evaluating answer: %w", err)
	}

	evaluation, err := parseEvaluation(text)
	if err != nil {
		return nil, err
	}

	return evaluation, nil
}

// parseEvaluation decodes the model's JSON verdict, tolerating markdown
// code fences around the payload.
func parseEvaluation(text string) (*Evaluation, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var evaluation Evaluation
	if err := json.Unmarshal([]byte(trimmed), &evaluation); err != nil {
		return nil, fmt.Errorf("error parsing evaluation: %w", err)
	}

	if evaluation.Feedback == "" {
		evaluation.Feedback = "Unable to evaluate."
	}
	if evaluation.FollowUp != nil && strings.TrimSpace(*evaluation.FollowUp) == "" {
		evaluation.FollowUp = nil
	}

	return &evaluation, nil
}
