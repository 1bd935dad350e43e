package mochi

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// mediaRefPattern matches markdown image references into card-local media,
// e.g. ![](@media/diagram.png) or ![alt](@media/diagram.png).
var mediaRefPattern = regexp.MustCompile(`!\[([^\]]*)\]\(@media/([^)]+)\)`)

var sanitizePolicy = bluemonday.UGCPolicy()

// ParseContent splits raw Mochi card markdown into a question and an answer.
// Cards normally separate front and back with "---"; template cards using
// "<< Field >>" syntax have no usable answer side, so the whole content
// becomes the question. As a last resort the first line is the question.
func ParseContent(content string) (question, answer string) {
	if idx := strings.Index(content, "---"); idx >= 0 {
		question = strings.TrimSpace(content[:idx])
		answer = strings.TrimSpace(content[idx+len("---"):])
		question = strings.TrimSpace(strings.TrimLeft(question, "#"))
		return question, answer
	}

	if strings.Contains(content, "<<") && strings.Contains(content, ">>") {
		return content, ""
	}

	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	question = strings.TrimSpace(strings.TrimLeft(lines[0], "#"))
	if len(lines) > 1 {
		answer = strings.TrimSpace(lines[1])
	}
	return question, answer
}

// SanitizeContent strips unsafe HTML from card markdown before it is handed
// to clients. Mochi content is user-authored and may embed raw HTML.
func SanitizeContent(content string) string {
	return sanitizePolicy.Sanitize(content)
}

// ResolveImages rewrites @media references in card content into inline
// base64 data URLs so clients can render them without Mochi credentials.
// References whose attachments cannot be fetched are left untouched.
func (c *Client) ResolveImages(ctx context.Context, cardID, content string) string {
	matches := mediaRefPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return content
	}

	resolved := content
	for _, m := range matches {
		altText, filename := m[1], m[2]

		data, contentType, err := c.GetAttachment(ctx, cardID, filename)
		if err != nil {
			slog.Warn("failed to fetch card attachment", "card_id", cardID, "filename", filename, "error", err)
			continue
		}

		dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
		oldRef := fmt.Sprintf("![%s](@media/%s)", altText, filename)
		newRef := fmt.Sprintf("![%s](%s)", altText, dataURL)
		resolved = strings.ReplaceAll(resolved, oldRef, newRef)
	}

	return resolved
}

// BuildReviewCard renders the markdown for a rephrased-question card that
// gets saved back to Mochi, with a collapsed source block pointing at the
// card it was derived from.
func BuildReviewCard(originalQuestion, originalAnswer, rephrasedQuestion, sourceCardID string) string {
	return fmt.Sprintf(`%s

---

%s

<details>
<summary>Source</summary>

Original: %s

Card ID: `+"`%s`"+`
</details>`, rephrasedQuestion, originalAnswer, originalQuestion, sourceCardID)
}
