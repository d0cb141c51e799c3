package usecase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"mira-agent/internal/domain"
)

const (
	defaultTitle     = "New Conversation"
	titleMaxLen      = 100
	titleFallbackLen = 50
)

// The model occasionally wraps its output in reasoning markup; strip full
// blocks first, then any orphaned tag and everything before it.
var (
	reasoningBlockRe = regexp.MustCompile(`(?s)<reasoning>.*?</reasoning>\s*`)
	orphanOpenRe     = regexp.MustCompile(`(?s)^.*?<reasoning>\s*`)
	orphanCloseRe    = regexp.MustCompile(`(?s)^.*?</reasoning>\s*`)
)

// ResponseGenerator produces a generated answer for a question in the
// context of a profile and chart. The title synthesizer calls it with
// zero-valued context.
type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, profile domain.UserProfile, chart domain.ChartData, question string) (domain.GeneratedAnswer, error)
}

// TitleSynthesizer derives a short thread title from its first message,
// preferring one generation call and falling back to truncation.
type TitleSynthesizer struct {
	generator ResponseGenerator
}

// NewTitleSynthesizer creates a TitleSynthesizer.
func NewTitleSynthesizer(generator ResponseGenerator) (*TitleSynthesizer, error) {
	if generator == nil {
		return nil, errors.New("usecase: response generator must not be nil")
	}
	return &TitleSynthesizer{generator: generator}, nil
}

// Synthesize never fails: any generation error or rejected result falls
// back to a truncated form of the message itself.
func (t *TitleSynthesizer) Synthesize(ctx context.Context, firstMessage string) string {
	if strings.TrimSpace(firstMessage) == "" {
		return defaultTitle
	}

	if title, ok := t.generated(ctx, firstMessage); ok {
		return title
	}
	return fallbackTitle(firstMessage)
}

func (t *TitleSynthesizer) generated(ctx context.Context, firstMessage string) (string, bool) {
	prompt := "Generate ONLY a concise 3-5 word title. Do not explain or add reasoning.\n\n" +
		"Question: " + firstMessage + "\n\n" +
		"Output ONLY the title (3-5 words, no quotes, same language as question):"

	answer, err := t.generator.GenerateResponse(ctx, domain.UserProfile{}, domain.ChartData{}, prompt)
	if err != nil {
		slog.Warn("title generation failed, using fallback", "err", err)
		return "", false
	}

	title := reasoningBlockRe.ReplaceAllString(answer.Text, "")
	title = orphanOpenRe.ReplaceAllString(title, "")
	title = orphanCloseRe.ReplaceAllString(title, "")
	title = strings.Trim(strings.TrimSpace(title), `"'`)

	if title == "" || len([]rune(title)) > titleMaxLen {
		return "", false
	}
	return title, true
}

func fallbackTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleFallbackLen {
		return strings.TrimSpace(message)
	}
	return strings.TrimSpace(string(runes[:titleFallbackLen])) + "..."
}
