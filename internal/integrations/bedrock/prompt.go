package bedrock

import (
	"fmt"
	"strings"

	"mira-agent/internal/domain"
)

// Prompt condensation limits. Fixed so tests can pin exact output for
// known inputs.
const (
	aspectScanLimit = 20
	maxMajorAspects = 10
)

// keyBodies are the chart bodies included in the context block, in order.
var keyBodies = []string{
	"sun",
	"moon",
	"mercury",
	"venus",
	"mars",
	"jupiter",
	"saturn",
	"ascendant",
	"medium_coeli",
}

// majorAspectTypes are the aspect kinds considered worth surfacing.
var majorAspectTypes = map[string]bool{
	"conjunction": true,
	"opposition":  true,
	"trine":       true,
	"square":      true,
	"sextile":     true,
}

// aspectPrimaryBodies restricts surfaced aspects to those touching at
// least one of these bodies.
var aspectPrimaryBodies = map[string]bool{
	"Sun":       true,
	"Moon":      true,
	"Ascendant": true,
	"Mercury":   true,
	"Venus":     true,
	"Mars":      true,
}

const systemPrompt = `You are Mira, an empathetic and insightful astrology companion.

Your role is to provide supportive, personalized guidance based on users' astrological birth charts.

Guidelines:
- Be warm, understanding, and non-judgmental
- Interpret astrological data in accessible, meaningful ways
- Focus on personal growth and self-awareness
- Avoid making absolute predictions
- Encourage users to use astrology as a tool for reflection, not fate
- Be concise but thoughtful in your responses

When analyzing charts, consider planetary positions, aspects, and houses to provide nuanced insights.`

// buildMessages assembles the fixed system instruction plus a user turn of
// condensed chart context followed by the literal question.
func buildMessages(profile domain.UserProfile, chart domain.ChartData, question string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: formatUserContext(profile, chart) + "\n\nQuestion: " + question},
	}
}

// formatUserContext condenses the profile and chart into a token-budgeted
// context block: key body positions and major aspects only.
func formatUserContext(profile domain.UserProfile, chart domain.ChartData) string {
	var planets []string
	for _, key := range keyBodies {
		body, ok := chart.Data[key]
		if !ok {
			continue
		}
		name := body.Name
		if name == "" {
			name = titleCase(key)
		}
		retro := ""
		if body.Retrograde {
			retro = " (R)"
		}
		planets = append(planets, fmt.Sprintf("  %s: %s %.1f°%s", name, body.Sign, body.Position, retro))
	}

	var aspects []string
	scan := chart.Aspects
	if len(scan) > aspectScanLimit {
		scan = scan[:aspectScanLimit]
	}
	for _, a := range scan {
		if !majorAspectTypes[strings.ToLower(a.Aspect)] {
			continue
		}
		if !aspectPrimaryBodies[a.P1Name] && !aspectPrimaryBodies[a.P2Name] {
			continue
		}
		aspects = append(aspects, fmt.Sprintf("  %s %s %s (orb: %.1f°)", a.P1Name, strings.ToLower(a.Aspect), a.P2Name, a.Orbit))
		if len(aspects) >= maxMajorAspects {
			break
		}
	}

	planetsBlock := "  (No planetary data available)"
	if len(planets) > 0 {
		planetsBlock = strings.Join(planets, "\n")
	}
	aspectsBlock := "  (No major aspects found)"
	if len(aspects) > 0 {
		aspectsBlock = strings.Join(aspects, "\n")
	}

	return fmt.Sprintf(`User Profile:
- Zodiac Sign: %s
- Birth Date: %s
- Birth Location: %s

Key Planetary Positions:
%s

Major Aspects:
%s
`, orUnknown(profile.ZodiacSign), orUnknown(profile.BirthDate), orUnknown(profile.BirthLocation), planetsBlock, aspectsBlock)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
