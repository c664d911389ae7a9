package comments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxLines caps how many lines one response may add to the chat.
	MaxLines = 12
	// MaxRunes caps the length of a single line.
	MaxRunes = 80
)

// ErrEmptyResponse is returned when the service answered with no usable lines.
var ErrEmptyResponse = errors.New("empty comment response")

// Source produces simulated viewer comments reacting to a short context string.
type Source interface {
	Generate(ctx context.Context, prompt string) ([]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, prompt string) ([]string, error)

func (f SourceFunc) Generate(ctx context.Context, prompt string) ([]string, error) {
	return f(ctx, prompt)
}

// Parse decodes an untrusted response that should be a JSON array of strings. Markdown code
// fences are tolerated, blank lines dropped and the result capped at MaxLines of MaxRunes.
func Parse(text string) ([]string, error) {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return Clean(raw)
}

// Clean trims and caps lines, returning ErrEmptyResponse when none survive.
func Clean(lines []string) ([]string, error) {
	out := make([]string, 0, min(len(lines), MaxLines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if utf8.RuneCountInString(l) > MaxRunes {
			l = string([]rune(l)[:MaxRunes])
		}
		out = append(out, l)
		if len(out) == MaxLines {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
