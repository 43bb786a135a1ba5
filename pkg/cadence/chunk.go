package cadence

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	PerCharDelay = 10 * time.Millisecond
	MinDelay     = 400 * time.Millisecond
	MaxDelay     = 1500 * time.Millisecond

	// Pause separates two consecutive chunks.
	Pause = 500 * time.Millisecond

	FallbackChunk = "I'm ready to assist you. Could you clarify your request?"
)

var blankLine = regexp.MustCompile(`\n[ \t\r]*\n`)

// Split breaks a reply into paragraph chunks on blank lines. An empty reply
// yields the single fallback chunk.
func Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	parts := blankLine.Split(text, -1)
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, p)
	}

	if len(chunks) == 0 {
		return []string{FallbackChunk}
	}
	return chunks
}

// Delay is the simulated typing time for a chunk: 10ms per character clamped
// to [400ms, 1500ms].
func Delay(chunk string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(chunk)) * PerCharDelay
	if d < MinDelay {
		return MinDelay
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}
