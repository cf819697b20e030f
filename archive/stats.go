package archive

import (
	"strings"
	"unicode/utf8"
)

// TokenCounter counts model tokens in a text.
type TokenCounter interface {
	CountTokens(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(string) int

func (f TokenCounterFunc) CountTokens(text string) int { return f(text) }

type TranscriptStats struct {
	Words      int `json:"words"`
	Characters int `json:"characters"`
	Bytes      int `json:"bytes"`
	Lines      int `json:"lines"`
	// Tokens is zero when no counter was supplied.
	Tokens int `json:"tokens,omitempty"`
}

// ComputeStats measures a transcript. Lines counts non-blank lines, which for a
// formatted transcript is messages plus day markers.
func ComputeStats(text string, counter TokenCounter) TranscriptStats {
	st := TranscriptStats{
		Words:      len(strings.Fields(text)),
		Characters: utf8.RuneCountInString(text),
		Bytes:      len(text),
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			st.Lines++
		}
	}
	if counter != nil {
		st.Tokens = counter.CountTokens(text)
	}
	return st
}

// TokensPerWord is 0 when the transcript has no words.
func (s TranscriptStats) TokensPerWord() float64 {
	if s.Words == 0 {
		return 0
	}
	return float64(s.Tokens) / float64(s.Words)
}
