package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChunkBytes keeps one request comfortably under common endpoint payload limits.
	DefaultMaxChunkBytes = 900_000
	// DefaultDayMarkerPrefix starts a day marker line in a formatted transcript.
	DefaultDayMarkerPrefix = "- "
)

// Named chunk budgets offered to operators.
var chunkSizePresets = map[string]int{
	"full":   1_100_000,
	"medium": DefaultMaxChunkBytes,
	"small":  300_000,
}

// ChunkSizePreset resolves a named budget ("full", "medium", "small").
func ChunkSizePreset(name string) (int, error) {
	n, ok := chunkSizePresets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown chunk size preset %q (want full, medium or small)", name)
	}
	return n, nil
}

// Chunk is one bounded slice of a transcript. Index is 1-based.
type Chunk struct {
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

type ChunkOptions struct {
	MaxBytes        int
	DayMarkerPrefix string
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxChunkBytes
	}
	if o.DayMarkerPrefix == "" {
		o.DayMarkerPrefix = DefaultDayMarkerPrefix
	}
	return o
}

// SplitText cuts text into chunks of at most MaxBytes, preferring day markers, then paragraph
// breaks, then sentence ends, then any whitespace. A boundary is only accepted in the second half
// of the budget; otherwise the chunk is hard cut on a rune boundary. Concatenating the chunks
// always reproduces text.
func SplitText(text string, opts ChunkOptions) []Chunk {
	if text == "" {
		return nil
	}
	opts = opts.withDefaults()
	max := opts.MaxBytes

	var out []Chunk
	for cursor := 0; cursor < len(text); {
		cut := len(text)
		if len(text)-cursor > max {
			cut = findCut(text, cursor, max, opts.DayMarkerPrefix)
		}
		out = append(out, Chunk{Index: len(out) + 1, Offset: cursor, Text: text[cursor:cut]})
		cursor = cut
	}
	for i := range out {
		out[i].Total = len(out)
	}
	return out
}

func findCut(text string, cursor, max int, dayPrefix string) int {
	hi := cursor + max
	lo := cursor + max/2
	if lo <= cursor {
		lo = cursor + 1
	}

	// Cut after the blank line, so the next chunk opens with the marker.
	if p := lastCut(text, lo, hi, "\n\n"+dayPrefix, 2); p >= 0 {
		return p
	}
	if p := lastCut(text, lo, hi, "\n\n", 2); p >= 0 {
		return p
	}
	p1 := lastCut(text, lo, hi, ". ", 2)
	p2 := lastCut(text, lo, hi, ".\n", 2)
	if p := maxInt(p1, p2); p >= 0 {
		return p
	}
	if p := lastWhitespaceCut(text, lo, hi); p >= 0 {
		return p
	}
	return hardCut(text, cursor, hi)
}

// lastCut finds the largest p in [lo, hi] such that sep occurs at p-offset.
func lastCut(text string, lo, hi int, sep string, offset int) int {
	start := lo - offset
	if start < 0 {
		start = 0
	}
	end := hi - offset + len(sep)
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return -1
	}
	i := strings.LastIndex(text[start:end], sep)
	if i < 0 {
		return -1
	}
	p := start + i + offset
	if p < lo || p > hi {
		return -1
	}
	return p
}

func lastWhitespaceCut(text string, lo, hi int) int {
	start := lo - 1
	if start < 0 {
		start = 0
	}
	i := strings.LastIndexAny(text[start:hi], " \t\r\n")
	if i < 0 {
		return -1
	}
	p := start + i + 1
	if p < lo {
		return -1
	}
	return p
}

// hardCut backs off from hi to the nearest rune start. A single rune wider than the whole
// budget is emitted intact.
func hardCut(text string, cursor, hi int) int {
	p := hi
	for p > cursor && !utf8.RuneStart(text[p]) {
		p--
	}
	if p == cursor {
		_, size := utf8.DecodeRuneInString(text[cursor:])
		p = cursor + size
	}
	return p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// JoinChunks reassembles chunk texts in order.
func JoinChunks(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}
