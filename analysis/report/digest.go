package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

// Digest is everything needed to render the human-readable summary of one run.
type Digest struct {
	RunID   string
	Source  string
	Chunks  []Document
	Summary *Document
}

// RenderDigest renders a markdown digest: run header, the aggregate (if any), then every chunk.
func RenderDigest(d Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Chat analysis %s\n\n", d.RunID)
	if d.Source != "" {
		fmt.Fprintf(&b, "- source: `%s`\n", escapeInline(d.Source))
	}
	ok := 0
	var tokens int64
	var cost float64
	for _, c := range d.Chunks {
		if c.Status == StatusSucceeded {
			ok++
		}
		tokens += c.Usage.TotalTokens
		cost += c.Cost.Total
	}
	if d.Summary != nil {
		tokens += d.Summary.Usage.TotalTokens
		cost += d.Summary.Cost.Total
	}
	if len(d.Chunks) > 0 {
		first := d.Chunks[0]
		name := first.ModelName
		if name == "" {
			name = first.Model
		}
		fmt.Fprintf(&b, "- model: %s (`%s`)\n", escapeInline(name), first.Model)
	}
	fmt.Fprintf(&b, "- chunks: %d of %d succeeded\n", ok, len(d.Chunks))
	fmt.Fprintf(&b, "- tokens: %d\n", tokens)
	fmt.Fprintf(&b, "- cost: $%.4f\n\n", cost)

	if d.Summary != nil {
		b.WriteString("<a id=\"summary\"></a>\n## Summary\n\n")
		writeStamp(&b, d.Summary.Timestamp)
		b.WriteString(strings.TrimSpace(d.Summary.ResponseText))
		b.WriteString("\n\n---\n\n")
	}

	for _, c := range d.Chunks {
		fmt.Fprintf(&b, "<a id=\"chunk-%d\"></a>\n", c.ChunkIndex)
		fmt.Fprintf(&b, "## Chunk %d of %d\n\n", c.ChunkIndex, c.Total)
		writeStamp(&b, c.Timestamp)
		if c.Status != StatusSucceeded {
			fmt.Fprintf(&b, "**failed** after %d attempt(s): %s\n\n", c.Attempts, escapeInline(c.Error))
		} else {
			b.WriteString(strings.TrimSpace(c.ResponseText))
			b.WriteString("\n\n")
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

func writeStamp(b *strings.Builder, ts time.Time) {
	if ts.IsZero() {
		return
	}
	fmt.Fprintf(b, "_%s_\n\n", ts.UTC().Format(time.RFC3339))
}

// WriteDigest renders d and writes it to path.
func WriteDigest(path string, d Digest, overwrite bool) error {
	if path == "" {
		return errors.New("WriteDigest: path is empty")
	}
	if err := fileutils.CheckWritable(path, overwrite); err != nil {
		return fmt.Errorf("WriteDigest: %w", err)
	}
	return fileutils.WriteFileAtomicSameDir(path, []byte(RenderDigest(d)), 0o644)
}

func escapeInline(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
