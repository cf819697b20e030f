package archive

import "strings"

// TranscriptSeparator joins transcripts uploaded as several files.
const TranscriptSeparator = "\n\n=== НОВЫЙ ФАЙЛ ===\n\n"

// CombineTranscripts joins non-empty transcripts in order with TranscriptSeparator.
func CombineTranscripts(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, TranscriptSeparator)
}
