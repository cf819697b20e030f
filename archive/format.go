package archive

import (
	"sort"
	"strings"
)

const (
	// DefaultOwnerName replaces the self-marker in the transcript.
	DefaultOwnerName = "Я"
	// DefaultTimeDelimiter separates the date from the time of day in exported headers.
	DefaultTimeDelimiter = " в "
)

type FormatOptions struct {
	SelfMarker    string
	OwnerName     string
	TimeDelimiter string
	// KeepFullNames disables the surname-only display rule.
	KeepFullNames bool
}

func (o FormatOptions) withDefaults() FormatOptions {
	if o.SelfMarker == "" {
		o.SelfMarker = DefaultSelfMarker
	}
	if o.OwnerName == "" {
		o.OwnerName = DefaultOwnerName
	}
	if o.TimeDelimiter == "" {
		o.TimeDelimiter = DefaultTimeDelimiter
	}
	return o
}

// Transcript is the rendered text plus diagnostics about what was rendered.
type Transcript struct {
	Text         string
	Messages     int
	DroppedEmpty int
	DayMarkers   int
}

// Format re-sorts records chronologically by numeric id and renders them as
// "<sender>   <text>" lines, with a "- <day> -" marker framed by blank lines at each day change.
func Format(records []MessageRecord, opts FormatOptions) Transcript {
	opts = opts.withDefaults()

	sorted := make([]MessageRecord, len(records))
	copy(sorted, records)
	SortChronological(sorted)

	var out Transcript
	lines := make([]string, 0, len(sorted))
	prevDay := ""
	for _, r := range sorted {
		if strings.TrimSpace(r.Text) == "" {
			out.DroppedEmpty++
			continue
		}

		day := DayKey(r.TimestampRaw, opts)
		if day != "" && prevDay != "" && day != prevDay {
			lines = append(lines, "", "- "+day+" -", "")
			out.DayMarkers++
		}
		if day != "" {
			prevDay = day
		}

		lines = append(lines, DisplayName(r.Sender, opts)+"   "+r.Text)
		out.Messages++
	}

	out.Text = strings.Join(lines, "\n")
	return out
}

// SortChronological stable-sorts records by numeric id ascending; records without one go last.
func SortChronological(records []MessageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, aok := records[i].SeqNum()
		b, bok := records[j].SeqNum()
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		return a < b
	})
}

// DisplayName maps a sender to its transcript name: the self-marker becomes the owner name and
// multi-word names are reduced to their second word.
func DisplayName(sender string, opts FormatOptions) string {
	opts = opts.withDefaults()
	s := strings.TrimSpace(sender)
	if s == opts.SelfMarker {
		return opts.OwnerName
	}
	if opts.KeepFullNames {
		return s
	}
	if f := strings.Fields(s); len(f) >= 2 {
		return f[1]
	}
	return s
}

// DayKey isolates the date portion of a raw header timestamp.
func DayKey(raw string, opts FormatOptions) string {
	opts = opts.withDefaults()
	s := raw
	if i := strings.Index(s, opts.TimeDelimiter); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, opts.SelfMarker+", ")
	return strings.TrimSpace(s)
}
