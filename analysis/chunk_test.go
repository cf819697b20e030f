package analysis

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSplitText_WithinBudgetIsSingleChunk(t *testing.T) {
	t.Parallel()

	got := SplitText("short transcript", ChunkOptions{MaxBytes: 100})
	require.Equal(t, []Chunk{{Index: 1, Total: 1, Offset: 0, Text: "short transcript"}}, got)
	require.Nil(t, SplitText("", ChunkOptions{}))
}

func TestSplitText_RoundTrip(t *testing.T) {
	t.Parallel()

	pieces := []string{"слово", "word", " ", " ", "\n", "\n\n", "\n\n- 3 мар 2021 -\n\n", ". ", ".\n", "ё", "日本", "Петров   ", "x"}
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		var b strings.Builder
		n := rng.Intn(400)
		for i := 0; i < n; i++ {
			b.WriteString(pieces[rng.Intn(len(pieces))])
		}
		text := b.String()

		for _, max := range []int{1, 2, 3, 5, 17, 64, 1000} {
			chunks := SplitText(text, ChunkOptions{MaxBytes: max})
			require.Equal(t, text, JoinChunks(chunks), "trial=%d max=%d", trial, max)

			offset := 0
			for i, c := range chunks {
				require.Equal(t, i+1, c.Index)
				require.Equal(t, len(chunks), c.Total)
				require.Equal(t, offset, c.Offset)
				require.NotEmpty(t, c.Text)
				require.True(t, utf8.ValidString(c.Text), "chunk %d splits a rune", i+1)
				if len(c.Text) > max {
					require.Equal(t, 1, utf8.RuneCountInString(c.Text), "oversized chunk must be a single rune")
				}
				offset += len(c.Text)
			}
		}
	}
}

func TestSplitText_PrefersDayMarker(t *testing.T) {
	t.Parallel()

	prefix := strings.Repeat("x", 20)
	text := prefix + "\n\n- 2 фев -\n\n" + strings.Repeat("y", 10) + ". " + strings.Repeat("z", 40)
	chunks := SplitText(text, ChunkOptions{MaxBytes: 40})
	require.Equal(t, prefix+"\n\n", chunks[0].Text)
	require.True(t, strings.HasPrefix(chunks[1].Text, "- 2 фев -"))
}

func TestSplitText_PrefersParagraphOverSentence(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 20) + "\n\n" + strings.Repeat("y", 5) + ". " + strings.Repeat("z", 40)
	chunks := SplitText(text, ChunkOptions{MaxBytes: 40})
	require.Equal(t, strings.Repeat("x", 20)+"\n\n", chunks[0].Text)
}

func TestSplitText_PrefersSentenceOverWhitespace(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 22) + ". yy zz" + strings.Repeat("w", 40)
	chunks := SplitText(text, ChunkOptions{MaxBytes: 40})
	require.Equal(t, strings.Repeat("x", 22)+". ", chunks[0].Text)
}

func TestSplitText_IgnoresBoundariesBeforeMidpoint(t *testing.T) {
	t.Parallel()

	text := "xx\n\n" + strings.Repeat("y", 25) + " " + strings.Repeat("z", 40)
	chunks := SplitText(text, ChunkOptions{MaxBytes: 40})
	require.Len(t, chunks[0].Text, 30)
	require.True(t, strings.HasSuffix(chunks[0].Text, "y "))
}

func TestSplitText_HardCutKeepsRunes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("я", 30)
	chunks := SplitText(text, ChunkOptions{MaxBytes: 5})
	require.Equal(t, text, JoinChunks(chunks))
	for _, c := range chunks {
		require.Equal(t, "яя", c.Text)
	}

	wide := SplitText("яяя", ChunkOptions{MaxBytes: 1})
	require.Len(t, wide, 3)
}

func TestSplitText_ThreeChunksForLargeTranscript(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for day := 0; b.Len() < 2_400_000; day++ {
		if day > 0 {
			b.WriteString("\n\n- day marker -\n\n")
		}
		for i := 0; i < 40; i++ {
			b.WriteString("Петров   short message about nothing in particular. ok\n")
		}
	}
	text := b.String()[:2_400_000]

	chunks := SplitText(text, ChunkOptions{MaxBytes: DefaultMaxChunkBytes})
	require.Len(t, chunks, 3)
	require.Equal(t, text, JoinChunks(chunks))
	for _, c := range chunks {
		require.LessOrEqual(t, len(c.Text), DefaultMaxChunkBytes)
	}
}

func TestChunkSizePreset(t *testing.T) {
	t.Parallel()

	n, err := ChunkSizePreset("Medium")
	require.NoError(t, err)
	require.Equal(t, DefaultMaxChunkBytes, n)

	n, err = ChunkSizePreset("small")
	require.NoError(t, err)
	require.Equal(t, 300_000, n)

	_, err = ChunkSizePreset("huge")
	require.Error(t, err)
}
