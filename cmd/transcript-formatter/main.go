package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/theimaginaryfoundation/digest-o-bot/archive"
	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
	"github.com/theimaginaryfoundation/digest-o-bot/logging"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	st, err := settings.Load(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := logging.Setup(st.Log.Level, st.Log.Console, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	cfg = cfg.withSettings(st)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	opts := archive.FormatOptions{
		SelfMarker:    cfg.SelfMarker,
		OwnerName:     cfg.OwnerName,
		TimeDelimiter: cfg.TimeDelimiter,
		KeepFullNames: cfg.KeepFullNames,
	}

	texts := make([]string, 0, len(cfg.InPaths))
	messages, dropped := 0, 0
	for _, in := range cfg.InPaths {
		recs, err := archive.ReadMerged(in)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		tr := archive.Format(recs, opts)
		log.Info().
			Str("in", in).
			Int("messages", tr.Messages).
			Int("dropped_empty", tr.DroppedEmpty).
			Int("day_markers", tr.DayMarkers).
			Msg("formatted transcript")
		messages += tr.Messages
		dropped += tr.DroppedEmpty
		texts = append(texts, tr.Text)
	}
	text := archive.CombineTranscripts(texts)

	if err := fileutils.CheckWritable(cfg.OutPath, cfg.Overwrite); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(2)
	}
	if err := fileutils.WriteFileAtomicSameDir(cfg.OutPath, []byte(text), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if !cfg.Stats {
		fmt.Fprintf(os.Stdout, "messages=%d dropped_empty=%d bytes=%d out=%s\n", messages, dropped, len(text), cfg.OutPath)
		return
	}

	var counter archive.TokenCounter
	if cfg.CountTokens {
		counter, err = newTokenCounter(cfg.Encoding)
		if err != nil {
			// stats are still written, without tokens
			log.Warn().Err(err).Str("encoding", cfg.Encoding).Msg("token counting disabled")
		}
	}
	stats := archive.ComputeStats(text, counter)
	sp := statsPath(cfg.OutPath)
	if err := fileutils.CheckWritable(sp, cfg.Overwrite); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if err := fileutils.WriteJSONFileAtomic(sp, stats, true); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "messages=%d dropped_empty=%d words=%d chars=%d bytes=%d tokens=%d tokens_per_word=%.2f out=%s stats=%s\n",
		messages, dropped, stats.Words, stats.Characters, stats.Bytes, stats.Tokens, stats.TokensPerWord(), cfg.OutPath, sp)
}

// newTokenCounter loads a tiktoken encoding. The BPE ranks are fetched on first use and cached
// under TIKTOKEN_CACHE_DIR.
func newTokenCounter(encoding string) (archive.TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tiktoken %s: %w", encoding, err)
	}
	return archive.TokenCounterFunc(func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}), nil
}

type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*p = append(*p, filepath.Clean(s))
		}
	}
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	var ins pathList
	fs.Var(&ins, "in", "Merged JSON file; repeat or comma-separate to combine several archives (default data/merged.json)")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Transcript text output path")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file")
	fs.StringVar(&cfg.OwnerName, "owner-name", "", "Display name for the archive owner's own messages (default from settings)")
	fs.StringVar(&cfg.SelfMarker, "self-marker", "", "Sender value that marks the owner's messages (default from settings)")
	fs.StringVar(&cfg.TimeDelimiter, "time-delimiter", "", "Separator between date and time in message headers (default from settings)")
	fs.BoolVar(&cfg.KeepFullNames, "full-names", false, "Keep full sender names instead of the second name token")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Write <out>.stats.json with word/character/line counts")
	fs.BoolVar(&cfg.CountTokens, "count-tokens", false, "Include a tiktoken token count in the stats")
	fs.StringVar(&cfg.Encoding, "token-encoding", cfg.Encoding, "tiktoken encoding used by -count-tokens")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-formatter -in data/merged.json -out data/transcript.txt -overwrite")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-formatter -in a/merged.json,b/merged.json -owner-name Андрей -count-tokens")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if len(ins) > 0 {
		cfg.InPaths = ins
	}
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	return cfg, nil
}
