package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/theimaginaryfoundation/digest-o-bot/archive"
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

	shards, skipped, err := archive.LoadShardDir(cfg.InDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if len(shards) == 0 {
		fmt.Fprintln(os.Stderr, "no readable *.json shards found")
		os.Exit(1)
	}

	res := archive.Merge(shards, cfg.mergeOptions())
	log.Debug().Str("order", strings.Join(res.Order, ",")).Msg("merge order")

	if dir := filepath.Dir(cfg.OutPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
			os.Exit(2)
		}
	}
	minPath, err := archive.WriteMerged(cfg.OutPath, res.Records, cfg.Overwrite)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "files_merged=%d records=%d skipped=%d out=%s out_min=%s\n",
		res.FilesMerged, res.TotalRecords, len(skipped), cfg.OutPath, minPath)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InDir, "in", cfg.InDir, "Directory of per-shard JSON files written by archive-extractor")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Merged JSON output path (a compact .min.json is written next to it)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file")
	fs.StringVar(&cfg.Pattern, "pattern", "", `Regexp whose first group is the shard number (default from settings: messages(\d+)\.)`)
	fs.StringVar(&cfg.Direction, "direction", "", "newest-first (higher shard number first) or oldest-first")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/shard-merger -in data/shards -out data/merged.json -overwrite")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/shard-merger -direction oldest-first")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InDir = filepath.Clean(cfg.InDir)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	return cfg, nil
}
