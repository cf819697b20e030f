package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := archive.ExtractDir(ctx, cfg.InDir, cfg.OutDir, archive.ExtractDirOptions{
		ExtractOptions: archive.ExtractOptions{
			Encoding:   cfg.Encoding,
			SelfMarker: cfg.SelfMarker,
		},
		OverwriteExisting: cfg.Overwrite,
		Resume:            cfg.Resume,
		Pretty:            cfg.Pretty,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	for _, f := range res.Failures {
		log.Warn().Str("document", f.Path).Err(f.Err).Msg("document skipped")
	}

	fmt.Fprintf(os.Stdout, "documents=%d written=%d resumed=%d failed=%d records=%d out_dir=%s\n",
		res.Documents, res.Written, res.Resumed, res.Failed, res.Records, cfg.OutDir)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InDir, "in", cfg.InDir, "Directory of exported HTML shards (searched recursively)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory to write one <shard>.json per document into")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file (DIGEST_* env vars override it)")
	fs.StringVar(&cfg.Encoding, "encoding", "", "Input charset label, or auto to sniff <meta charset> (default from settings: windows-1251)")
	fs.StringVar(&cfg.SelfMarker, "self-marker", "", "Sender assigned to messages without a sender link (default from settings)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print each output JSON file")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")
	fs.BoolVar(&cfg.Resume, "resume", false, "Keep existing outputs and skip their documents")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/archive-extractor -in export/messages -out data/shards -resume")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/archive-extractor -encoding auto -overwrite -pretty")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InDir = filepath.Clean(cfg.InDir)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	return cfg, nil
}
